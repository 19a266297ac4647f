package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"finbot/internal/core"
	"finbot/internal/period"
	"finbot/internal/sheets"
)

// Artifact is what a successful strategy hands back to the resolver.
type Artifact struct {
	Data        []byte
	ContentType string
	Quality     core.Quality
	// Source names the surface or chart the bytes came from.
	Source string
}

// Strategy is one step of the fallback chain. Attempt returns an error, or
// an Artifact with no data, when it has nothing to offer.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, ws sheets.Workspace, p core.Period) (Artifact, error)
}

var (
	errNoCharts     = errors.New("no charts")
	errNoMatch      = errors.New("no chart title matches the period")
	errNoSurface    = errors.New("no surface named after the period")
	errEmptyExports = errors.New("every export came back empty")
)

// DefaultStrategies is the fallback chain in order of decreasing quality.
func DefaultStrategies(l Layout) []Strategy {
	return []Strategy{
		HomeCharts{Surface: l.HomeSurface},
		WorkspaceScan{},
		PeriodSurface{},
		SurfaceExport{Home: l.HomeSurface},
		TabularExport{Home: l.HomeSurface},
	}
}

// HomeCharts renders a chart from the home surface. Charts of a known
// category are preferred over generic ones; within a group the surface order
// wins.
type HomeCharts struct {
	Surface string
}

func (HomeCharts) Name() string { return "home_charts" }

func (s HomeCharts) Attempt(ctx context.Context, ws sheets.Workspace, _ core.Period) (Artifact, error) {
	surface, err := ws.Surface(ctx, s.Surface)
	if err != nil {
		return Artifact{}, err
	}
	charts, err := surface.Charts(ctx)
	if err != nil {
		return Artifact{}, err
	}
	if len(charts) == 0 {
		return Artifact{}, fmt.Errorf("surface %q: %w", surface.Name(), errNoCharts)
	}

	var known, generic []sheets.Chart
	for _, c := range charts {
		if Classify(c.Title()) == CategoryGeneric {
			generic = append(generic, c)
		} else {
			known = append(known, c)
		}
	}
	return renderFirst(ctx, append(known, generic...))
}

// WorkspaceScan renders the first chart anywhere in the workspace whose
// title mentions the year or the zero-padded month.
type WorkspaceScan struct{}

func (WorkspaceScan) Name() string { return "workspace_scan" }

func (WorkspaceScan) Attempt(ctx context.Context, ws sheets.Workspace, p core.Period) (Artifact, error) {
	surfaces, err := ws.Surfaces(ctx)
	if err != nil {
		return Artifact{}, err
	}
	year := strconv.Itoa(p.Year)
	month := fmt.Sprintf("%02d", p.Month)

	var matches []sheets.Chart
	var errs []error
	for _, surface := range surfaces {
		charts, err := surface.Charts(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, c := range charts {
			if t := c.Title(); strings.Contains(t, year) || strings.Contains(t, month) {
				matches = append(matches, c)
			}
		}
	}
	if len(matches) == 0 {
		return Artifact{}, errors.Join(append([]error{errNoMatch}, errs...)...)
	}
	return renderFirst(ctx, matches)
}

// PeriodSurface renders the first chart of the first surface named after the
// period.
type PeriodSurface struct{}

func (PeriodSurface) Name() string { return "period_surface" }

func (PeriodSurface) Attempt(ctx context.Context, ws sheets.Workspace, p core.Period) (Artifact, error) {
	surface, err := findPeriodSurface(ctx, ws, p)
	if err != nil {
		return Artifact{}, err
	}
	charts, err := surface.Charts(ctx)
	if err != nil {
		return Artifact{}, err
	}
	if len(charts) == 0 {
		return Artifact{}, fmt.Errorf("surface %q: %w", surface.Name(), errNoCharts)
	}
	data, err := charts[0].RenderImage(ctx)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Data:        data,
		ContentType: sheets.FormatImage.ContentType(),
		Quality:     core.QualityChart,
		Source:      surface.Name() + "/" + charts[0].Title(),
	}, nil
}

// SurfaceExport exports the period surface, or home when there is none, as
// an image and then as a document.
type SurfaceExport struct {
	Home string
}

func (SurfaceExport) Name() string { return "surface_export" }

func (s SurfaceExport) Attempt(ctx context.Context, ws sheets.Workspace, p core.Period) (Artifact, error) {
	surface, err := exportTarget(ctx, ws, p, s.Home)
	if err != nil {
		return Artifact{}, err
	}
	var errs []error
	for _, f := range []sheets.Format{sheets.FormatImage, sheets.FormatDocument} {
		data, err := ws.ExportAs(ctx, surface.ID(), f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(data) == 0 {
			errs = append(errs, fmt.Errorf("%s export: %w", f, errEmptyExports))
			continue
		}
		return Artifact{
			Data:        data,
			ContentType: f.ContentType(),
			Quality:     core.QualityRenderedPage,
			Source:      surface.Name() + " (" + f.String() + ")",
		}, nil
	}
	return Artifact{}, errors.Join(errs...)
}

// TabularExport downloads the raw values of the same surface SurfaceExport
// would use.
type TabularExport struct {
	Home string
}

func (TabularExport) Name() string { return "tabular_export" }

func (s TabularExport) Attempt(ctx context.Context, ws sheets.Workspace, p core.Period) (Artifact, error) {
	surface, err := exportTarget(ctx, ws, p, s.Home)
	if err != nil {
		return Artifact{}, err
	}
	data, err := ws.ExportAs(ctx, surface.ID(), sheets.FormatTabular)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Data:        data,
		ContentType: sheets.FormatTabular.ContentType(),
		Quality:     core.QualityTabular,
		Source:      surface.Name(),
	}, nil
}

// PeriodSurfaceNames lists the tab names tried for p, in order.
func PeriodSurfaceNames(p core.Period) []string {
	y, m := p.Year, p.Month
	return []string{
		fmt.Sprintf("%d-%02d", y, m),
		fmt.Sprintf("%02d-%d", m, y),
		fmt.Sprintf("%d/%02d", y, m),
		fmt.Sprintf("%02d/%d", m, y),
		fmt.Sprintf("%d%02d", y, m),
		fmt.Sprintf("%s %d", period.MonthName(m), y),
	}
}

func findPeriodSurface(ctx context.Context, ws sheets.Workspace, p core.Period) (sheets.Surface, error) {
	for _, name := range PeriodSurfaceNames(p) {
		s, err := ws.Surface(ctx, name)
		if err == nil {
			return s, nil
		}
		if !sheets.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (tried %s)", errNoSurface, strings.Join(PeriodSurfaceNames(p), ", "))
}

func exportTarget(ctx context.Context, ws sheets.Workspace, p core.Period, home string) (sheets.Surface, error) {
	s, err := findPeriodSurface(ctx, ws, p)
	if err == nil {
		return s, nil
	}
	if home == "" {
		return nil, err
	}
	return ws.Surface(ctx, home)
}

func renderFirst(ctx context.Context, charts []sheets.Chart) (Artifact, error) {
	var errs []error
	for _, c := range charts {
		data, err := c.RenderImage(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("chart %q: %w", c.Title(), err))
			continue
		}
		if len(data) == 0 {
			errs = append(errs, fmt.Errorf("chart %q: empty image", c.Title()))
			continue
		}
		return Artifact{
			Data:        data,
			ContentType: sheets.FormatImage.ContentType(),
			Quality:     core.QualityChart,
			Source:      c.Title(),
		}, nil
	}
	return Artifact{}, errors.Join(errs...)
}
