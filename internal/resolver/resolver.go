// Package resolver turns a period into the best artifact the spreadsheet can
// produce for it. Strategies run in order of decreasing quality and the
// first one that yields bytes wins.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/sheets"
)

const (
	DefaultHomeSurface = "Home"
	DefaultSelectorRow = 1
	DefaultMonthCol    = 2
	DefaultYearCol     = 3
	DefaultSettleDelay = 3 * time.Second
)

// Layout describes where things live in the spreadsheet.
type Layout struct {
	Workspace   string        `yaml:"workspace"`
	HomeSurface string        `yaml:"home_surface"`
	SelectorRow int           `yaml:"selector_row"`
	MonthCol    int           `yaml:"selector_month_col"`
	YearCol     int           `yaml:"selector_year_col"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

func DefaultLayout(workspace string) Layout {
	return Layout{
		Workspace:   workspace,
		HomeSurface: DefaultHomeSurface,
		SelectorRow: DefaultSelectorRow,
		MonthCol:    DefaultMonthCol,
		YearCol:     DefaultYearCol,
		SettleDelay: DefaultSettleDelay,
	}
}

// repositions reports whether the layout names a selector to write.
func (l Layout) repositions() bool {
	return l.SelectorRow > 0 && l.MonthCol > 0 && l.YearCol > 0
}

// Resolver runs the fallback chain against one spreadsheet.
type Resolver struct {
	svc        sheets.Service
	layout     Layout
	strategies []Strategy
	sleep      func(time.Duration)
	logger     *log.Logger
}

type Option func(*Resolver)

// WithStrategies replaces the default chain.
func WithStrategies(s ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = s
	}
}

// WithSleeper replaces time.Sleep for the settle delay.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(r *Resolver) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(svc sheets.Service, layout Layout, opts ...Option) *Resolver {
	if layout.HomeSurface == "" {
		layout.HomeSurface = DefaultHomeSurface
	}
	r := &Resolver{
		svc:    svc,
		layout: layout,
		sleep:  time.Sleep,
		logger: log.Default(log.ComponentResolver),
	}
	r.strategies = DefaultStrategies(layout)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Layout returns the layout the resolver was built with.
func (r *Resolver) Layout() Layout {
	return r.layout
}

// Strategies returns the names of the chain in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve never returns an error: remote failures are recorded in the
// outcome and exhaustion yields core.QualityNoneFound.
func (r *Resolver) Resolve(ctx context.Context, p core.Period) core.Outcome {
	out := core.Outcome{Period: p}

	ws, err := r.svc.OpenWorkspace(ctx, r.layout.Workspace)
	if err != nil {
		r.logger.WarnContext(ctx, "Open workspace failed",
			log.FieldWorkspace, r.layout.Workspace, log.FieldError, err)
		out.Attempts = append(out.Attempts, core.Attempt{Strategy: "open_workspace", Err: err.Error()})
		out.Diagnostic = fmt.Sprintf("no artifact for %s: open workspace %q: %v", p, r.layout.Workspace, err)
		return out
	}

	if r.layout.repositions() {
		if err := r.reposition(ctx, ws, p); err != nil {
			r.logger.WarnContext(ctx, "Reposition failed, continuing without it",
				log.FieldYear, p.Year, log.FieldMonth, p.Month, log.FieldError, err)
			out.Attempts = append(out.Attempts, core.Attempt{Strategy: "reposition", Err: err.Error()})
		} else {
			out.Repositioned = true
		}
	}

	for _, s := range r.strategies {
		art, err := r.attempt(ctx, s, ws, p)
		if err == nil && len(art.Data) == 0 {
			err = errors.New("empty result")
		}
		if err != nil {
			r.logger.DebugContext(ctx, "Strategy produced nothing",
				log.FieldStrategy, s.Name(), log.FieldError, err)
			out.Attempts = append(out.Attempts, core.Attempt{Strategy: s.Name(), Err: err.Error()})
			continue
		}

		out.Artifact = art.Data
		out.ContentType = art.ContentType
		out.Quality = art.Quality
		out.Strategy = s.Name()
		out.Diagnostic = fmt.Sprintf("%s via %s from %q", art.Quality, s.Name(), art.Source)
		if !out.Repositioned && r.layout.repositions() {
			out.Diagnostic += " (selector not repositioned)"
		}
		return out
	}

	out.Quality = core.QualityNoneFound
	out.Diagnostic = noneFoundDiagnostic(p, out.Attempts)
	return out
}

// reposition points the selector cells at p and waits for the sheet to
// recalculate. The wait is not cancellable.
func (r *Resolver) reposition(ctx context.Context, ws sheets.Workspace, p core.Period) error {
	surface, err := ws.Surface(ctx, r.layout.HomeSurface)
	if err != nil {
		return err
	}
	if err := surface.SetCell(ctx, r.layout.SelectorRow, r.layout.MonthCol, p.Month); err != nil {
		return err
	}
	if err := surface.SetCell(ctx, r.layout.SelectorRow, r.layout.YearCol, p.Year); err != nil {
		return err
	}
	if r.layout.SettleDelay > 0 {
		r.sleep(r.layout.SettleDelay)
	}
	return nil
}

// attempt runs one strategy and turns a panic into an error.
func (r *Resolver) attempt(ctx context.Context, s Strategy, ws sheets.Workspace, p core.Period) (art Artifact, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "Strategy panicked",
				log.FieldStrategy, s.Name(), "panic", rec, "stack", string(debug.Stack()))
			art, err = Artifact{}, fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.Attempt(ctx, ws, p)
}

func noneFoundDiagnostic(p core.Period, attempts []core.Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "no artifact for %s", p)
	if len(attempts) == 0 {
		b.WriteString(": no strategies configured")
		return b.String()
	}
	for i, a := range attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", a.Strategy, oneLine(a.Err))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
