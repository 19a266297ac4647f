package google

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"

	"finbot/internal/sheets"
)

// workspace is a spreadsheet whose tab and chart layout was read once, when
// it was opened.
type workspace struct {
	c        *Client
	id       string
	title    string
	surfaces []*surface
}

type surface struct {
	ws     *workspace
	gid    int64
	title  string
	charts []*chart
}

type chart struct {
	ws    *workspace
	id    int64
	title string
}

var (
	_ sheets.Workspace = (*workspace)(nil)
	_ sheets.Surface   = (*surface)(nil)
	_ sheets.Chart     = (*chart)(nil)
)

func newWorkspace(c *Client, ss *gsheet.Spreadsheet) *workspace {
	ws := &workspace{c: c, id: ss.SpreadsheetId}
	if ss.Properties != nil {
		ws.title = ss.Properties.Title
	}
	for _, sh := range ss.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		s := &surface{ws: ws, gid: sh.Properties.SheetId, title: sh.Properties.Title}
		for _, ec := range sh.Charts {
			if ec == nil {
				continue
			}
			title := ""
			if ec.Spec != nil {
				title = ec.Spec.Title
			}
			s.charts = append(s.charts, &chart{ws: ws, id: ec.ChartId, title: title})
		}
		ws.surfaces = append(ws.surfaces, s)
	}
	return ws
}

func (w *workspace) Name() string {
	if w.title != "" {
		return w.title
	}
	return w.id
}

func (w *workspace) Surface(_ context.Context, name string) (sheets.Surface, error) {
	want := strings.TrimSpace(name)
	for _, s := range w.surfaces {
		if strings.EqualFold(strings.TrimSpace(s.title), want) {
			return s, nil
		}
	}
	return nil, sheets.NotFound("open surface", fmt.Sprintf("surface %q", name))
}

func (w *workspace) Surfaces(_ context.Context) ([]sheets.Surface, error) {
	out := make([]sheets.Surface, len(w.surfaces))
	for i, s := range w.surfaces {
		out[i] = s
	}
	return out, nil
}

// ExportAs downloads a tab. Tabular and document exports come straight from
// the export endpoint; image exports render the tab's HTML view to PNG.
func (w *workspace) ExportAs(ctx context.Context, surfaceID string, format sheets.Format) ([]byte, error) {
	op := "export " + format.String()
	switch format {
	case sheets.FormatTabular, sheets.FormatDocument:
		data, _, err := w.c.get(ctx, op, exportURL(w.c.docsURL, w.id, surfaceID, format))
		return data, err
	case sheets.FormatImage:
		if w.c.renderer == nil {
			return nil, sheets.Fail(op, "no page renderer configured", nil)
		}
		html, _, err := w.c.get(ctx, op, htmlViewURL(w.c.docsURL, w.id, surfaceID))
		if err != nil {
			return nil, err
		}
		return w.c.renderer.RenderHTML(ctx, html)
	default:
		return nil, sheets.Fail(op, "unsupported format", nil)
	}
}

func (s *surface) ID() string   { return strconv.FormatInt(s.gid, 10) }
func (s *surface) Name() string { return s.title }

func (s *surface) Charts(_ context.Context) ([]sheets.Chart, error) {
	out := make([]sheets.Chart, len(s.charts))
	for i, c := range s.charts {
		out[i] = c
	}
	return out, nil
}

func (s *surface) SetCell(ctx context.Context, row, col int, value any) error {
	rng, err := a1(s.title, row, col)
	if err != nil {
		return sheets.Fail("set cell", err.Error(), nil)
	}
	vr := &gsheet.ValueRange{Values: [][]any{{value}}}
	_, err = s.ws.c.svc.Spreadsheets.Values.Update(s.ws.id, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return toFetchError("set cell "+rng, err)
	}
	return nil
}

func (s *surface) Rows(ctx context.Context) ([][]any, error) {
	rng := quoteSheet(s.title)
	resp, err := s.ws.c.svc.Spreadsheets.Values.Get(s.ws.id, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, toFetchError("read "+rng, err)
	}
	return resp.Values, nil
}

func (c *chart) Title() string { return c.title }

// RenderImage downloads the chart as a PNG through the embed endpoint.
func (c *chart) RenderImage(ctx context.Context) ([]byte, error) {
	data, ctype, err := c.ws.c.get(ctx, "render chart", chartImageURL(c.ws.c.docsURL, c.ws.id, c.id))
	if err != nil {
		return nil, err
	}
	if ctype != "" && !strings.HasPrefix(ctype, "image/") {
		return nil, sheets.Fail("render chart", fmt.Sprintf("unexpected content type %q", ctype), nil)
	}
	return data, nil
}

func exportURL(base, spreadsheetID, gid string, format sheets.Format) string {
	q := url.Values{}
	q.Set("gid", gid)
	switch format {
	case sheets.FormatDocument:
		q.Set("format", "pdf")
		q.Set("portrait", "false")
		q.Set("fitw", "true")
		q.Set("gridlines", "false")
	default:
		q.Set("format", "csv")
	}
	return fmt.Sprintf("%s/%s/export?%s", base, url.PathEscape(spreadsheetID), q.Encode())
}

func htmlViewURL(base, spreadsheetID, gid string) string {
	q := url.Values{}
	q.Set("tqx", "out:html")
	q.Set("gid", gid)
	return fmt.Sprintf("%s/%s/gviz/tq?%s", base, url.PathEscape(spreadsheetID), q.Encode())
}

func chartImageURL(base, spreadsheetID string, chartID int64) string {
	id := strconv.FormatInt(chartID, 10)
	q := url.Values{}
	q.Set("id", id)
	q.Set("oid", id)
	q.Set("format", "image")
	return fmt.Sprintf("%s/%s/embed/oimg?%s", base, url.PathEscape(spreadsheetID), q.Encode())
}
