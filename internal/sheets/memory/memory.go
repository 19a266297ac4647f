// Package memory is an in-process SpreadsheetService. It backs the "memory"
// data backend and doubles as the test fake: every call is counted and every
// operation can be made to fail.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"finbot/internal/sheets"
)

type Service struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
	openErr    error
	opens      int
}

var _ sheets.Service = (*Service)(nil)

func NewService(workspaces ...*Workspace) *Service {
	s := &Service{workspaces: make(map[string]*Workspace)}
	for _, w := range workspaces {
		s.Add(w)
	}
	return s
}

func (s *Service) Add(w *Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[w.name] = w
}

// FailOpen makes every OpenWorkspace call return err.
func (s *Service) FailOpen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

func (s *Service) OpenWorkspace(_ context.Context, name string) (sheets.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, sheets.Fail("open workspace", name, s.openErr)
	}
	w, ok := s.workspaces[name]
	if !ok {
		return nil, sheets.NotFound("open workspace", fmt.Sprintf("workspace %q", name))
	}
	return w, nil
}

func (s *Service) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Calls counts workspace-level operations.
type Calls struct {
	Surface  int
	Surfaces int
	Export   int
}

type exportKey struct {
	surfaceID string
	format    sheets.Format
}

type Workspace struct {
	mu        sync.Mutex
	name      string
	surfaces  []*Surface
	exports   map[exportKey][]byte
	exportErr map[exportKey]error
	calls     Calls
}

var _ sheets.Workspace = (*Workspace)(nil)

func NewWorkspace(name string, surfaces ...*Surface) *Workspace {
	return &Workspace{
		name:      name,
		surfaces:  surfaces,
		exports:   make(map[exportKey][]byte),
		exportErr: make(map[exportKey]error),
	}
}

func (w *Workspace) Name() string { return w.name }

func (w *Workspace) AddSurface(s *Surface) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.surfaces = append(w.surfaces, s)
}

// SetExport registers the bytes ExportAs returns for a surface and format.
func (w *Workspace) SetExport(surfaceID string, f sheets.Format, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exports[exportKey{surfaceID, f}] = data
}

func (w *Workspace) FailExport(surfaceID string, f sheets.Format, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exportErr[exportKey{surfaceID, f}] = err
}

func (w *Workspace) Calls() Calls {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// Surface looks a tab up by name, ignoring case and surrounding spaces.
func (w *Workspace) Surface(_ context.Context, name string) (sheets.Surface, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls.Surface++
	for _, s := range w.surfaces {
		if strings.EqualFold(strings.TrimSpace(s.name), strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return nil, sheets.NotFound("open surface", fmt.Sprintf("surface %q", name))
}

func (w *Workspace) Surfaces(_ context.Context) ([]sheets.Surface, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls.Surfaces++
	out := make([]sheets.Surface, len(w.surfaces))
	for i, s := range w.surfaces {
		out[i] = s
	}
	return out, nil
}

func (w *Workspace) ExportAs(_ context.Context, surfaceID string, f sheets.Format) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls.Export++
	key := exportKey{surfaceID, f}
	if err := w.exportErr[key]; err != nil {
		return nil, sheets.Fail("export "+f.String(), surfaceID, err)
	}
	data, ok := w.exports[key]
	if !ok {
		return nil, sheets.Fail("export "+f.String(), "no export for surface "+surfaceID, nil)
	}
	return append([]byte(nil), data...), nil
}

// SurfaceCalls counts surface-level operations.
type SurfaceCalls struct {
	Charts  int
	SetCell int
	Rows    int
}

type Surface struct {
	mu        sync.Mutex
	id        string
	name      string
	charts    []*Chart
	cells     map[[2]int]any
	rows      [][]any
	chartsErr error
	setErr    error
	rowsErr   error
	calls     SurfaceCalls
}

var _ sheets.Surface = (*Surface)(nil)

func NewSurface(id, name string, charts ...*Chart) *Surface {
	return &Surface{id: id, name: name, charts: charts, cells: make(map[[2]int]any)}
}

func (s *Surface) ID() string   { return s.id }
func (s *Surface) Name() string { return s.name }

// SetRows replaces the surface contents returned by Rows.
func (s *Surface) SetRows(rows [][]any) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	return s
}

func (s *Surface) FailCharts(err error) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chartsErr = err
	return s
}

func (s *Surface) FailSetCell(err error) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
	return s
}

func (s *Surface) FailRows(err error) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsErr = err
	return s
}

func (s *Surface) Calls() SurfaceCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Cell returns what SetCell last wrote at row, col.
func (s *Surface) Cell(row, col int) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cells[[2]int{row, col}]
	return v, ok
}

func (s *Surface) Charts(_ context.Context) ([]sheets.Chart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Charts++
	if s.chartsErr != nil {
		return nil, sheets.Fail("list charts", s.name, s.chartsErr)
	}
	out := make([]sheets.Chart, len(s.charts))
	for i, c := range s.charts {
		out[i] = c
	}
	return out, nil
}

func (s *Surface) SetCell(_ context.Context, row, col int, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.SetCell++
	if s.setErr != nil {
		return sheets.Fail("set cell", fmt.Sprintf("%s R%dC%d", s.name, row, col), s.setErr)
	}
	if row < 1 || col < 1 {
		return sheets.Fail("set cell", fmt.Sprintf("invalid position R%dC%d", row, col), nil)
	}
	s.cells[[2]int{row, col}] = value
	return nil
}

func (s *Surface) Rows(_ context.Context) ([][]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Rows++
	if s.rowsErr != nil {
		return nil, sheets.Fail("read rows", s.name, s.rowsErr)
	}
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out, nil
}

type Chart struct {
	mu      sync.Mutex
	title   string
	image   []byte
	err     error
	renders int
}

var _ sheets.Chart = (*Chart)(nil)

func NewChart(title string, image []byte) *Chart {
	return &Chart{title: title, image: image}
}

// FailingChart is a chart whose rendering always fails with err.
func FailingChart(title string, err error) *Chart {
	return &Chart{title: title, err: err}
}

func (c *Chart) Title() string { return c.title }

func (c *Chart) RenderImage(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renders++
	if c.err != nil {
		return nil, sheets.Fail("render chart", c.title, c.err)
	}
	return append([]byte(nil), c.image...), nil
}

func (c *Chart) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}
