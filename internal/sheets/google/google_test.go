package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
	gsheet "google.golang.org/api/sheets/v4"

	"finbot/internal/sheets"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_CREDENTIALS_BASE64", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	clearCredentialEnv(t)
	_, err := NewFromEnv(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_InvalidBase64(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_CREDENTIALS_BASE64", "%%%not-base64")
	_, err := NewFromEnv(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "decode GOOGLE_CREDENTIALS_BASE64") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_InvalidJSON(t *testing.T) {
	_, err := New(context.Background(), []byte("invalid-json"), nil)
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingFile(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/key.json")
	_, err := NewFromEnv(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewWorkspaceFromMetadata(t *testing.T) {
	ss := &gsheet.Spreadsheet{
		SpreadsheetId: "abc",
		Properties:    &gsheet.SpreadsheetProperties{Title: "Finanças"},
		Sheets: []*gsheet.Sheet{
			{
				Properties: &gsheet.SheetProperties{SheetId: 0, Title: "Home"},
				Charts: []*gsheet.EmbeddedChart{
					{ChartId: 11, Spec: &gsheet.ChartSpec{Title: "Fluxo de Caixa"}},
					{ChartId: 12},
				},
			},
			{Properties: &gsheet.SheetProperties{SheetId: 987, Title: "Saldos"}},
			nil,
		},
	}
	ws := newWorkspace(&Client{}, ss)
	if ws.Name() != "Finanças" || len(ws.surfaces) != 2 {
		t.Fatalf("unexpected workspace: %s %d", ws.Name(), len(ws.surfaces))
	}
	ctx := context.Background()
	home, err := ws.Surface(ctx, "home")
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	charts, _ := home.Charts(ctx)
	if len(charts) != 2 || charts[0].Title() != "Fluxo de Caixa" || charts[1].Title() != "" {
		t.Fatalf("unexpected charts: %v", charts)
	}
	saldos, _ := ws.Surface(ctx, "Saldos")
	if saldos.ID() != "987" {
		t.Fatalf("unexpected id %s", saldos.ID())
	}
	if _, err := ws.Surface(ctx, "2025-08"); !sheets.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestURLs(t *testing.T) {
	if got := exportURL("https://x/d", "abc", "5", sheets.FormatTabular); got != "https://x/d/abc/export?format=csv&gid=5" {
		t.Errorf("csv url = %s", got)
	}
	if got := exportURL("https://x/d", "abc", "5", sheets.FormatDocument); !strings.Contains(got, "format=pdf") || !strings.Contains(got, "gid=5") {
		t.Errorf("pdf url = %s", got)
	}
	if got := htmlViewURL("https://x/d", "abc", "5"); got != "https://x/d/abc/gviz/tq?gid=5&tqx=out%3Ahtml" {
		t.Errorf("html url = %s", got)
	}
	if got := chartImageURL("https://x/d", "abc", 42); got != "https://x/d/abc/embed/oimg?format=image&id=42&oid=42" {
		t.Errorf("chart url = %s", got)
	}
}

func TestToFetchError(t *testing.T) {
	fe := toFetchError("open workspace", &googleapi.Error{Code: 404, Message: "gone"})
	if !sheets.IsNotFound(fe) || fe.Reason != "google api 404" {
		t.Fatalf("unexpected mapping: %+v", fe)
	}
	fe = toFetchError("read", context.DeadlineExceeded)
	if !fe.Timeout {
		t.Fatal("expected timeout flag")
	}
	fe = toFetchError("read", &googleapi.Error{Code: 500})
	if sheets.IsNotFound(fe) || fe.Timeout {
		t.Fatalf("unexpected flags: %+v", fe)
	}
}

type fakeRenderer struct {
	html []byte
	err  error
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("PNG"), nil
}

func newTestClient(t *testing.T, renderer PageRenderer) (*Client, *workspace) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/abc/export", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte("a,b\n1,2\n"))
		case "pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
		}
	})
	mux.HandleFunc("/abc/gviz/tq", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><table></table></body></html>"))
	})
	mux.HandleFunc("/abc/embed/oimg", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "13" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>login</html>"))
			return
		}
		if r.URL.Query().Get("id") == "14" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("CHART"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := &Client{http: srv.Client(), renderer: renderer, docsURL: srv.URL}
	ws := newWorkspace(c, &gsheet.Spreadsheet{
		SpreadsheetId: "abc",
		Sheets: []*gsheet.Sheet{{
			Properties: &gsheet.SheetProperties{SheetId: 0, Title: "Home"},
			Charts: []*gsheet.EmbeddedChart{
				{ChartId: 12, Spec: &gsheet.ChartSpec{Title: "ok"}},
				{ChartId: 13, Spec: &gsheet.ChartSpec{Title: "html"}},
				{ChartId: 14, Spec: &gsheet.ChartSpec{Title: "forbidden"}},
			},
		}},
	})
	return c, ws
}

func TestExportsOverHTTP(t *testing.T) {
	ctx := context.Background()
	r := &fakeRenderer{}
	_, ws := newTestClient(t, r)

	csv, err := ws.ExportAs(ctx, "0", sheets.FormatTabular)
	if err != nil || string(csv) != "a,b\n1,2\n" {
		t.Fatalf("csv export: %q %v", csv, err)
	}
	pdf, err := ws.ExportAs(ctx, "0", sheets.FormatDocument)
	if err != nil || string(pdf) != "%PDF-1.4" {
		t.Fatalf("pdf export: %q %v", pdf, err)
	}
	img, err := ws.ExportAs(ctx, "0", sheets.FormatImage)
	if err != nil || string(img) != "PNG" || !strings.Contains(string(r.html), "<table>") {
		t.Fatalf("image export: %q %v", img, err)
	}

	r.err = errors.New("chrome missing")
	if _, err := ws.ExportAs(ctx, "0", sheets.FormatImage); err == nil {
		t.Fatal("expected renderer failure")
	}
}

func TestExportSizeLimit(t *testing.T) {
	ctx := context.Background()
	c, ws := newTestClient(t, nil)

	c.maxBody = int64(len("%PDF-1.4"))
	pdf, err := ws.ExportAs(ctx, "0", sheets.FormatDocument)
	if err != nil || string(pdf) != "%PDF-1.4" {
		t.Fatalf("export at the limit should pass: %q %v", pdf, err)
	}

	c.maxBody--
	pdf, err = ws.ExportAs(ctx, "0", sheets.FormatDocument)
	var fe *sheets.FetchError
	if !errors.As(err, &fe) || fe.Reason != "export too large" {
		t.Fatalf("expected export too large, got %v", err)
	}
	if pdf != nil {
		t.Fatalf("truncated export returned: %q", pdf)
	}
}

func TestImageExportWithoutRenderer(t *testing.T) {
	_, ws := newTestClient(t, nil)
	_, err := ws.ExportAs(context.Background(), "0", sheets.FormatImage)
	var fe *sheets.FetchError
	if !errors.As(err, &fe) || fe.Reason != "no page renderer configured" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChartRenderImage(t *testing.T) {
	ctx := context.Background()
	_, ws := newTestClient(t, nil)
	home, _ := ws.Surface(ctx, "Home")
	charts, _ := home.Charts(ctx)

	img, err := charts[0].RenderImage(ctx)
	if err != nil || string(img) != "CHART" {
		t.Fatalf("render: %q %v", img, err)
	}
	if _, err := charts[1].RenderImage(ctx); err == nil || !strings.Contains(err.Error(), "unexpected content type") {
		t.Fatalf("expected content type error, got %v", err)
	}
	_, err = charts[2].RenderImage(ctx)
	var fe *sheets.FetchError
	if !errors.As(err, &fe) || fe.Reason != "http 403" {
		t.Fatalf("expected http 403, got %v", err)
	}
}

func TestOpenWorkspaceWithoutService(t *testing.T) {
	_, err := (&Client{}).OpenWorkspace(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error without service")
	}
}
