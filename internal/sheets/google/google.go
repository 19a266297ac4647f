package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finbot/internal/sheets"
)

const (
	defaultDocsURL = "https://docs.google.com/spreadsheets/d"
	driveReadScope = "https://www.googleapis.com/auth/drive.readonly"
	maxExportBytes = 50 << 20
)

// PageRenderer turns an HTML document into a PNG screenshot.
type PageRenderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Client implements sheets.Service on top of the Sheets v4 API and the
// spreadsheet export endpoints. Workspaces are opened by spreadsheet ID.
type Client struct {
	svc      *gsheet.Service
	http     *http.Client
	renderer PageRenderer
	docsURL  string
	// maxBody caps export downloads; zero means maxExportBytes.
	maxBody int64
}

// Ensure interface conformance
var _ sheets.Service = (*Client)(nil)

// NewFromEnv creates a client from service account credentials found in the
// environment. Sources, in order: GOOGLE_SERVICE_ACCOUNT_JSON, a key file
// (GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS),
// GOOGLE_CREDENTIALS_BASE64. renderer may be nil, which disables
// whole-surface image exports.
func NewFromEnv(ctx context.Context, renderer PageRenderer) (*Client, error) {
	creds, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, creds, renderer)
}

// New creates a client from a service account JSON key.
func New(ctx context.Context, credentialsJSON []byte, renderer PageRenderer) (*Client, error) {
	hc, err := authorizedClient(credentialsJSON)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "renderer", renderer != nil)
	return &Client{svc: svc, http: hc, renderer: renderer, docsURL: defaultDocsURL}, nil
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	encoded := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_BASE64"))
	if serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	case encoded != "":
		slog.InfoContext(ctx, "Using base64 encoded credentials")
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode GOOGLE_CREDENTIALS_BASE64: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_CREDENTIALS_BASE64 or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// authorizedClient wraps the pooled transport with service account tokens.
// The same client serves the Sheets API and the export endpoints.
func authorizedClient(credentialsJSON []byte) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsScope, driveReadScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	base := newHTTPClientWithPooling()
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := conf.Client(tokenCtx)
	hc.Timeout = base.Timeout
	return hc, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Google APIs with
// connection pooling and bounded timeouts. The overall timeout is the only
// deadline applied to remote calls.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// OpenWorkspace loads the spreadsheet metadata (tabs and embedded charts).
func (c *Client) OpenWorkspace(ctx context.Context, spreadsheetID string) (sheets.Workspace, error) {
	if c.svc == nil {
		return nil, sheets.Fail("open workspace", "sheets service not initialized", nil)
	}
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("spreadsheetId", "properties.title", "sheets.properties(sheetId,title)", "sheets.charts(chartId,spec.title)").
		Context(ctx).Do()
	if err != nil {
		return nil, toFetchError("open workspace", err)
	}
	return newWorkspace(c, ss), nil
}

// get fetches url with the authorised client and returns the body.
func (c *Client) get(ctx context.Context, op, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", sheets.Fail(op, "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", toFetchError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", sheets.NotFound(op, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", sheets.Fail(op, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	limit := c.maxBody
	if limit <= 0 {
		limit = maxExportBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", toFetchError(op, err)
	}
	if int64(len(body)) > limit {
		return nil, "", sheets.Fail(op, "export too large", nil)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// toFetchError maps transport and API errors onto sheets.FetchError.
func toFetchError(op string, err error) *sheets.FetchError {
	fe := &sheets.FetchError{Op: op, Err: err}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		fe.Reason = fmt.Sprintf("google api %d", gerr.Code)
		if gerr.Code == http.StatusNotFound {
			fe.Err = fmt.Errorf("%w: %v", sheets.ErrNotFound, err)
		}
	}

	var nerr net.Error
	if (errors.As(err, &nerr) && nerr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		fe.Timeout = true
	}
	return fe
}
