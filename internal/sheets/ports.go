package sheets

import (
	"context"
	"errors"
	"fmt"
)

// Format selects the representation produced by Workspace.ExportAs.
type Format int

const (
	FormatImage Format = iota + 1
	FormatDocument
	FormatTabular
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatDocument:
		return "document"
	case FormatTabular:
		return "tabular"
	default:
		return "unknown"
	}
}

// ContentType is the MIME type of an export in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatImage:
		return "image/png"
	case FormatDocument:
		return "application/pdf"
	case FormatTabular:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Ports for the remote spreadsheet. A workspace is a spreadsheet, a surface
// one of its tabs.
type (
	Service interface {
		OpenWorkspace(ctx context.Context, name string) (Workspace, error)
	}

	Workspace interface {
		Name() string
		Surface(ctx context.Context, name string) (Surface, error)
		Surfaces(ctx context.Context) ([]Surface, error)
		ExportAs(ctx context.Context, surfaceID string, format Format) ([]byte, error)
	}

	Surface interface {
		ID() string
		Name() string
		Charts(ctx context.Context) ([]Chart, error)
		// SetCell writes value at a 1-based row and column.
		SetCell(ctx context.Context, row, col int, value any) error
		// Rows returns the unformatted cell values of the whole surface.
		Rows(ctx context.Context) ([][]any, error)
	}

	Chart interface {
		Title() string
		RenderImage(ctx context.Context) ([]byte, error)
	}
)

// ErrNotFound is wrapped by FetchError when a surface or workspace does not exist.
var ErrNotFound = errors.New("not found")

// FetchError is the single error type adapters return for remote failures.
type FetchError struct {
	Op      string
	Reason  string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	msg := e.Op
	if e.Reason != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Reason
	}
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil && (e.Reason == "" || e.Reason != e.Err.Error()) {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fail builds a FetchError for op. A nil err yields a reason-only error.
func Fail(op, reason string, err error) *FetchError {
	return &FetchError{Op: op, Reason: reason, Err: err}
}

// NotFound builds a FetchError that matches ErrNotFound.
func NotFound(op, what string) *FetchError {
	return &FetchError{Op: op, Reason: what + " not found", Err: ErrNotFound}
}

// IsNotFound reports whether err is a missing surface or workspace.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
