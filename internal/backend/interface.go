// Package backend chooses and builds the spreadsheet service the rest of the
// application talks to.
package backend

import (
	"context"
	"time"

	"finbot/internal/sheets"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result is a ready spreadsheet service plus the workspace to open on it.
type Result struct {
	Type      BackendType
	Service   sheets.Service
	Workspace string
	Cleanup   CleanupFunc
}

// Close runs Cleanup when set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds what backend creation needs.
type Config struct {
	Type BackendType

	// Workspace is the spreadsheet ID for sheets and the demo name for memory.
	Workspace string

	// Google Sheets specific
	RenderTimeout   time.Duration
	DisableRenderer bool

	// Memory backend specific
	DataDirectory string
}

type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

func (bt BackendType) String() string {
	return string(bt)
}
