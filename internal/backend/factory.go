package backend

import (
	"context"
	"fmt"

	"finbot/internal/log"
	gsheet "finbot/internal/sheets/google"
	"finbot/internal/sheets/memory"
)

// DefaultFactory builds the memory demo or the Google Sheets client.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	var renderer gsheet.PageRenderer
	if !config.DisableRenderer {
		renderer = gsheet.NewChromeRenderer(config.RenderTimeout)
	}

	client, err := gsheet.NewFromEnv(ctx, renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		log.FieldWorkspace, config.Workspace,
		"renderer", renderer != nil)

	return &Result{
		Type:      SheetsBackend,
		Service:   client,
		Workspace: config.Workspace,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *Result {
	svc := memory.Demo(config.Workspace, config.DataDirectory)

	f.logger.Info("Initialized memory backend",
		log.FieldWorkspace, config.Workspace,
		"data_dir", config.DataDirectory)

	return &Result{
		Type:      MemoryBackend,
		Service:   svc,
		Workspace: config.Workspace,
	}
}
