package cli

import (
	"context"
	"errors"
	"fmt"

	"finbot/internal/amqp"
	"finbot/internal/assistant"
	"finbot/internal/backend"
	"finbot/internal/balances"
	"finbot/internal/config"
	"finbot/internal/log"
	"finbot/internal/resolver"
	"finbot/internal/storage"
)

// App is the wired application. Journal and Events are nil when disabled.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   *backend.Result
	Resolver  *resolver.Resolver
	Balances  *balances.Cache
	Journal   *storage.SQLiteRepository
	Events    *amqp.Client
	Assistant *assistant.Assistant
}

// AppOptions turns optional parts off for commands that do not need them.
type AppOptions struct {
	Factory     backend.Factory
	SkipJournal bool
	SkipEvents  bool
}

// NewApp builds every component from cfg. An unreachable broker is logged
// and skipped; a broken journal or backend fails start-up.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts AppOptions) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = log.Default(log.ComponentApp)
	}
	factory := opts.Factory
	if factory == nil {
		factory = backend.NewFactory(logger.WithComponent(log.ComponentSheets))
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	be, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Backend: be}

	layout := resolver.Layout{
		Workspace:   be.Workspace,
		HomeSurface: cfg.HomeSheetName,
		SelectorRow: cfg.SelectorRow,
		MonthCol:    cfg.SelectorMonthCol,
		YearCol:     cfg.SelectorYearCol,
		SettleDelay: cfg.SettleDelay,
	}
	app.Resolver = resolver.New(be.Service, layout,
		resolver.WithLogger(logger.WithComponent(log.ComponentResolver)))

	fetcher := balances.NewSheetFetcher(be.Service, be.Workspace)
	fetcher.Surface = cfg.BalancesSheetName
	fetcher.AccountColumn = cfg.AccountColumn
	fetcher.BalanceColumn = cfg.BalanceColumn
	fetcher.Logger = logger.WithComponent(log.ComponentBalances)
	app.Balances = balances.New(fetcher,
		balances.WithTTL(cfg.BalancesTTL),
		balances.WithLogger(logger.WithComponent(log.ComponentBalances)))

	aopts := []assistant.Option{assistant.WithLogger(logger)}

	if cfg.JournalEnabled() && !opts.SkipJournal {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		app.Journal = repo
		aopts = append(aopts, assistant.WithJournal(repo))
		logger.Info("Resolution journal enabled", "path", cfg.SQLiteDBPath)
	}

	if cfg.EventsEnabled() && !opts.SkipEvents {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			app.Events = client
			aopts = append(aopts, assistant.WithPublisher(client))
			logger.Info("Event publishing enabled", "exchange", cfg.AMQPExchange)
		}
	}

	app.Assistant = assistant.New(app.Resolver, app.Balances, aopts...)
	return app, nil
}

// Close releases the broker connection, the journal and the backend.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}
