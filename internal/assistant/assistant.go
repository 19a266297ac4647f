// Package assistant is the entry point used by the HTTP and CLI fronts. It
// ties the period parser, the artifact resolver and the balances cache
// together and records what happened in the journal and on the event bus.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finbot/internal/amqp"
	"finbot/internal/balances"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/period"
)

// ErrNoJournal is returned by History when no journal is configured.
var ErrNoJournal = errors.New("resolution journal not configured")

type (
	ArtifactResolver interface {
		Resolve(ctx context.Context, p core.Period) core.Outcome
	}

	BalanceCache interface {
		Get(ctx context.Context) (core.Snapshot, error)
		Refresh(ctx context.Context) (core.Snapshot, error)
		Status() balances.Status
		Subscribe(hook balances.RefreshHook)
	}

	Journal interface {
		RecordResolution(ctx context.Context, r core.Resolution) error
		RecordSnapshot(ctx context.Context, s core.Snapshot) (int64, error)
		RecentResolutions(ctx context.Context, limit int) ([]core.Resolution, error)
	}

	Publisher interface {
		Publish(ctx context.Context, routingKey string, v any) error
	}
)

type Assistant struct {
	resolver  ArtifactResolver
	balances  BalanceCache
	journal   Journal
	publisher Publisher
	logger    *log.Logger
	newID     func() string
	now       func() time.Time
}

type Option func(*Assistant)

// WithJournal records resolutions and refreshed snapshots in j.
func WithJournal(j Journal) Option {
	return func(a *Assistant) { a.journal = j }
}

// WithPublisher emits resolution and balances events through p.
func WithPublisher(p Publisher) Option {
	return func(a *Assistant) { a.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator replaces uuid.NewString for resolution ids.
func WithIDGenerator(f func() string) Option {
	return func(a *Assistant) {
		if f != nil {
			a.newID = f
		}
	}
}

// New wires the assistant and subscribes it to balances refreshes.
func New(res ArtifactResolver, cache BalanceCache, opts ...Option) *Assistant {
	a := &Assistant{
		resolver: res,
		balances: cache,
		logger:   log.Default(log.ComponentApp),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if cache != nil {
		cache.Subscribe(a.balancesRefreshed)
	}
	return a
}

// ParsePeriod parses free text into a validated period. The returned Result
// carries the rule that matched, also on range errors.
func (a *Assistant) ParsePeriod(ctx context.Context, text string) (core.Period, period.Result, error) {
	p, res, err := period.ParsePeriod(text)
	if err != nil {
		a.logger.InfoContext(ctx, "Period not understood",
			log.FieldText, text, log.FieldRule, res.Rule.String(), log.FieldError, err)
		return core.Period{}, res, err
	}
	a.logger.DebugContext(ctx, "Period parsed",
		log.FieldText, text, log.FieldRule, res.Rule.String(),
		log.FieldYear, p.Year, log.FieldMonth, p.Month)
	return p, res, nil
}

// ResolveArtifact validates p and runs the resolver. The error is non-nil
// only for an invalid period; a failed resolution is a NoneFound outcome.
func (a *Assistant) ResolveArtifact(ctx context.Context, p core.Period) (core.Outcome, error) {
	valid, err := core.NewPeriod(p.Year, p.Month)
	if err != nil {
		return core.Outcome{}, err
	}
	return a.resolve(ctx, "", valid), nil
}

// ResolveText parses text and resolves the period it names.
func (a *Assistant) ResolveText(ctx context.Context, text string) (core.Outcome, error) {
	p, _, err := a.ParsePeriod(ctx, text)
	if err != nil {
		return core.Outcome{}, err
	}
	return a.resolve(ctx, text, p), nil
}

func (a *Assistant) resolve(ctx context.Context, text string, p core.Period) core.Outcome {
	start := a.now()
	out := a.resolver.Resolve(ctx, p)

	fields := log.NewFields().
		WithPeriod(p.Year, p.Month).
		WithOutcome(out.Quality.String(), out.Strategy, len(out.Attempts), len(out.Artifact))
	fields[log.FieldDuration] = a.now().Sub(start).Milliseconds()
	if out.Found() {
		a.logger.InfoContext(ctx, "Artifact resolved", fields.ToSlice()...)
	} else {
		fields["diagnostic"] = out.Diagnostic
		a.logger.WarnContext(ctx, "No artifact found", fields.ToSlice()...)
	}

	entry := core.NewResolution(a.newID(), text, out, a.now())
	if a.journal != nil {
		if err := a.journal.RecordResolution(ctx, entry); err != nil {
			a.logger.ErrorContext(ctx, "Journal write failed",
				log.FieldResolutionID, entry.ID, log.FieldError, err)
		}
	}
	a.publish(ctx, amqp.RoutingResolutionCompleted, amqp.NewResolutionCompleted(entry))
	return out
}

// Balances returns the cached snapshot, fetching only when the cache is cold.
func (a *Assistant) Balances(ctx context.Context) (core.Snapshot, error) {
	if a.balances == nil {
		return core.Snapshot{}, errors.New("balances cache not configured")
	}
	snap, err := a.balances.Get(ctx)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("balances: %w", err)
	}
	return snap, nil
}

// RefreshBalances forces a fetch. On failure the cached snapshot is kept.
func (a *Assistant) RefreshBalances(ctx context.Context) (core.Snapshot, error) {
	if a.balances == nil {
		return core.Snapshot{}, errors.New("balances cache not configured")
	}
	snap, err := a.balances.Refresh(ctx)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("refresh balances: %w", err)
	}
	return snap, nil
}

func (a *Assistant) CacheStatus() balances.Status {
	if a.balances == nil {
		return balances.Status{}
	}
	return a.balances.Status()
}

// History lists the most recent resolutions, newest first.
func (a *Assistant) History(ctx context.Context, limit int) ([]core.Resolution, error) {
	if a.journal == nil {
		return nil, ErrNoJournal
	}
	return a.journal.RecentResolutions(ctx, limit)
}

func (a *Assistant) balancesRefreshed(ctx context.Context, snap core.Snapshot) {
	if a.journal != nil {
		if _, err := a.journal.RecordSnapshot(ctx, snap); err != nil {
			a.logger.ErrorContext(ctx, "Snapshot archive failed", log.FieldError, err)
		}
	}
	a.publish(ctx, amqp.RoutingBalancesRefreshed, amqp.NewBalancesRefreshed(snap))
}

func (a *Assistant) publish(ctx context.Context, key string, v any) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, key, v); err != nil {
		a.logger.WarnContext(ctx, "Event publish failed",
			log.FieldRoutingKey, key, log.FieldError, err)
	}
}
