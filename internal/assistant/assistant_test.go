package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/amqp"
	"finbot/internal/balances"
	"finbot/internal/core"
	"finbot/internal/period"
	"finbot/internal/resolver"
	"finbot/internal/sheets/memory"
)

type fakeResolver struct {
	calls []core.Period
	out   core.Outcome
}

func (f *fakeResolver) Resolve(_ context.Context, p core.Period) core.Outcome {
	f.calls = append(f.calls, p)
	out := f.out
	out.Period = p
	return out
}

type fakeJournal struct {
	mu          sync.Mutex
	resolutions []core.Resolution
	snapshots   []core.Snapshot
	err         error
}

func (j *fakeJournal) RecordResolution(_ context.Context, r core.Resolution) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.resolutions = append(j.resolutions, r)
	return nil
}

func (j *fakeJournal) RecordSnapshot(_ context.Context, s core.Snapshot) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	j.snapshots = append(j.snapshots, s)
	return int64(len(j.snapshots)), nil
}

func (j *fakeJournal) RecentResolutions(_ context.Context, limit int) ([]core.Resolution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]core.Resolution, 0, limit)
	for i := len(j.resolutions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.resolutions[i])
	}
	return out, nil
}

type fakePublisher struct {
	keys   []string
	values []any
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, v any) error {
	p.keys = append(p.keys, key)
	p.values = append(p.values, v)
	return p.err
}

func chartOutcome() core.Outcome {
	return core.Outcome{
		Artifact:    []byte("PNG"),
		ContentType: "image/png",
		Quality:     core.QualityChart,
		Strategy:    "home_charts",
		Diagnostic:  "chart via home_charts",
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestResolveTextJournalsAndPublishes(t *testing.T) {
	res := &fakeResolver{out: chartOutcome()}
	j := &fakeJournal{}
	pub := &fakePublisher{}
	a := New(res, nil, WithJournal(j), WithPublisher(pub),
		WithClock(fixedClock()), WithIDGenerator(func() string { return "id-1" }))

	out, err := a.ResolveText(context.Background(), "março de 2024")
	require.NoError(t, err)
	assert.True(t, out.Found())
	assert.Equal(t, []core.Period{{Year: 2024, Month: 3}}, res.calls)

	require.Len(t, j.resolutions, 1)
	entry := j.resolutions[0]
	assert.Equal(t, "id-1", entry.ID)
	assert.Equal(t, "março de 2024", entry.Text)
	assert.Equal(t, core.QualityChart, entry.Quality)
	assert.Equal(t, 3, entry.Bytes)

	require.Equal(t, []string{amqp.RoutingResolutionCompleted}, pub.keys)
	ev := pub.values[0].(*amqp.ResolutionCompleted)
	assert.Equal(t, "chart", ev.Quality)
	assert.Equal(t, "id-1", ev.ID)
}

func TestResolveTextParseFailureSkipsResolver(t *testing.T) {
	res := &fakeResolver{out: chartOutcome()}
	a := New(res, nil)

	_, err := a.ResolveText(context.Background(), "xyz")
	require.ErrorIs(t, err, core.ErrUnparsed)

	_, err = a.ResolveText(context.Background(), "13/2024")
	require.ErrorIs(t, err, core.ErrPeriodOutOfRange)
	assert.Empty(t, res.calls)
}

func TestResolveArtifactValidatesPeriod(t *testing.T) {
	res := &fakeResolver{out: chartOutcome()}
	a := New(res, nil)

	_, err := a.ResolveArtifact(context.Background(), core.Period{Year: 1999, Month: 5})
	require.ErrorIs(t, err, core.ErrPeriodOutOfRange)
	assert.Empty(t, res.calls)

	out, err := a.ResolveArtifact(context.Background(), core.Period{Year: 2025, Month: 8})
	require.NoError(t, err)
	assert.Equal(t, core.Period{Year: 2025, Month: 8}, out.Period)
}

func TestSideChannelFailuresDoNotFailRequests(t *testing.T) {
	res := &fakeResolver{out: chartOutcome()}
	j := &fakeJournal{err: errors.New("disk full")}
	pub := &fakePublisher{err: errors.New("broker down")}
	a := New(res, nil, WithJournal(j), WithPublisher(pub))

	out, err := a.ResolveText(context.Background(), "2024-03")
	require.NoError(t, err)
	assert.True(t, out.Found())
}

func TestNoneFoundIsJournaled(t *testing.T) {
	res := &fakeResolver{out: core.Outcome{Quality: core.QualityNoneFound, Diagnostic: "no artifact"}}
	j := &fakeJournal{}
	a := New(res, nil, WithJournal(j))

	out, err := a.ResolveText(context.Background(), "2024-03")
	require.NoError(t, err)
	assert.False(t, out.Found())
	require.Len(t, j.resolutions, 1)
	assert.Equal(t, core.QualityNoneFound, j.resolutions[0].Quality)
}

func TestBalancesRefreshArchivesAndPublishes(t *testing.T) {
	fetches := 0
	cache := balances.New(balances.FetcherFunc(func(context.Context) ([]core.BalanceRecord, error) {
		fetches++
		return []core.BalanceRecord{{Account: "Conta", Balance: core.Money{Cents: 5000}}}, nil
	}))
	j := &fakeJournal{}
	pub := &fakePublisher{}
	a := New(&fakeResolver{}, cache, WithJournal(j), WithPublisher(pub))

	snap, err := a.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())

	_, err = a.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)

	_, err = a.RefreshBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)

	assert.Len(t, j.snapshots, 2)
	assert.Equal(t, []string{amqp.RoutingBalancesRefreshed, amqp.RoutingBalancesRefreshed}, pub.keys)
	assert.True(t, a.CacheStatus().Populated)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	fail := false
	cache := balances.New(balances.FetcherFunc(func(context.Context) ([]core.BalanceRecord, error) {
		if fail {
			return nil, errors.New("quota")
		}
		return []core.BalanceRecord{{Account: "Conta", Balance: core.Money{Cents: 5000}}}, nil
	}))
	a := New(&fakeResolver{}, cache)

	_, err := a.Balances(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = a.RefreshBalances(context.Background())
	require.Error(t, err)

	snap, err := a.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), snap.Total().Cents)
}

func TestHistory(t *testing.T) {
	a := New(&fakeResolver{out: chartOutcome()}, nil)
	_, err := a.History(context.Background(), 10)
	require.ErrorIs(t, err, ErrNoJournal)

	j := &fakeJournal{}
	n := 0
	a = New(&fakeResolver{out: chartOutcome()}, nil, WithJournal(j), WithIDGenerator(func() string {
		n++
		return string(rune('a' + n - 1))
	}))
	for _, q := range []string{"2024-01", "2024-02", "2024-03"} {
		_, err := a.ResolveText(context.Background(), q)
		require.NoError(t, err)
	}
	got, err := a.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestParsePeriodReportsRule(t *testing.T) {
	a := New(&fakeResolver{}, nil)
	p, res, err := a.ParsePeriod(context.Background(), "2025/08")
	require.NoError(t, err)
	assert.Equal(t, core.Period{Year: 2025, Month: 8}, p)
	assert.Equal(t, period.RuleYearSepMonth, res.Rule)
}

func TestEndToEndWithMemorySheets(t *testing.T) {
	svc := memory.Demo("book", t.TempDir())
	now := time.Now()
	res := resolver.New(svc, resolver.DefaultLayout("book"), resolver.WithSleeper(func(time.Duration) {}))
	cache := balances.New(balances.NewSheetFetcher(svc, "book"))
	a := New(res, cache)

	out, err := a.ResolveArtifact(context.Background(), core.Period{Year: now.Year(), Month: int(now.Month())})
	require.NoError(t, err)
	assert.Equal(t, core.QualityChart, out.Quality)
	assert.Equal(t, "home_charts", out.Strategy)

	snap, err := a.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Zero(t, snap.ConversionFailures())
}
