package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/amqp"
	"finbot/internal/core"
)

func event(t *testing.T, key string, v any) amqp.Event {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return amqp.Event{RoutingKey: key, Body: body, Timestamp: time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)}
}

func resolutionEvent(t *testing.T) amqp.Event {
	return event(t, amqp.RoutingResolutionCompleted, amqp.NewResolutionCompleted(core.Resolution{
		ID:         "r-1",
		Period:     core.Period{Year: 2024, Month: 3},
		Quality:    core.QualityChart,
		Strategy:   "home_charts",
		Diagnostic: "chart via home_charts",
		Bytes:      2048,
	}))
}

func TestHandleResolutionText(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWorker(&buf, false, nil)

	require.NoError(t, w.HandleEvent(context.Background(), resolutionEvent(t)))
	assert.Equal(t,
		"2024-03-10T09:30:00Z resolution.completed 03/2024 quality=chart strategy=home_charts bytes=2048 diagnostic=\"chart via home_charts\"\n",
		buf.String())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Resolutions)
	assert.Equal(t, 1, stats.ByQuality["chart"])
}

func TestHandleRefreshText(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWorker(&buf, false, nil)

	snap := core.Snapshot{Records: []core.BalanceRecord{
		{Account: "Nubank", Balance: core.Money{Cents: 123456}},
		{Account: "Cofre", ConversionFailed: true},
	}}
	require.NoError(t, w.HandleEvent(context.Background(), event(t, amqp.RoutingBalancesRefreshed, amqp.NewBalancesRefreshed(snap))))
	assert.Contains(t, buf.String(), "balances.refreshed records=2 total=\"R$ 1.234,56\" conversion_failures=1")
	assert.Equal(t, 1, w.Stats().Refreshes)
}

func TestHandleJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWorker(&buf, true, nil)

	require.NoError(t, w.HandleEvent(context.Background(), resolutionEvent(t)))
	var line struct {
		RoutingKey string         `json:"routing_key"`
		Event      map[string]any `json:"event"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, amqp.RoutingResolutionCompleted, line.RoutingKey)
	assert.Equal(t, "r-1", line.Event["id"])
}

func TestUnknownEventsAreDropped(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWorker(&buf, false, nil)

	err := w.HandleEvent(context.Background(), amqp.Event{RoutingKey: "expense.created", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
	assert.Equal(t, 1, w.Stats().Dropped)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestWriteFailureRequeues(t *testing.T) {
	w := NewEventWorker(failingWriter{}, false, nil)
	err := w.HandleEvent(context.Background(), resolutionEvent(t))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "stdout closed"))
}
