// Package worker consumes the events the assistant publishes.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/core"
	"finbot/internal/log"
)

// Stats counts handled events.
type Stats struct {
	Resolutions int
	Refreshes   int
	Dropped     int
	ByQuality   map[string]int
}

// EventWorker writes one line per event to out, as text or as JSON.
type EventWorker struct {
	out    io.Writer
	json   bool
	logger *log.Logger

	mu    sync.Mutex
	stats Stats
}

func NewEventWorker(out io.Writer, jsonOutput bool, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Default(log.ComponentAMQP)
	}
	return &EventWorker{
		out:    out,
		json:   jsonOutput,
		logger: logger,
		stats:  Stats{ByQuality: make(map[string]int)},
	}
}

// HandleEvent is an amqp consume handler. Events that cannot be decoded are
// logged and acknowledged so they do not loop; only write failures are
// returned, which requeues the delivery.
func (w *EventWorker) HandleEvent(ctx context.Context, ev amqp.Event) error {
	payload, err := ev.Decode()
	if err != nil {
		w.logger.WarnContext(ctx, "Dropping event",
			log.FieldRoutingKey, ev.RoutingKey, log.FieldError, err)
		w.count(func(s *Stats) { s.Dropped++ })
		return nil
	}

	var line string
	if w.json {
		b, err := json.Marshal(struct {
			RoutingKey string          `json:"routing_key"`
			Event      json.RawMessage `json:"event"`
		}{ev.RoutingKey, ev.Body})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		line = string(b)
	}

	switch e := payload.(type) {
	case *amqp.ResolutionCompleted:
		w.count(func(s *Stats) {
			s.Resolutions++
			s.ByQuality[e.Quality]++
		})
		if !w.json {
			line = formatResolution(ev, e)
		}
	case *amqp.BalancesRefreshed:
		w.count(func(s *Stats) { s.Refreshes++ })
		if !w.json {
			line = formatRefresh(ev, e)
		}
	}

	if _, err := fmt.Fprintln(w.out, line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (w *EventWorker) count(f func(*Stats)) {
	w.mu.Lock()
	f(&w.stats)
	w.mu.Unlock()
}

// Stats returns a copy of the counters.
func (w *EventWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.ByQuality = make(map[string]int, len(w.stats.ByQuality))
	for k, v := range w.stats.ByQuality {
		s.ByQuality[k] = v
	}
	return s
}

func stamp(ev amqp.Event, fallback time.Time) string {
	t := ev.Timestamp
	if t.IsZero() {
		t = fallback
	}
	return t.UTC().Format(time.RFC3339)
}

func formatResolution(ev amqp.Event, e *amqp.ResolutionCompleted) string {
	line := fmt.Sprintf("%s %s %02d/%d quality=%s", stamp(ev, e.Timestamp), ev.RoutingKey, e.Month, e.Year, e.Quality)
	if e.Strategy != "" {
		line += " strategy=" + e.Strategy
	}
	line += fmt.Sprintf(" bytes=%d", e.Bytes)
	if e.Diagnostic != "" {
		line += fmt.Sprintf(" diagnostic=%q", e.Diagnostic)
	}
	return line
}

func formatRefresh(ev amqp.Event, e *amqp.BalancesRefreshed) string {
	total := core.Money{Cents: e.TotalCents}
	return fmt.Sprintf("%s %s records=%d total=%q conversion_failures=%d",
		stamp(ev, e.Timestamp), ev.RoutingKey, e.Records, total.FormatBRL(), e.ConversionFailures)
}
