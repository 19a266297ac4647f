package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finbot/internal/core"
)

// Routing keys on the events exchange.
const (
	RoutingResolutionCompleted = "resolution.completed"
	RoutingBalancesRefreshed   = "balances.refreshed"
)

// ResolutionCompleted is published after every artifact resolution,
// successful or not.
type ResolutionCompleted struct {
	ID           string    `json:"id"`
	Text         string    `json:"text,omitempty"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	Quality      string    `json:"quality"`
	Strategy     string    `json:"strategy,omitempty"`
	Diagnostic   string    `json:"diagnostic"`
	Bytes        int       `json:"bytes"`
	Repositioned bool      `json:"repositioned"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewResolutionCompleted builds the event for a journal entry.
func NewResolutionCompleted(r core.Resolution) *ResolutionCompleted {
	return &ResolutionCompleted{
		ID:           r.ID,
		Text:         r.Text,
		Year:         r.Period.Year,
		Month:        r.Period.Month,
		Quality:      r.Quality.String(),
		Strategy:     r.Strategy,
		Diagnostic:   r.Diagnostic,
		Bytes:        r.Bytes,
		Repositioned: r.Repositioned,
		Timestamp:    r.CreatedAt,
	}
}

// BalancesRefreshed is published after a successful balances refresh.
type BalancesRefreshed struct {
	Records            int       `json:"records"`
	ConversionFailures int       `json:"conversion_failures"`
	TotalCents         int64     `json:"total_cents"`
	FetchedAt          time.Time `json:"fetched_at"`
	Timestamp          time.Time `json:"timestamp"`
}

func NewBalancesRefreshed(s core.Snapshot) *BalancesRefreshed {
	return &BalancesRefreshed{
		Records:            s.Len(),
		ConversionFailures: s.ConversionFailures(),
		TotalCents:         s.Total().Cents,
		FetchedAt:          s.FetchedAt,
		Timestamp:          time.Now(),
	}
}

// Event is a delivery as seen by consumers.
type Event struct {
	RoutingKey string
	Body       []byte
	Timestamp  time.Time
}

// Decode unmarshals the body into the type matching the routing key.
func (e Event) Decode() (any, error) {
	var v any
	switch e.RoutingKey {
	case RoutingResolutionCompleted:
		v = &ResolutionCompleted{}
	case RoutingBalancesRefreshed:
		v = &BalancesRefreshed{}
	default:
		return nil, fmt.Errorf("unknown routing key %q", e.RoutingKey)
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.RoutingKey, err)
	}
	return v, nil
}
