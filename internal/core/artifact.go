package core

import (
	"strings"
	"time"
)

// Quality ranks how close a retrieved artifact is to the ideal chart.
type Quality int

const (
	QualityNoneFound Quality = iota
	QualityTabular
	QualityRenderedPage
	QualityChart
)

func (q Quality) String() string {
	switch q {
	case QualityChart:
		return "chart"
	case QualityRenderedPage:
		return "rendered_page"
	case QualityTabular:
		return "tabular"
	default:
		return "none"
	}
}

// ParseQuality is the inverse of Quality.String; unknown names map to QualityNoneFound.
func ParseQuality(s string) Quality {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "chart":
		return QualityChart
	case "rendered_page":
		return QualityRenderedPage
	case "tabular":
		return QualityTabular
	default:
		return QualityNoneFound
	}
}

// Rank orders tiers; a higher rank is a better artifact.
func (q Quality) Rank() int {
	return int(q)
}

func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

type (
	// Attempt records one step of a resolution and why it did not produce an artifact.
	Attempt struct {
		Strategy string
		Err      string
	}

	// Outcome is the result of resolving a period into an artifact.
	// Quality is QualityNoneFound exactly when Artifact is empty.
	Outcome struct {
		Period       Period
		Artifact     []byte
		ContentType  string
		Quality      Quality
		Strategy     string
		Diagnostic   string
		Repositioned bool
		Attempts     []Attempt
	}
)

func (o Outcome) Found() bool {
	return o.Quality != QualityNoneFound && len(o.Artifact) > 0
}

// Resolution is the journal entry kept for one resolve request.
type Resolution struct {
	ID           string
	Text         string
	Period       Period
	Quality      Quality
	Strategy     string
	Diagnostic   string
	Bytes        int
	Repositioned bool
	CreatedAt    time.Time
}

func NewResolution(id, text string, o Outcome, at time.Time) Resolution {
	return Resolution{
		ID:           id,
		Text:         text,
		Period:       o.Period,
		Quality:      o.Quality,
		Strategy:     o.Strategy,
		Diagnostic:   o.Diagnostic,
		Bytes:        len(o.Artifact),
		Repositioned: o.Repositioned,
		CreatedAt:    at,
	}
}
