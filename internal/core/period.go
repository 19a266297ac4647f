package core

import (
	"errors"
	"fmt"
)

const (
	MinYear = 2000
	MaxYear = 2030
)

type (
	// Period is a reporting month. Build it with NewPeriod so the range is checked.
	Period struct {
		Year  int
		Month int
	}

	// ParseFailure tells an unrecognised text apart from a recognised but out-of-range one.
	ParseFailure int

	// ParseError is returned when user text cannot become a Period.
	ParseError struct {
		Text   string
		Reason ParseFailure
		Year   int
		Month  int
	}
)

const (
	Unrecognized ParseFailure = iota + 1
	OutOfRange
)

var (
	ErrUnparsed         = errors.New("period not recognized")
	ErrPeriodOutOfRange = errors.New("period out of range")
)

// NewPeriod validates year and month and returns the Period.
func NewPeriod(year, month int) (Period, error) {
	if year < MinYear || year > MaxYear || month < 1 || month > 12 {
		return Period{}, &ParseError{Reason: OutOfRange, Year: year, Month: month}
	}
	return Period{Year: year, Month: month}, nil
}

// String renders the period as MM/YYYY.
func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

// Key renders the period as YYYY-MM, suitable for cache keys and sheet names.
func (p Period) Key() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (e *ParseError) Error() string {
	switch e.Reason {
	case OutOfRange:
		return fmt.Sprintf("period %02d/%d out of range (year %d-%d, month 1-12)", e.Month, e.Year, MinYear, MaxYear)
	default:
		if e.Text == "" {
			return "period not recognized"
		}
		return fmt.Sprintf("period not recognized in %q", e.Text)
	}
}

// Is lets callers match on ErrUnparsed and ErrPeriodOutOfRange.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrUnparsed:
		return e.Reason == Unrecognized
	case ErrPeriodOutOfRange:
		return e.Reason == OutOfRange
	}
	return false
}
