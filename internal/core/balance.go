package core

import "time"

type (
	// BalanceRecord is one row of the balances sheet.
	BalanceRecord struct {
		Account string
		Balance Money
		// Raw keeps the original cell text when the conversion failed.
		Raw              string
		ConversionFailed bool
	}

	// Snapshot is a complete copy of the balances table from a single fetch.
	Snapshot struct {
		Records   []BalanceRecord
		FetchedAt time.Time
	}
)

func (s Snapshot) Len() int {
	return len(s.Records)
}

// Total sums every record; failed conversions count as zero.
func (s Snapshot) Total() Money {
	var total Money
	for _, r := range s.Records {
		total = total.Add(r.Balance)
	}
	return total
}

func (s Snapshot) ConversionFailures() int {
	n := 0
	for _, r := range s.Records {
		if r.ConversionFailed {
			n++
		}
	}
	return n
}

// Clone returns a snapshot that shares nothing with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{FetchedAt: s.FetchedAt}
	if s.Records != nil {
		out.Records = append([]BalanceRecord(nil), s.Records...)
	}
	return out
}
