package period

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"finbot/internal/core"
)

func TestParseNumericFormats(t *testing.T) {
	for year := 2000; year <= 2030; year += 7 {
		for month := 1; month <= 12; month++ {
			inputs := []string{
				fmt.Sprintf("%d/%02d", year, month),
				fmt.Sprintf("%d-%02d", year, month),
				fmt.Sprintf("%02d/%d", month, year),
				fmt.Sprintf("%02d-%d", month, year),
				fmt.Sprintf("%d %02d", year, month),
				fmt.Sprintf("%02d %d", month, year),
				fmt.Sprintf("%d/%d", year, month),
				fmt.Sprintf("%d %d", month, year),
			}
			for _, in := range inputs {
				got := Parse(in)
				if got.Year != year || got.Month != month {
					t.Fatalf("Parse(%q) = %d/%d, want %d/%d", in, got.Month, got.Year, month, year)
				}
			}
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Result
	}{
		{"2025/08", Result{2025, 8, RuleYearSepMonth}},
		{"agosto 2025", Result{2025, 8, RuleMonthName}},
		{"08/2025", Result{2025, 8, RuleMonthSepYear}},
		{"2025-08", Result{2025, 8, RuleYearSepMonth}},
		{"08-2025", Result{2025, 8, RuleMonthSepYear}},
		{"2025 08", Result{2025, 8, RuleYearSpaceMonth}},
		{"08 2025", Result{2025, 8, RuleMonthSpaceYear}},
		{"setembro 2024", Result{2024, 9, RuleMonthName}},
		{"2024/09", Result{2024, 9, RuleYearSepMonth}},
		{"09/2024", Result{2024, 9, RuleMonthSepYear}},
		{"  Março de 2023 ", Result{2023, 3, RuleMonthName}},
		{"MARÇO 2023", Result{2023, 3, RuleMonthName}},
		{"gastos de dez/2024", Result{2024, 12, RuleMonthName}},
		{"relatório 2024 fev", Result{2024, 2, RuleMonthName}},
		{"quero ver o gráfico de 2025/1 por favor", Result{2025, 1, RuleYearSepMonth}},
		{"xyz", Result{}},
		{"", Result{}},
		{"agosto", Result{}},
		{"2025", Result{}},
		{"setembro 20245", Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Parse(tt.in)); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestNumericRulesWinOverMonthNames(t *testing.T) {
	// "março" names March but the numeric pair says September.
	got := Parse("março 09 2024")
	if got.Month != 9 || got.Year != 2024 || got.Rule != RuleMonthSpaceYear {
		t.Fatalf("expected numeric rule to win, got %+v", got)
	}
	got = Parse("09 2024")
	if got.Month != 9 || got.Year != 2024 {
		t.Fatalf("expected 9/2024, got %+v", got)
	}
	got = Parse("dezembro 2024/03")
	if got.Month != 3 || got.Rule != RuleYearSepMonth {
		t.Fatalf("expected yyyy/mm rule to win, got %+v", got)
	}
}

func TestMonthWordPreferredOverSubstring(t *testing.T) {
	// "mar" is a substring of "marketing" but "dezembro" is a whole word.
	got := Parse("marketing dezembro 2024")
	if got.Month != 12 {
		t.Fatalf("expected december, got %+v", got)
	}
	// Without a whole word, substring matching still applies.
	got = Parse("xsetembro 2024")
	if got.Month != 9 || got.Year != 2024 {
		t.Fatalf("expected 9/2024, got %+v", got)
	}
}

func TestDigitRunsAreNotYears(t *testing.T) {
	if got := Parse("12345/06"); !got.Unparsed() {
		t.Fatalf("substring of a longer digit run used as year: %+v", got)
	}
	if got := Parse("2024/123"); got.Rule == RuleYearSepMonth {
		t.Fatalf("three digit month accepted: %+v", got)
	}
}

func TestParsePeriod(t *testing.T) {
	p, res, err := ParsePeriod("setembro 2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != (core.Period{Year: 2024, Month: 9}) || res.Rule != RuleMonthName {
		t.Fatalf("unexpected period %v rule %v", p, res.Rule)
	}

	_, _, err = ParsePeriod("xyz")
	if !errors.Is(err, core.ErrUnparsed) {
		t.Fatalf("expected ErrUnparsed, got %v", err)
	}

	for _, in := range []string{"1999/05", "2031/05", "2024/00", "2024/13", "13/2024"} {
		_, res, err := ParsePeriod(in)
		if res.Unparsed() {
			t.Errorf("%q: should be recognised before validation", in)
		}
		if !errors.Is(err, core.ErrPeriodOutOfRange) || errors.Is(err, core.ErrUnparsed) {
			t.Errorf("%q: expected out of range error, got %v", in, err)
		}
		var pe *core.ParseError
		if !errors.As(err, &pe) || pe.Text != in {
			t.Errorf("%q: expected error to carry the input text", in)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Março ÁÉÍÓÚ ç "); got != "marco aeiou c" {
		t.Fatalf("Normalize = %q", got)
	}
}

func TestMonthName(t *testing.T) {
	if got := MonthName(3); got != "Março" {
		t.Errorf("MonthName(3) = %q", got)
	}
	if got := MonthName(13); got != "" {
		t.Errorf("MonthName(13) = %q", got)
	}
	for m := 1; m <= 12; m++ {
		r := Parse(MonthName(m) + " 2024")
		if r.Month != m || r.Year != 2024 {
			t.Errorf("round trip of %q = %+v", MonthName(m), r)
		}
	}
}
