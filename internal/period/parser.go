// Package period turns free-form user text into a reporting month.
//
// Parse is pure: it returns which rule matched and never logs. Callers that
// want tracing log the returned Result.
package period

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"finbot/internal/core"
)

// Rule identifies which pattern produced a Result.
type Rule int

const (
	RuleNone Rule = iota
	RuleYearSepMonth
	RuleMonthSepYear
	RuleYearSpaceMonth
	RuleMonthSpaceYear
	RuleMonthName
)

func (r Rule) String() string {
	switch r {
	case RuleYearSepMonth:
		return "yyyy/mm"
	case RuleMonthSepYear:
		return "mm/yyyy"
	case RuleYearSpaceMonth:
		return "yyyy mm"
	case RuleMonthSpaceYear:
		return "mm yyyy"
	case RuleMonthName:
		return "month name"
	default:
		return "none"
	}
}

// Result is either a (Year, Month) pair or Unparsed (Rule == RuleNone).
// Values are not range checked; see ParsePeriod.
type Result struct {
	Year  int
	Month int
	Rule  Rule
}

func (r Result) Unparsed() bool {
	return r.Rule == RuleNone
}

// Digit groups are fenced by non-digits so "12345/06" never yields a year.
var numericRules = []struct {
	rule      Rule
	re        *regexp.Regexp
	yearFirst bool
}{
	{RuleYearSepMonth, regexp.MustCompile(`(?:^|\D)(\d{4})[/-](\d{1,2})(?:\D|$)`), true},
	{RuleMonthSepYear, regexp.MustCompile(`(?:^|\D)(\d{1,2})[/-](\d{4})(?:\D|$)`), false},
	{RuleYearSpaceMonth, regexp.MustCompile(`(?:^|\D)(\d{4})\s+(\d{1,2})(?:\D|$)`), true},
	{RuleMonthSpaceYear, regexp.MustCompile(`(?:^|\D)(\d{1,2})\s+(\d{4})(?:\D|$)`), false},
}

var yearToken = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

// monthNames lists full names before abbreviations, in calendar order, already
// accent-stripped. The order is the tie-break for substring matches.
var monthNames = []struct {
	name  string
	month int
}{
	{"janeiro", 1}, {"jan", 1},
	{"fevereiro", 2}, {"fev", 2},
	{"marco", 3}, {"mar", 3},
	{"abril", 4}, {"abr", 4},
	{"maio", 5}, {"mai", 5},
	{"junho", 6}, {"jun", 6},
	{"julho", 7}, {"jul", 7},
	{"agosto", 8}, {"ago", 8},
	{"setembro", 9}, {"set", 9},
	{"outubro", 10}, {"out", 10},
	{"novembro", 11}, {"nov", 11},
	{"dezembro", 12}, {"dez", 12},
}

var monthByWord = func() map[string]int {
	m := make(map[string]int, len(monthNames))
	for _, mn := range monthNames {
		m[mn.name] = mn.month
	}
	return m
}()

// Parse extracts a year and month from text. Numeric patterns are tried
// before month names; the first matching rule wins.
func Parse(text string) Result {
	clean := Normalize(text)
	if clean == "" {
		return Result{}
	}

	for _, nr := range numericRules {
		m := nr.re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if nr.yearFirst {
			return Result{Year: a, Month: b, Rule: nr.rule}
		}
		return Result{Year: b, Month: a, Rule: nr.rule}
	}

	month := findMonthName(clean)
	if month == 0 {
		return Result{}
	}
	y := yearToken.FindStringSubmatch(clean)
	if y == nil {
		return Result{}
	}
	year, _ := strconv.Atoi(y[1])
	return Result{Year: year, Month: month, Rule: RuleMonthName}
}

// findMonthName prefers a word that is exactly a month name or abbreviation;
// otherwise it falls back to substring matching in calendar order.
func findMonthName(clean string) int {
	words := strings.FieldsFunc(clean, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if m, ok := monthByWord[w]; ok {
			return m
		}
	}
	for _, mn := range monthNames {
		if strings.Contains(clean, mn.name) {
			return mn.month
		}
	}
	return 0
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize trims, lower-cases and removes diacritics ("Março" -> "marco").
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// ParsePeriod parses text and validates the range. Unrecognised text yields a
// *core.ParseError matching core.ErrUnparsed; a recognised but invalid
// period yields one matching core.ErrPeriodOutOfRange.
func ParsePeriod(text string) (core.Period, Result, error) {
	res := Parse(text)
	if res.Unparsed() {
		return core.Period{}, res, &core.ParseError{Text: text, Reason: core.Unrecognized}
	}
	p, err := core.NewPeriod(res.Year, res.Month)
	if err != nil {
		var pe *core.ParseError
		if errors.As(err, &pe) {
			pe.Text = text
		}
		return core.Period{}, res, err
	}
	return p, res, nil
}

// Examples lists the accepted formats, shown to users after a parse failure.
func Examples() []string {
	return []string{"2025/08", "08/2025", "2025-08", "08-2025", "2025 08", "agosto 2025", "set 2024"}
}

var displayNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// MonthName returns the capitalised Portuguese name of month m, or "" when m
// is not in 1..12.
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return displayNames[m-1]
}
