package resolver

import (
	"strings"

	"finbot/internal/period"
)

// Category is the kind of data a chart shows, judged by its title.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryCashFlow
	CategoryInflow
	CategoryOutflow
)

func (c Category) String() string {
	switch c {
	case CategoryCashFlow:
		return "cash_flow"
	case CategoryInflow:
		return "inflow"
	case CategoryOutflow:
		return "outflow"
	default:
		return "generic"
	}
}

// Keywords are matched against the accent-stripped, lower-cased title.
// Cash flow comes first: those titles often name both inflows and outflows.
var categoryKeywords = []struct {
	category Category
	words    []string
}{
	{CategoryCashFlow, []string{"fluxo de caixa", "fluxo", "cash flow", "cashflow", "saldo", "balanco"}},
	{CategoryInflow, []string{"receita", "entrada", "income", "ganho", "renda"}},
	{CategoryOutflow, []string{"despesa", "saida", "gasto", "expense", "custo"}},
}

// Classify maps a chart title onto a Category. Titles with no known keyword
// are CategoryGeneric.
func Classify(title string) Category {
	t := period.Normalize(title)
	if strings.TrimSpace(t) == "" {
		return CategoryGeneric
	}
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(t, w) {
				return ck.category
			}
		}
	}
	return CategoryGeneric
}
