package balances

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/sheets"
)

const (
	DefaultSurface       = "Saldos"
	DefaultAccountColumn = "CONTA"
	DefaultBalanceColumn = "SALDO ATUAL (R$)"
)

// ErrMissingColumns is returned when the balances table lacks the account
// or the balance header.
var ErrMissingColumns = errors.New("balances table is missing required columns")

// SheetFetcher reads balances from a spreadsheet tab. The first row that
// carries both headers is the header row; rows above it are ignored.
type SheetFetcher struct {
	Service       sheets.Service
	Workspace     string
	Surface       string
	AccountColumn string
	BalanceColumn string
	Logger        *log.Logger
}

var _ Fetcher = (*SheetFetcher)(nil)

// NewSheetFetcher returns a fetcher for the default "Saldos" layout.
func NewSheetFetcher(svc sheets.Service, workspace string) *SheetFetcher {
	return &SheetFetcher{
		Service:       svc,
		Workspace:     workspace,
		Surface:       DefaultSurface,
		AccountColumn: DefaultAccountColumn,
		BalanceColumn: DefaultBalanceColumn,
	}
}

func (f *SheetFetcher) Fetch(ctx context.Context) ([]core.BalanceRecord, error) {
	ws, err := f.Service.OpenWorkspace(ctx, f.Workspace)
	if err != nil {
		return nil, err
	}
	surface, err := ws.Surface(ctx, orDefault(f.Surface, DefaultSurface))
	if err != nil {
		return nil, err
	}
	rows, err := surface.Rows(ctx)
	if err != nil {
		return nil, err
	}
	records, err := f.parse(rows)
	if err != nil {
		return nil, fmt.Errorf("surface %q: %w", surface.Name(), err)
	}
	if n := countFailures(records); n > 0 {
		f.logger().WarnContext(ctx, "Balance values could not be converted",
			log.FieldSurface, surface.Name(), log.FieldFailures, n)
	}
	return records, nil
}

func (f *SheetFetcher) parse(rows [][]any) ([]core.BalanceRecord, error) {
	accountName := orDefault(f.AccountColumn, DefaultAccountColumn)
	balanceName := orDefault(f.BalanceColumn, DefaultBalanceColumn)
	accountHeader, balanceHeader := normalizeHeader(accountName), normalizeHeader(balanceName)

	headerRow, accountCol, balanceCol := -1, -1, -1
	for i, row := range rows {
		accountCol, balanceCol = -1, -1
		for j, cell := range row {
			switch normalizeHeader(cellText(cell)) {
			case accountHeader:
				if accountCol < 0 {
					accountCol = j
				}
			case balanceHeader:
				if balanceCol < 0 {
					balanceCol = j
				}
			}
		}
		if accountCol >= 0 && balanceCol >= 0 {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, fmt.Errorf("%w: want %q and %q", ErrMissingColumns, accountName, balanceName)
	}

	var out []core.BalanceRecord
	for _, row := range rows[headerRow+1:] {
		account := strings.TrimSpace(cellText(at(row, accountCol)))
		if account == "" {
			continue
		}
		raw := at(row, balanceCol)
		money, ok := core.ParseBRL(raw)
		rec := core.BalanceRecord{Account: account, Balance: money}
		if !ok {
			rec.Balance = core.Money{}
			rec.ConversionFailed = true
			rec.Raw = cellText(raw)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *SheetFetcher) logger() *log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.Default(log.ComponentBalances)
}

// normalizeHeader compares headers ignoring case and repeated whitespace.
func normalizeHeader(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func at(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func countFailures(records []core.BalanceRecord) int {
	n := 0
	for _, r := range records {
		if r.ConversionFailed {
			n++
		}
	}
	return n
}
