package balances

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
	"finbot/internal/sheets"
	"finbot/internal/sheets/memory"
)

func newBalancesService(rows [][]any) (*memory.Service, *memory.Surface) {
	surface := memory.NewSurface("1", "Saldos").SetRows(rows)
	return memory.NewService(memory.NewWorkspace("book", memory.NewSurface("0", "Home"), surface)), surface
}

func TestSheetFetcherReadsRecords(t *testing.T) {
	svc, _ := newBalancesService([][]any{
		{"Resumo de contas"},
		{"conta", "  saldo   atual (r$) ", "OBS"},
		{"Conta Corrente", "R$ 1.234,56", ""},
		{"Poupança", 1000.5, "x"},
		{"", "R$ 9,99"},
		{"Investimentos", "abc"},
		{"Carteira"},
	})

	records, err := NewSheetFetcher(svc, "book").Fetch(context.Background())
	require.NoError(t, err)

	want := []core.BalanceRecord{
		{Account: "Conta Corrente", Balance: core.Money{Cents: 123456}},
		{Account: "Poupança", Balance: core.Money{Cents: 100050}},
		{Account: "Investimentos", Raw: "abc", ConversionFailed: true},
		{Account: "Carteira", ConversionFailed: true},
	}
	assert.Equal(t, want, records)
}

func TestSheetFetcherMissingColumns(t *testing.T) {
	svc, _ := newBalancesService([][]any{
		{"CONTA", "VALOR"},
		{"Conta Corrente", "R$ 10,00"},
	})

	_, err := NewSheetFetcher(svc, "book").Fetch(context.Background())
	require.ErrorIs(t, err, ErrMissingColumns)
}

func TestSheetFetcherPropagatesFetchErrors(t *testing.T) {
	svc, surface := newBalancesService(nil)
	surface.FailRows(errors.New("rate limited"))

	_, err := NewSheetFetcher(svc, "book").Fetch(context.Background())
	var fe *sheets.FetchError
	require.ErrorAs(t, err, &fe)

	f := NewSheetFetcher(svc, "book")
	f.Surface = "Balances"
	_, err = f.Fetch(context.Background())
	assert.True(t, sheets.IsNotFound(err))
}

func TestCacheOverSheetFetcher(t *testing.T) {
	svc, surface := newBalancesService([][]any{
		{"CONTA", "SALDO ATUAL (R$)"},
		{"Conta Corrente", "R$ 100,00"},
		{"Cartão", "-R$ 40,00"},
	})
	c := New(NewSheetFetcher(svc, "book"))

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: 6000}, snap.Total())

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, surface.Calls().Rows)
}
