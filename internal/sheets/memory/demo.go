package memory

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finbot/internal/sheets"
)

// Demo builds a workspace named name that mirrors the layout of the real
// spreadsheet: a "Home" tab with cash-flow charts, a balances tab and a few
// monthly tabs. Balances come from base/balances.csv when present.
func Demo(name, base string) *Service {
	now := time.Now()
	home := NewSurface("0", "Home",
		NewChart("Fluxo de Caixa", placeholderPNG(color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff})),
		NewChart("Receitas x Despesas", placeholderPNG(color.RGBA{R: 0x15, G: 0x65, B: 0xc0, A: 0xff})),
	)
	balances := NewSurface("1", "Saldos").SetRows(readBalances(filepath.Join(base, "balances.csv")))

	ws := NewWorkspace(name, home, balances)
	for i := 0; i < 3; i++ {
		m := now.AddDate(0, -i, 0)
		id := fmt.Sprintf("%d", 10+i)
		tab := NewSurface(id, fmt.Sprintf("%d-%02d", m.Year(), int(m.Month())),
			NewChart(fmt.Sprintf("Despesas %02d/%d", int(m.Month()), m.Year()), placeholderPNG(color.RGBA{R: 0xc6, G: 0x28, B: 0x28, A: 0xff})),
		)
		ws.AddSurface(tab)
		ws.SetExport(id, sheets.FormatTabular, []byte("Categoria,Valor\nMercado,\"R$ 850,00\"\n"))
	}
	ws.SetExport("0", sheets.FormatImage, placeholderPNG(color.RGBA{R: 0x42, G: 0x42, B: 0x42, A: 0xff}))
	ws.SetExport("0", sheets.FormatTabular, []byte("Indicador,Valor\nSaldo,\"R$ 0,00\"\n"))
	return NewService(ws)
}

func readBalances(path string) [][]any {
	header := []any{"CONTA", "SALDO ATUAL (R$)"}
	f, err := os.Open(path)
	if err != nil {
		return [][]any{
			header,
			{"Conta Corrente", 4250.75},
			{"Poupança", "R$ 12.000,00"},
			{"Cartão de Crédito", "-R$ 1.380,40"},
		}
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return [][]any{header}
	}
	out := make([][]any, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 || strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			continue
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = strings.TrimSpace(v)
		}
		out = append(out, row)
	}
	return out
}

func placeholderPNG(c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
