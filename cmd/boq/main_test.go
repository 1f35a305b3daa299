package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/boq-price-match/internal/boq"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func execute(t *testing.T, db string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", db, "--log-level", "error"}, args...))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestCLI_ImportMatchLearnAndJob(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "boq.db")

	prices := filepath.Join(dir, "prices.xlsx")
	writeWorkbook(t, prices, [][]any{
		{"Code", "Description", "Unit", "Rate"},
		{"", "Electrical"},
		{"EL-104", "Armoured cable 4mm2 2 core XLPE/SWA", "m", 12.5},
		{"", "Earthworks"},
		{"EXC-010", "Excavation in trenches not exceeding 1.5m deep", "m3", 18},
		{"", "Metalwork"},
		{"GW001", "Galvanised steel guard rail", "m", 85},
	})

	out := execute(t, db, "migrate")
	assert.Empty(t, out)

	out = execute(t, db, "import", prices)
	assert.Contains(t, out, "Imported 3 price items")

	out = execute(t, db, "match", "-d", "4mm2 armoured cable XLPE", "-u", "m", "--json")
	var res model.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.ChosenItem)
	assert.Equal(t, "EL-104", res.ChosenItem.Code)
	assert.Equal(t, "Electrical", res.ChosenItem.Category)

	out = execute(t, db, "patterns", "learn", "-d", "Balcony balustrade", "--context", "Metalwork", "--code", "GW001")
	assert.Contains(t, out, "GW001")

	out = execute(t, db, "patterns", "list")
	assert.Contains(t, out, "balcony balustrade")

	bill := filepath.Join(dir, "bill.xlsx")
	writeWorkbook(t, bill, [][]any{
		{"Ref", "Description", "Qty", "Unit"},
		{"", "Metalwork"},
		{"A", "Balcony balustrade", 12, "m"},
		{"", "Earthworks"},
		{"B", "Excavate trench n.e. 1.5m deep", 40, "m3"},
	})
	priced := filepath.Join(dir, "priced.xlsx")

	out = execute(t, db, "job", bill, "--no-progress", "-o", priced)
	assert.Contains(t, out, "Results written to "+priced)
	assert.Contains(t, out, "completed")

	f, err := os.Open(priced)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	wb, err := excelize.OpenReader(f)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows(boq.ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "GW001", rows[1][4])
	assert.Equal(t, "LEARNED", rows[1][9])

	out = execute(t, db, "jobs")
	assert.Contains(t, out, "completed")
}

func TestCLI_Version(t *testing.T) {
	out := execute(t, filepath.Join(t.TempDir(), "boq.db"), "version")
	assert.Equal(t, "boq dev\n", out)
}
