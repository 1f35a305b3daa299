package boq

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/boq-price-match/internal/model"
)

// ResultsSheet is the name of the sheet WriteResults produces.
const ResultsSheet = "Matches"

var resultHeaders = []string{
	"Row",
	"Description",
	"Quantity",
	"Unit",
	"Matched Code",
	"Matched Description",
	"Rate",
	"Amount",
	"Confidence",
	"Method",
	"Notes",
}

// WriteResults writes one row per query with its match. Results are joined
// to queries by row number; queries without a result are written unpriced.
func WriteResults(w io.Writer, queries []model.MatchQuery, results []model.MatchResult) error {
	byRow := make(map[int]model.MatchResult, len(results))
	for _, r := range results {
		byRow[r.Row] = r
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return fmt.Errorf("failed to name results sheet: %w", err)
	}
	if err := f.SetSheetRow(ResultsSheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(resultHeaders), 1)
	if err := f.SetCellStyle(ResultsSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, q := range queries {
		values := []any{q.Row, q.Description, q.Quantity, q.Unit}
		if res, ok := byRow[q.Row]; ok {
			values = append(values, resultCells(q, res)...)
		}
		cellName, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ResultsSheet, cellName, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", q.Row, err)
		}
	}

	_ = f.SetColWidth(ResultsSheet, "B", "B", 48)
	_ = f.SetColWidth(ResultsSheet, "E", "E", 14)
	_ = f.SetColWidth(ResultsSheet, "F", "F", 48)
	_ = f.SetColWidth(ResultsSheet, "K", "K", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func resultCells(q model.MatchQuery, res model.MatchResult) []any {
	notes := strings.Join(res.Warnings, "; ")
	if res.ChosenItem == nil {
		if notes == "" {
			notes = "no confident match"
		}
		return []any{"", "", "", "", res.Confidence, res.Method, notes}
	}
	item := res.ChosenItem
	return []any{
		item.Code,
		item.Description,
		item.Rate,
		item.Rate * q.Quantity,
		res.Confidence,
		res.Method,
		notes,
	}
}
