package boq

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Reader parses workbooks. The zero value is usable.
type Reader struct {
	Logger *slog.Logger
	// NewID assigns IDs to imported price items that have none.
	NewID func() string
}

// NewReader creates a Reader that logs to logger.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{Logger: logger}
}

func (r *Reader) logger() *slog.Logger {
	return common.LoggerOrDefault(r.Logger)
}

func (r *Reader) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// sheet is one worksheet with its detected layout.
type sheet struct {
	name   string
	rows   [][]string
	cols   columns
	header int
}

// sheets opens the workbook and returns every sheet that has a header row.
func (r *Reader) sheets(src io.Reader) ([]sheet, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.logger().Warn("Failed to close workbook", "error", cerr)
		}
	}()

	var out []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		header := findHeaderRow(rows)
		if header < 0 {
			r.logger().Debug("Skipping sheet without header row", "sheet", name)
			continue
		}
		cols := detectColumns(rows[header])
		r.logger().Debug("Detected sheet layout",
			"sheet", name,
			"header_row", header+1,
			"description_col", cols.description,
			"quantity_col", cols.quantity,
			"unit_col", cols.unit)
		out = append(out, sheet{name: name, rows: rows, cols: cols, header: header})
	}
	if len(out) == 0 {
		return nil, ErrNoHeaderRow
	}
	return out, nil
}

// ReadBOQ returns the line items of a bill of quantities. Rows with a
// quantity or unit are items; short rows without either are section headers
// and become the context headers of the items below them. Row numbers are
// one-based spreadsheet rows, offset by 100000 per additional sheet so they
// stay unique across the workbook.
func (r *Reader) ReadBOQ(src io.Reader) ([]model.MatchQuery, error) {
	sheets, err := r.sheets(src)
	if err != nil {
		return nil, err
	}

	var items []model.MatchQuery
	for si, sh := range sheets {
		var sections hierarchy
		before := len(items)
		for i := sh.header + 1; i < len(sh.rows); i++ {
			row := sh.rows[i]
			desc := cell(row, sh.cols.description)
			if desc == "" {
				continue
			}
			qty, hasQty := parseNumber(cell(row, sh.cols.quantity))
			hasQty = hasQty && qty > 0
			unit := cell(row, sh.cols.unit)

			if !hasQty && unit == "" {
				if filled(row) <= 3 {
					sections.push(desc)
				}
				continue
			}

			items = append(items, model.MatchQuery{
				Description:    desc,
				Unit:           unit,
				Code:           cell(row, sh.cols.code),
				ContextHeaders: sections.snapshot(),
				Quantity:       qty,
				Row:            si*100000 + i + 1,
			})
		}
		r.logger().Info("Read BOQ sheet", "sheet", sh.name, "items", len(items)-before)
	}
	return items, nil
}

// ReadPriceList returns the priced items of a price list workbook. Rows
// without a rate act as category headings when the sheet has no category
// column.
func (r *Reader) ReadPriceList(src io.Reader) ([]model.PriceItem, error) {
	sheets, err := r.sheets(src)
	if err != nil {
		return nil, err
	}

	var items []model.PriceItem
	skipped := 0
	for _, sh := range sheets {
		if sh.cols.rate < 0 {
			r.logger().Warn("Sheet has no rate column", "sheet", sh.name)
			continue
		}
		heading := ""
		for i := sh.header + 1; i < len(sh.rows); i++ {
			row := sh.rows[i]
			desc := cell(row, sh.cols.description)
			if desc == "" {
				continue
			}
			rate, ok := parseNumber(cell(row, sh.cols.rate))
			if !ok {
				if filled(row) <= 2 {
					heading = desc
				} else {
					skipped++
				}
				continue
			}
			if rate < 0 {
				skipped++
				continue
			}

			category := cell(row, sh.cols.category)
			if category == "" && sh.cols.category < 0 {
				category = heading
			}
			items = append(items, model.PriceItem{
				ID:          r.newID(),
				Code:        cell(row, sh.cols.code),
				Description: desc,
				Category:    category,
				Subcategory: cell(row, sh.cols.subcategory),
				Unit:        cell(row, sh.cols.unit),
				Keywords:    splitKeywords(cell(row, sh.cols.keywords)),
				Rate:        rate,
			})
		}
	}

	r.logger().Info("Read price list", "items", len(items), "skipped", skipped)
	return items, nil
}
