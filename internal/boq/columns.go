// Package boq reads price lists and bills of quantities from .xlsx
// workbooks and writes match results back out.
package boq

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoHeaderRow is returned when no sheet in a workbook has a recognizable
// header row.
var ErrNoHeaderRow = errors.New("no header row found")

// headerScanRows bounds how far down a sheet the header row is searched for.
const headerScanRows = 20

var (
	descriptionKeys = []string{"description", "desc", "particular", "work", "activity", "item"}
	quantityKeys    = []string{"quantity", "qty", "volume"}
	unitKeys        = []string{"unit", "uom", "measure"}
	codeKeys        = []string{"code", "ref", "item no"}
	rateKeys        = []string{"rate", "price", "cost"}
	categoryKeys    = []string{"category", "trade", "section"}
	subcategoryKeys = []string{"subcategory", "sub category", "sub-category"}
	keywordKeys     = []string{"keyword", "tag"}
)

var (
	majorHeaderRe = regexp.MustCompile(`(?i)^(BILL|SUB-BILL|SECTION|PART|DIVISION)\b`)
	subHeaderRe   = regexp.MustCompile(`(?i)^[A-Z]\d+\s`)
)

// columns maps logical fields to zero-based column indexes; -1 means absent.
type columns struct {
	description int
	quantity    int
	unit        int
	code        int
	rate        int
	category    int
	subcategory int
	keywords    int
}

// detectColumns assigns header cells to fields. More specific fields claim
// their column first so that "Item Code" is not taken as the description
// and "Unit Rate" is not taken as the unit.
func detectColumns(header []string) columns {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	used := map[int]bool{}
	find := func(keys []string) int {
		for _, k := range keys {
			for i, h := range lower {
				if h != "" && !used[i] && strings.Contains(h, k) {
					used[i] = true
					return i
				}
			}
		}
		return -1
	}

	c := columns{}
	c.subcategory = find(subcategoryKeys)
	c.code = find(codeKeys)
	c.quantity = find(quantityKeys)
	c.rate = find(rateKeys)
	c.unit = find(unitKeys)
	c.keywords = find(keywordKeys)
	c.category = find(categoryKeys)
	c.description = find(descriptionKeys)
	if c.description < 0 && !used[0] {
		c.description = 0
	}
	return c
}

// findHeaderRow returns the index of the header row: the first row naming a
// description column, or failing that the first row with at least three
// filled cells.
func findHeaderRow(rows [][]string) int {
	limit := min(len(rows), headerScanRows)
	for i := range limit {
		for _, cell := range rows[i] {
			v := strings.ToLower(cell)
			if strings.Contains(v, "description") || strings.Contains(v, "particular") {
				return i
			}
		}
	}
	for i := range limit {
		if filled(rows[i]) >= 3 {
			return i
		}
	}
	return -1
}

func filled(row []string) int {
	n := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

// cell returns the trimmed value at col, or "" when the row is short.
func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseNumber reads spreadsheet numbers such as "1,250.50". Blank cells,
// dashes and n/a yield ok=false.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "n/a", "na":
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// hierarchy tracks the section headers above the current BOQ row.
type hierarchy struct {
	headers []string
}

// push records a section header. Major headers (BILL, SECTION, ...) start a
// new hierarchy; coded sub-headers like "D20 Excavating" replace everything
// below the major level; any other header nests under the current ones.
func (h *hierarchy) push(text string) {
	switch {
	case majorHeaderRe.MatchString(text):
		h.headers = []string{text}
	case subHeaderRe.MatchString(text):
		kept := h.headers[:0:0]
		for _, existing := range h.headers {
			if majorHeaderRe.MatchString(existing) {
				kept = append(kept, existing)
			}
		}
		h.headers = append(kept, text)
	default:
		h.headers = append(h.headers, text)
	}
}

func (h *hierarchy) snapshot() []string {
	if len(h.headers) == 0 {
		return nil
	}
	return append([]string(nil), h.headers...)
}
