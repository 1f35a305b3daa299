// Package model defines the core data structures of the price matching engine.
package model

import "strings"

// PriceItem is a canonical entry in the price list catalog. Items are treated
// as immutable once loaded.
type PriceItem struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Rate        float64  `json:"rate"`
}

// EnrichedText returns the document text used when embedding the item. It folds
// the category path, unit, keywords and code into the description so that
// semantic search sees the same context a human estimator would.
func (p PriceItem) EnrichedText() string {
	parts := []string{strings.TrimSpace(p.Description)}
	if p.Category != "" {
		parts = append(parts, "Category: "+p.Category)
	}
	if p.Subcategory != "" {
		parts = append(parts, "Subcategory: "+p.Subcategory)
	}
	if p.Unit != "" {
		parts = append(parts, "Unit: "+p.Unit)
	}
	if len(p.Keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(p.Keywords, ", "))
	}
	if p.Code != "" {
		parts = append(parts, "Code: "+p.Code)
	}
	return strings.Join(parts, " | ")
}
