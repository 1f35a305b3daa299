package model

// MatchQuery describes one BOQ line item to be priced.
type MatchQuery struct {
	Description    string      `json:"description"`
	Unit           string      `json:"unit,omitempty"`
	Code           string      `json:"code,omitempty" validate:"max=64"`
	ContextHeaders []string    `json:"context_headers,omitempty"`
	Method         MatchMethod `json:"method"`
	Quantity       float64     `json:"quantity" validate:"gte=0"`
	Row            int         `json:"row" validate:"gte=0"`
}

// ScoreBreakdown records how a candidate's score was assembled.
type ScoreBreakdown struct {
	TextSimilarity float64 `json:"text_similarity"`
	UnitBonus      float64 `json:"unit_bonus"`
	CategoryBonus  float64 `json:"category_bonus"`
	ContextBonus   float64 `json:"context_bonus"`
	SpecBonus      float64 `json:"spec_bonus"`
	CodeMatch      bool    `json:"code_match"`
	ExactMatch     bool    `json:"exact_match"`
}

// MatchCandidate is a scored catalog item.
type MatchCandidate struct {
	Item      PriceItem      `json:"item"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Score     float64        `json:"score"`
}

// MatchResult is the outcome of matching a single query. ChosenItem is nil when
// no candidate reached the method's minimum confidence; Alternatives is still
// populated in that case so a reviewer can pick manually.
type MatchResult struct {
	ChosenItem      *PriceItem       `json:"chosen_item,omitempty"`
	Method          string           `json:"method"`
	RequestedMethod string           `json:"requested_method"`
	Alternatives    []MatchCandidate `json:"alternatives"`
	Warnings        []string         `json:"warnings,omitempty"`
	Confidence      float64          `json:"confidence"`
	Row             int              `json:"row"`
	IsLearnedMatch  bool             `json:"is_learned_match"`
}

// Degraded reports whether the result was produced with reduced quality,
// for example after a provider fallback.
func (r *MatchResult) Degraded() bool {
	return len(r.Warnings) > 0
}
