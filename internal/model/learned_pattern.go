package model

import "time"

// LearnedPattern remembers a manually accepted match so the same query can be
// answered without scoring next time.
type LearnedPattern struct {
	CreatedAt             time.Time `json:"created_at"`
	LastUsedAt            time.Time `json:"last_used_at"`
	ID                    string    `json:"id"`
	QuerySignature        string    `json:"query_signature"`
	NormalizedDescription string    `json:"normalized_description"`
	ChosenItemCode        string    `json:"chosen_item_code"`
	ContextHeaders        []string  `json:"context_headers,omitempty"`
	ConfidenceAtCreation  float64   `json:"confidence_at_creation"`
	UsageCount            int       `json:"usage_count"`
}
