// Package scoring ranks price list items against a BOQ query. LocalScorer
// works purely on text; HybridScorer adds embedding recall and reranking.
package scoring

import (
	"context"
	"sort"

	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/normalize"
)

// Scorer ranks catalog items for a query.
type Scorer interface {
	Score(ctx context.Context, query model.MatchQuery, catalog []model.PriceItem) (Outcome, error)
}

// Outcome is what a scorer produced. Warnings mark a degraded result; a scorer
// that could not recall any candidates because a provider failed sets
// RecallFailed and returns the provider error alongside.
type Outcome struct {
	Candidates   []model.MatchCandidate
	Warnings     []string
	RecallFailed bool
}

// Bonuses are the additive adjustments on a 0-1 scale.
type Bonuses struct {
	Unit       float64
	Category   float64
	Context    float64
	Spec       float64
	CodeMatch  float64
	ExactMatch float64
}

// maxContextHits caps how many context header matches earn the context bonus.
const maxContextHits = 3

// BonusesFromConfig converts the 0-100 config values.
func BonusesFromConfig(t config.Thresholds) Bonuses {
	return Bonuses{
		Unit:       float64(t.UnitMatchBonus) / 100,
		Category:   float64(t.CategoryMatchBonus) / 100,
		Context:    float64(t.ContextMatchBonus) / 100,
		Spec:       float64(t.SpecMatchBonus) / 100,
		CodeMatch:  float64(t.CodeMatchScore) / 100,
		ExactMatch: float64(t.ExactMatchScore) / 100,
	}
}

// apply adds bonuses to a weighted base similarity and fills the breakdown.
func (b Bonuses) apply(base float64, q *preparedQuery, it *preparedItem) (float64, model.ScoreBreakdown) {
	bd := model.ScoreBreakdown{TextSimilarity: base}

	if normalize.UnitsCompatible(q.unitKey, it.unitKey) {
		bd.UnitBonus = b.Unit
	}

	categoryHit := false
	contextHits := 0
	for _, stem := range q.contextStems {
		if _, ok := it.categoryStems[stem]; ok {
			categoryHit = true
			continue
		}
		if _, ok := it.descStems[stem]; ok {
			contextHits++
			continue
		}
		if _, ok := it.keywordStems[stem]; ok {
			contextHits++
		}
	}
	if categoryHit {
		bd.CategoryBonus = b.Category
	}
	if contextHits > maxContextHits {
		contextHits = maxContextHits
	}
	bd.ContextBonus = float64(contextHits) * b.Context
	bd.SpecBonus = specOverlap(q, it) * b.Spec

	score := base + bd.UnitBonus + bd.CategoryBonus + bd.ContextBonus + bd.SpecBonus

	switch codeRelation(q, it.codeKey) {
	case codeExact:
		bd.ExactMatch = true
		bd.CodeMatch = true
		score = b.ExactMatch
	case codeFragment:
		bd.CodeMatch = true
		if score < b.CodeMatch {
			score = b.CodeMatch
		}
	}

	return clip(score), bd
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// rank sorts candidates by descending score, keeping catalog order on ties,
// and drops those below floor.
func rank(cands []model.MatchCandidate, floor float64) []model.MatchCandidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
	out := cands[:0]
	for _, c := range cands {
		if c.Score >= floor && c.Score > 0 {
			out = append(out, c)
		}
	}
	return out
}
