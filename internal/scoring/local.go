package scoring

import (
	"context"

	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// LocalScorer ranks candidates with lexical similarity only. It needs no
// network access and is the fallback for every other method.
type LocalScorer struct {
	items   *itemCache
	bonuses Bonuses
	weight  float64
	floor   float64
}

// NewLocalScorer creates a LocalScorer from configuration.
func NewLocalScorer(cfg config.Config) *LocalScorer {
	return &LocalScorer{
		items:   newItemCache(max(cfg.Caching.MaxSize, defaultItemCacheSize)),
		bonuses: BonusesFromConfig(cfg.Thresholds),
		weight:  cfg.WeightFor(model.KindLocal),
		floor:   cfg.Thresholds.ReviewFloor,
	}
}

// Score implements Scorer.
func (s *LocalScorer) Score(ctx context.Context, query model.MatchQuery, catalog []model.PriceItem) (Outcome, error) {
	q := prepareQuery(query)
	cands := make([]model.MatchCandidate, 0, len(catalog))

	for i, item := range catalog {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
		}
		it := s.items.get(item)
		base := clip(textSimilarity(q, it) * s.weight)
		score, bd := s.bonuses.apply(base, q, it)
		cands = append(cands, model.MatchCandidate{Item: item, Score: score, Breakdown: bd})
	}

	return Outcome{Candidates: rank(cands, s.floor)}, nil
}

// Similarity returns the weighted lexical similarity between a query and an
// item, before bonuses.
func (s *LocalScorer) Similarity(query model.MatchQuery, item model.PriceItem) float64 {
	return clip(textSimilarity(prepareQuery(query), s.items.get(item)) * s.weight)
}

// Prefilter keeps the n catalog items with the highest lexical similarity,
// best first.
func (s *LocalScorer) Prefilter(ctx context.Context, query model.MatchQuery, catalog []model.PriceItem, n int) ([]model.PriceItem, error) {
	if n <= 0 || len(catalog) <= n {
		return catalog, nil
	}
	q := prepareQuery(query)
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(catalog))
	for i, item := range catalog {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		all[i] = scored{idx: i, score: textSimilarity(q, s.items.get(item))}
	}
	topIdx := topK(len(all), n, func(i int) float64 { return all[i].score })
	out := make([]model.PriceItem, len(topIdx))
	for i, idx := range topIdx {
		out[i] = catalog[all[idx].idx]
	}
	return out, nil
}
