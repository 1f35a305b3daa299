package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/embedding"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Provider is the embedding and rerank surface the hybrid scorer needs.
// *embedding.Adapter implements it.
type Provider interface {
	Embed(ctx context.Context, texts []string, purpose embedding.Purpose) ([][]float32, error)
	Rerank(ctx context.Context, query string, docs []string) ([]embedding.RerankResult, error)
}

// HybridScorer recalls a shortlist by embedding similarity and optionally
// reranks it with a cross-encoder. For direct rerank methods it skips the
// embedding stage.
type HybridScorer struct {
	provider  Provider
	local     *LocalScorer
	items     *itemCache
	logger    *slog.Logger
	method    model.MatchMethod
	bonuses   Bonuses
	weight    float64
	floor     float64
	shortlist int
	directMax int
}

// NewHybridScorer creates a scorer for method backed by provider.
func NewHybridScorer(method model.MatchMethod, provider Provider, cfg config.Config, logger *slog.Logger) *HybridScorer {
	local := NewLocalScorer(cfg)
	return &HybridScorer{
		provider:  provider,
		local:     local,
		items:     local.items,
		logger:    common.LoggerOrDefault(logger),
		method:    method,
		bonuses:   BonusesFromConfig(cfg.Thresholds),
		weight:    cfg.WeightFor(method.Kind),
		floor:     cfg.Thresholds.ReviewFloor,
		shortlist: cfg.Hybrid.ShortlistSize,
		directMax: cfg.Hybrid.DirectRerankMaxItems,
	}
}

// QueryText builds the text embedded for a query, folding in its context
// headers and unit.
func QueryText(q model.MatchQuery) string {
	parts := []string{strings.TrimSpace(q.Description)}
	if len(q.ContextHeaders) > 0 {
		parts = append(parts, "Context: "+strings.Join(q.ContextHeaders, " > "))
	}
	if q.Unit != "" {
		parts = append(parts, "Unit: "+q.Unit)
	}
	return strings.Join(parts, " | ")
}

// Score implements Scorer. A hybrid method whose catalog fits in the
// shortlist skips embedding recall and reranks every item; if that rerank
// fails the embedding ranking is used instead.
func (s *HybridScorer) Score(ctx context.Context, query model.MatchQuery, catalog []model.PriceItem) (Outcome, error) {
	if len(catalog) == 0 {
		return Outcome{}, nil
	}

	var (
		shortlist []model.PriceItem
		stage     []float64
		warnings  []string
	)

	switch {
	case s.method.Kind == model.KindDirectRerank:
		items, err := s.local.Prefilter(ctx, query, catalog, s.directMax)
		if err != nil {
			return Outcome{}, err
		}
		scores, err := s.rerank(ctx, query, items)
		if err != nil {
			return s.recallFailed(err, "rerank")
		}
		shortlist, stage = items, scores

	case s.method.Kind == model.KindHybrid && len(catalog) <= s.shortlist:
		scores, err := s.rerank(ctx, query, catalog)
		if err == nil {
			shortlist, stage = catalog, scores
			break
		}
		if ctx.Err() != nil {
			return Outcome{}, err
		}
		warnings = append(warnings, s.rerankWarning(err))
		items, sims, err := s.recall(ctx, query, catalog)
		if err != nil {
			return s.recallFailed(err, "embedding")
		}
		shortlist, stage = items, sims

	default:
		items, sims, err := s.recall(ctx, query, catalog)
		if err != nil {
			return s.recallFailed(err, "embedding")
		}
		shortlist, stage = items, sims

		if s.method.Kind == model.KindHybrid {
			scores, err := s.rerank(ctx, query, items)
			switch {
			case err == nil:
				stage = scores
			case ctx.Err() != nil:
				return Outcome{}, err
			default:
				warnings = append(warnings, s.rerankWarning(err))
			}
		}
	}

	q := prepareQuery(query)
	cands := make([]model.MatchCandidate, 0, len(shortlist))
	for i, item := range shortlist {
		it := s.items.get(item)
		base := clip(stage[i] * s.weight)
		score, bd := s.bonuses.apply(base, q, it)
		cands = append(cands, model.MatchCandidate{Item: item, Score: score, Breakdown: bd})
	}

	return Outcome{Candidates: rank(cands, s.floor), Warnings: warnings}, nil
}

func (s *HybridScorer) rerankWarning(err error) string {
	s.logger.Warn("Rerank failed, keeping embedding ranking",
		"method", s.method.String(),
		"error", err)
	return fmt.Sprintf("rerank unavailable, ranked by embedding similarity: %v", err)
}

func (s *HybridScorer) recallFailed(err error, stage string) (Outcome, error) {
	s.logger.Warn("Candidate recall failed",
		"method", s.method.String(),
		"stage", stage,
		"error", err)
	return Outcome{
		Warnings:     []string{fmt.Sprintf("%s recall failed: %v", stage, err)},
		RecallFailed: true,
	}, err
}

// recall embeds the query and catalog and returns the top shortlist by
// cosine similarity, best first.
func (s *HybridScorer) recall(ctx context.Context, query model.MatchQuery, catalog []model.PriceItem) ([]model.PriceItem, []float64, error) {
	qv, err := s.provider.Embed(ctx, []string{QueryText(query)}, embedding.PurposeQuery)
	if err != nil {
		return nil, nil, err
	}

	docs := make([]string, len(catalog))
	for i, item := range catalog {
		docs[i] = item.EnrichedText()
	}
	dv, err := s.provider.Embed(ctx, docs, embedding.PurposeDocument)
	if err != nil {
		return nil, nil, err
	}

	sims := make([]float64, len(catalog))
	for i := range catalog {
		sims[i] = clip(embedding.Cosine(qv[0], dv[i]))
	}

	top := topK(len(sims), s.shortlist, func(i int) float64 { return sims[i] })
	items := make([]model.PriceItem, len(top))
	scores := make([]float64, len(top))
	for i, idx := range top {
		items[i] = catalog[idx]
		scores[i] = sims[idx]
	}
	return items, scores, nil
}

// rerank scores items against the query, aligned with items.
func (s *HybridScorer) rerank(ctx context.Context, query model.MatchQuery, items []model.PriceItem) ([]float64, error) {
	docs := make([]string, len(items))
	for i, item := range items {
		docs[i] = item.EnrichedText()
	}
	results, err := s.provider.Rerank(ctx, QueryText(query), docs)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(items))
	for _, r := range results {
		scores[r.Index] = r.RelevanceScore
	}
	return renormalize(scores), nil
}

// renormalize maps scores onto [0,1] with min-max scaling when any score
// falls outside that range. Scores already in range are kept as they are.
func renormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo >= 0 && hi <= 1 {
		return scores
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range scores {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
