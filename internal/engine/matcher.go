// Package engine matches BOQ queries against the price catalog. It checks
// learned patterns first, dispatches to the scorer for the requested method
// and applies the selection threshold.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/config"
	"github.com/Veraticus/boq-price-match/internal/learning"
	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/scoring"
)

// ErrLearningDisabled is returned when a manual match is recorded without a
// learner.
var ErrLearningDisabled = errors.New("pattern learning is disabled")

// fallbackTimeout bounds the LOCAL rescore that runs after the caller's
// deadline has already expired.
const fallbackTimeout = 10 * time.Second

// Matcher is the matching orchestrator. It is safe for concurrent use.
type Matcher struct {
	catalog  CatalogProvider
	learner  *learning.Learner
	scorers  map[model.MatchMethod]scoring.Scorer
	validate *validator.Validate
	logger   *slog.Logger
	cfg      config.Config
}

// NewMatcher creates a Matcher. learner may be nil to disable learned
// matches. A LOCAL scorer is added when scorers lacks one.
func NewMatcher(cfg config.Config, catalog CatalogProvider, learner *learning.Learner, scorers map[model.MatchMethod]scoring.Scorer, logger *slog.Logger) (*Matcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog provider", common.ErrNoCatalog)
	}

	table := make(map[model.MatchMethod]scoring.Scorer, len(scorers)+1)
	for m, s := range scorers {
		if s != nil {
			table[m] = s
		}
	}
	if _, ok := table[model.MethodLocal]; !ok {
		table[model.MethodLocal] = scoring.NewLocalScorer(cfg)
	}
	if !cfg.Learning.Enabled {
		learner = nil
	}

	return &Matcher{
		catalog:  catalog,
		learner:  learner,
		scorers:  table,
		validate: validator.New(),
		logger:   common.LoggerOrDefault(logger),
		cfg:      cfg,
	}, nil
}

// Supports reports whether method has a scorer.
func (m *Matcher) Supports(method model.MatchMethod) bool {
	_, ok := m.scorers[method]
	return ok
}

// Match resolves one query. Low confidence is not an error: ChosenItem is
// nil and Alternatives holds the best candidates for review. Errors are
// returned for invalid input, an unusable catalog and fatal provider failures.
func (m *Matcher) Match(ctx context.Context, query model.MatchQuery) (*model.MatchResult, error) {
	query, err := m.prepare(query)
	if err != nil {
		return nil, err
	}
	method := query.Method

	scorer, ok := m.scorers[method]
	if !ok {
		return nil, common.NewInputError("method",
			fmt.Sprintf("method %s has no configured provider", method), common.ErrMissingAPIKey)
	}

	catalog, err := m.catalog.GetAllPriceItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	result := &model.MatchResult{
		Method:          method.String(),
		RequestedMethod: method.String(),
		Row:             query.Row,
		Alternatives:    []model.MatchCandidate{},
	}

	if learned, warning := m.checkLearned(ctx, query, catalog); learned != nil {
		learned.RequestedMethod = method.String()
		learned.Row = query.Row
		return learned, nil
	} else if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	outcome, err := scorer.Score(ctx, query, catalog)
	if err != nil {
		outcome, method, err = m.recover(ctx, query, catalog, method, outcome, err)
		if err != nil {
			return nil, err
		}
		result.Method = method.String()
	}
	result.Warnings = append(result.Warnings, outcome.Warnings...)

	m.applyThreshold(result, method, outcome.Candidates)

	m.logger.Debug("Matched query",
		"row", query.Row,
		"method", result.Method,
		"requested_method", result.RequestedMethod,
		"confidence", result.Confidence,
		"chosen", result.ChosenItem != nil,
		"candidates", len(outcome.Candidates))

	return result, nil
}

// prepare fills defaults, bounds the query and validates it.
func (m *Matcher) prepare(q model.MatchQuery) (model.MatchQuery, error) {
	if q.Method.IsZero() {
		q.Method = model.MethodLocal
	}

	q.Description = strings.TrimSpace(q.Description)
	if limit := m.cfg.Limits.MaxDescriptionLength; limit > 0 && utf8.RuneCountInString(q.Description) > limit {
		q.Description = string([]rune(q.Description)[:limit])
	}

	headers := make([]string, 0, len(q.ContextHeaders))
	for _, h := range q.ContextHeaders {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	if keep := m.cfg.Limits.MaxContextHeaders; len(headers) > keep {
		headers = headers[len(headers)-keep:]
	}
	q.ContextHeaders = headers

	if err := m.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return q, common.NewInputError(strings.ToLower(fe.Field()),
				fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()), nil)
		}
		return q, common.NewInputError("query", err.Error(), nil)
	}
	return q, nil
}

// checkLearned returns a LEARNED result on a pattern hit. A hit whose item is
// gone from the catalog yields a warning instead.
func (m *Matcher) checkLearned(ctx context.Context, q model.MatchQuery, catalog []model.PriceItem) (*model.MatchResult, string) {
	if m.learner == nil {
		return nil, ""
	}
	p, err := m.learner.FindLearnedMatch(ctx, q)
	if err != nil {
		m.logger.Warn("Learned pattern lookup failed", "row", q.Row, "error", err)
		return nil, ""
	}
	if p == nil {
		return nil, ""
	}

	item, ok := findByCode(catalog, p.ChosenItemCode)
	if !ok {
		return nil, fmt.Sprintf("learned item %s is no longer in the catalog", p.ChosenItemCode)
	}

	return &model.MatchResult{
		ChosenItem: &item,
		Method:     model.MethodLearned,
		Alternatives: []model.MatchCandidate{{
			Item:      item,
			Score:     1,
			Breakdown: model.ScoreBreakdown{TextSimilarity: 1},
		}},
		Confidence:     1,
		IsLearnedMatch: true,
	}, ""
}

// recover decides what happens after a scorer error. A recall failure from a
// provider, or the caller's deadline expiring while a provider was slow, falls
// back to LOCAL when configured. Cancellation and fatal provider errors
// propagate.
func (m *Matcher) recover(ctx context.Context, q model.MatchQuery, catalog []model.PriceItem, method model.MatchMethod, outcome scoring.Outcome, err error) (scoring.Outcome, model.MatchMethod, error) {
	if errors.Is(ctx.Err(), context.Canceled) || common.IsFatalProvider(err) {
		return outcome, method, err
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if !(outcome.RecallFailed || timedOut) || !m.cfg.Fallback.ToLocal || method == model.MethodLocal {
		return outcome, method, err
	}

	m.logger.Warn("Provider unavailable, falling back to local matching",
		"row", q.Row,
		"method", method.String(),
		"timed_out", timedOut,
		"error", err)

	lctx := ctx
	if timedOut {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
		defer cancel()
	}
	local, lerr := m.scorers[model.MethodLocal].Score(lctx, q, catalog)
	if lerr != nil {
		return local, method, errors.Join(err, lerr)
	}
	local.Warnings = append(append(outcome.Warnings, fmt.Sprintf("%s unavailable, used LOCAL matching", method)), local.Warnings...)
	return local, model.MethodLocal, nil
}

func (m *Matcher) applyThreshold(result *model.MatchResult, method model.MatchMethod, cands []model.MatchCandidate) {
	if len(cands) == 0 {
		return
	}
	n := m.cfg.Limits.MaxReturnedMatches
	if n <= 0 || n > len(cands) {
		n = len(cands)
	}
	result.Alternatives = append(result.Alternatives, cands[:n]...)

	top := cands[0]
	result.Confidence = top.Score
	if top.Score >= m.cfg.MinConfidenceFor(method.Kind) {
		chosen := top.Item
		result.ChosenItem = &chosen
	}
}

// RecordManualMatch learns that query resolves to the catalog item with
// itemCode. It is the path for a reviewer accepting or correcting a match.
func (m *Matcher) RecordManualMatch(ctx context.Context, query model.MatchQuery, itemCode string) error {
	if m.learner == nil {
		return ErrLearningDisabled
	}
	query, err := m.prepare(query)
	if err != nil {
		return err
	}

	catalog, err := m.catalog.GetAllPriceItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	item, ok := findByCode(catalog, itemCode)
	if !ok {
		return common.NewInputError("item_code", fmt.Sprintf("no catalog item with code %q", itemCode), common.ErrNotFound)
	}

	return m.learner.RecordAcceptedMatch(ctx, query, item, 1.0)
}

func findByCode(catalog []model.PriceItem, code string) (model.PriceItem, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.PriceItem{}, false
	}
	for _, it := range catalog {
		if strings.EqualFold(it.Code, code) {
			return it, true
		}
	}
	return model.PriceItem{}, false
}
