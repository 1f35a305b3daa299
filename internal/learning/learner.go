// Package learning remembers manually accepted matches and answers repeat
// queries from them.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/normalize"
)

// PatternStore persists learned patterns keyed by query signature.
type PatternStore interface {
	// FindPattern returns common.ErrPatternNotFound when no pattern has the
	// signature.
	FindPattern(ctx context.Context, signature string) (*model.LearnedPattern, error)
	UpsertPattern(ctx context.Context, p *model.LearnedPattern) error
}

// Signature derives the deterministic key for a query: its canonical
// description plus its sorted, normalized context headers.
func Signature(description string, contextHeaders []string) string {
	var b strings.Builder
	b.WriteString(normalize.Canonical(description))
	for _, h := range normalize.Headers(contextHeaders) {
		b.WriteByte('\x1f')
		b.WriteString(h)
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// Learner records accepted matches and looks them up again.
type Learner struct {
	store     PatternStore
	logger    *slog.Logger
	now       func() time.Time
	threshold float64
}

// NewLearner creates a Learner. Matches accepted with confidence below
// threshold are not learned.
func NewLearner(store PatternStore, threshold float64, logger *slog.Logger) *Learner {
	return &Learner{
		store:     store,
		logger:    common.LoggerOrDefault(logger),
		now:       time.Now,
		threshold: threshold,
	}
}

// RecordAcceptedMatch learns that query should resolve to item. Repeat
// recordings bump the usage count; the most recent item wins.
func (l *Learner) RecordAcceptedMatch(ctx context.Context, query model.MatchQuery, item model.PriceItem, confidence float64) error {
	if strings.TrimSpace(item.Code) == "" {
		return common.NewInputError("item.code", "accepted item has no code", nil)
	}
	canonical := normalize.Canonical(query.Description)
	if canonical == "" {
		return common.NewInputError("description", "nothing to learn from an empty description", nil)
	}
	if confidence < l.threshold {
		l.logger.Debug("Skipping low-confidence match",
			"code", item.Code,
			"confidence", confidence,
			"threshold", l.threshold)
		return nil
	}

	sig := Signature(query.Description, query.ContextHeaders)
	now := l.now()

	existing, err := l.store.FindPattern(ctx, sig)
	switch {
	case err == nil:
		existing.ChosenItemCode = item.Code
		existing.ConfidenceAtCreation = confidence
		existing.UsageCount++
		existing.LastUsedAt = now
		if err := l.store.UpsertPattern(ctx, existing); err != nil {
			return fmt.Errorf("failed to update pattern: %w", err)
		}
		return nil
	case errors.Is(err, common.ErrPatternNotFound):
	default:
		return fmt.Errorf("failed to look up pattern: %w", err)
	}

	p := &model.LearnedPattern{
		ID:                    uuid.NewString(),
		QuerySignature:        sig,
		NormalizedDescription: canonical,
		ContextHeaders:        normalize.Headers(query.ContextHeaders),
		ChosenItemCode:        item.Code,
		ConfidenceAtCreation:  confidence,
		UsageCount:            1,
		CreatedAt:             now,
		LastUsedAt:            now,
	}
	if err := l.store.UpsertPattern(ctx, p); err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	l.logger.Info("Learned match pattern",
		"code", item.Code,
		"signature", sig)
	return nil
}

// FindLearnedMatch returns the pattern for query, or nil when there is none.
// A hit refreshes the pattern's usage; that write is best effort.
func (l *Learner) FindLearnedMatch(ctx context.Context, query model.MatchQuery) (*model.LearnedPattern, error) {
	if normalize.Canonical(query.Description) == "" {
		return nil, nil
	}
	sig := Signature(query.Description, query.ContextHeaders)

	p, err := l.store.FindPattern(ctx, sig)
	if errors.Is(err, common.ErrPatternNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pattern: %w", err)
	}

	p.UsageCount++
	p.LastUsedAt = l.now()
	if err := l.store.UpsertPattern(ctx, p); err != nil {
		l.logger.Warn("Failed to record pattern usage",
			"signature", sig,
			"error", err)
	}
	return p, nil
}
