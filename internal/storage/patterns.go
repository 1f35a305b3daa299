package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// FindPattern returns the learned pattern for signature, or
// common.ErrPatternNotFound.
func (s *SQLiteStorage) FindPattern(ctx context.Context, signature string) (*model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(signature, "signature"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_signature, normalized_description, chosen_item_code, context_headers,
		       confidence_at_creation, usage_count, created_at, last_used_at
		FROM learned_patterns
		WHERE query_signature = ?
	`, signature)

	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrPatternNotFound
	}
	return p, err
}

// UpsertPattern stores p keyed by its signature. An existing row keeps its
// ID and creation time; everything else is overwritten.
func (s *SQLiteStorage) UpsertPattern(ctx context.Context, p *model.LearnedPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(p); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastUsedAt.IsZero() {
		p.LastUsedAt = now
	}

	headers, err := json.Marshal(nonNil(p.ContextHeaders))
	if err != nil {
		return fmt.Errorf("failed to encode context headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learned_patterns (
			id, query_signature, normalized_description, chosen_item_code, context_headers,
			confidence_at_creation, usage_count, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_signature) DO UPDATE SET
			normalized_description = excluded.normalized_description,
			chosen_item_code = excluded.chosen_item_code,
			context_headers = excluded.context_headers,
			confidence_at_creation = excluded.confidence_at_creation,
			usage_count = excluded.usage_count,
			last_used_at = excluded.last_used_at
	`, p.ID, p.QuerySignature, p.NormalizedDescription, p.ChosenItemCode, string(headers),
		p.ConfidenceAtCreation, p.UsageCount, p.CreatedAt, p.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to save learned pattern: %w", err)
	}
	return nil
}

// ListPatterns returns learned patterns, most used first. A limit of zero or
// less returns all of them.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, limit int) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_signature, normalized_description, chosen_item_code, context_headers,
		       confidence_at_creation, usage_count, created_at, last_used_at
		FROM learned_patterns
		ORDER BY usage_count DESC, query_signature
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned patterns: %w", err)
	}
	return patterns, nil
}

// DeletePattern forgets the pattern with signature.
func (s *SQLiteStorage) DeletePattern(ctx context.Context, signature string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(signature, "signature"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM learned_patterns WHERE query_signature = ?`, signature)
	if err != nil {
		return fmt.Errorf("failed to delete learned pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrPatternNotFound
	}
	return nil
}

func scanPattern(sc scanner) (*model.LearnedPattern, error) {
	var (
		p       model.LearnedPattern
		headers string
	)
	err := sc.Scan(&p.ID, &p.QuerySignature, &p.NormalizedDescription, &p.ChosenItemCode, &headers,
		&p.ConfidenceAtCreation, &p.UsageCount, &p.CreatedAt, &p.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &p.ContextHeaders); err != nil {
		return nil, fmt.Errorf("failed to decode context headers: %w", err)
	}
	if len(p.ContextHeaders) == 0 {
		p.ContextHeaders = nil
	}
	return &p, nil
}
