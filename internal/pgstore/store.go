// Package pgstore keeps the price catalog and learned patterns in PostgreSQL
// for deployments that share one catalog between several matchers.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url: %w", common.ErrMissingConfig)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		subcategory TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		keywords TEXT[] NOT NULL DEFAULT '{}',
		rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_items_code ON price_items(code)`,
	`CREATE TABLE IF NOT EXISTS learned_patterns (
		id UUID PRIMARY KEY,
		query_signature TEXT NOT NULL UNIQUE,
		normalized_description TEXT NOT NULL,
		chosen_item_code TEXT NOT NULL,
		context_headers TEXT[] NOT NULL DEFAULT '{}',
		confidence_at_creation DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// ReplacePriceItems swaps the catalog in a single transaction.
func (s *Store) ReplacePriceItems(ctx context.Context, items []model.PriceItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM price_items`); err != nil {
		return fmt.Errorf("failed to clear price items: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		batch.Queue(
			`INSERT INTO price_items (id, code, description, category, subcategory, unit, keywords, rate, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, it.Code, it.Description, it.Category, it.Subcategory, it.Unit, emptyIfNil(it.Keywords), it.Rate, i,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert price items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit price items: %w", err)
	}
	return nil
}

// GetAllPriceItems returns the catalog in import order.
func (s *Store) GetAllPriceItems(ctx context.Context) ([]model.PriceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, description, category, subcategory, unit, keywords, rate
		 FROM price_items ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list price items: %w", err)
	}
	defer rows.Close()

	var items []model.PriceItem
	for rows.Next() {
		var it model.PriceItem
		if err := rows.Scan(&it.ID, &it.Code, &it.Description, &it.Category, &it.Subcategory, &it.Unit, &it.Keywords, &it.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan price item: %w", err)
		}
		if len(it.Keywords) == 0 {
			it.Keywords = nil
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list price items: %w", err)
	}
	return items, nil
}

// FindPattern returns the pattern for signature, or common.ErrPatternNotFound.
func (s *Store) FindPattern(ctx context.Context, signature string) (*model.LearnedPattern, error) {
	var (
		p  model.LearnedPattern
		id uuid.UUID
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, query_signature, normalized_description, chosen_item_code, context_headers,
		        confidence_at_creation, usage_count, created_at, last_used_at
		 FROM learned_patterns WHERE query_signature = $1`,
		signature,
	).Scan(&id, &p.QuerySignature, &p.NormalizedDescription, &p.ChosenItemCode, &p.ContextHeaders,
		&p.ConfidenceAtCreation, &p.UsageCount, &p.CreatedAt, &p.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learned pattern: %w", err)
	}
	p.ID = id.String()
	if len(p.ContextHeaders) == 0 {
		p.ContextHeaders = nil
	}
	return &p, nil
}

// UpsertPattern inserts or updates the pattern keyed by its signature.
func (s *Store) UpsertPattern(ctx context.Context, p *model.LearnedPattern) error {
	if p == nil || p.QuerySignature == "" || p.ChosenItemCode == "" {
		return common.NewInputError("pattern", "signature and item code are required", nil)
	}

	id, err := uuid.Parse(p.ID)
	if err != nil {
		id = uuid.New()
		p.ID = id.String()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastUsedAt.IsZero() {
		p.LastUsedAt = now
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO learned_patterns (id, query_signature, normalized_description, chosen_item_code,
		                               context_headers, confidence_at_creation, usage_count, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (query_signature) DO UPDATE SET
		     normalized_description = $3,
		     chosen_item_code = $4,
		     context_headers = $5,
		     confidence_at_creation = $6,
		     usage_count = $7,
		     last_used_at = $9`,
		id, p.QuerySignature, p.NormalizedDescription, p.ChosenItemCode,
		emptyIfNil(p.ContextHeaders), p.ConfidenceAtCreation, p.UsageCount, p.CreatedAt, p.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save learned pattern: %w", err)
	}
	return nil
}

// ListPatterns returns up to limit patterns, most used first. A limit of zero
// or less returns all of them.
func (s *Store) ListPatterns(ctx context.Context, limit int) ([]model.LearnedPattern, error) {
	query := `SELECT id, query_signature, normalized_description, chosen_item_code, context_headers,
	                 confidence_at_creation, usage_count, created_at, last_used_at
	          FROM learned_patterns ORDER BY usage_count DESC, query_signature`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learned patterns: %w", err)
	}
	defer rows.Close()

	var patterns []model.LearnedPattern
	for rows.Next() {
		var (
			p  model.LearnedPattern
			id uuid.UUID
		)
		if err := rows.Scan(&id, &p.QuerySignature, &p.NormalizedDescription, &p.ChosenItemCode, &p.ContextHeaders,
			&p.ConfidenceAtCreation, &p.UsageCount, &p.CreatedAt, &p.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		p.ID = id.String()
		if len(p.ContextHeaders) == 0 {
			p.ContextHeaders = nil
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list learned patterns: %w", err)
	}
	return patterns, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
