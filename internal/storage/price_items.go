package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// ReplacePriceItems swaps the whole catalog for items in one transaction.
// Catalog order is preserved.
func (s *SQLiteStorage) ReplacePriceItems(ctx context.Context, items []model.PriceItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePriceItems(items); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_items`); err != nil {
		return fmt.Errorf("failed to clear price items: %w", err)
	}
	if err := s.insertPriceItemsTx(ctx, tx, items, 0); err != nil {
		return err
	}

	return tx.Commit()
}

// SavePriceItems inserts or updates items, appending new ones after the
// existing catalog.
func (s *SQLiteStorage) SavePriceItems(ctx context.Context, items []model.PriceItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePriceItems(items); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM price_items`).Scan(&next); err != nil {
		return fmt.Errorf("failed to read catalog position: %w", err)
	}
	if err := s.insertPriceItemsTx(ctx, tx, items, next); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) insertPriceItemsTx(ctx context.Context, tx *sql.Tx, items []model.PriceItem, offset int) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_items (id, code, description, category, subcategory, unit, keywords, rate, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			description = excluded.description,
			category = excluded.category,
			subcategory = excluded.subcategory,
			unit = excluded.unit,
			keywords = excluded.keywords,
			rate = excluded.rate
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, it := range items {
		keywords, err := json.Marshal(nonNil(it.Keywords))
		if err != nil {
			return fmt.Errorf("failed to encode keywords for %s: %w", it.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			it.ID, it.Code, it.Description, it.Category, it.Subcategory,
			it.Unit, string(keywords), it.Rate, offset+i,
		); err != nil {
			return fmt.Errorf("failed to save price item %s: %w", it.ID, err)
		}
	}
	return nil
}

// GetAllPriceItems returns the catalog in import order.
func (s *SQLiteStorage) GetAllPriceItems(ctx context.Context) ([]model.PriceItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, description, category, subcategory, unit, keywords, rate
		FROM price_items
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query price items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.PriceItem
	for rows.Next() {
		it, err := scanPriceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price items: %w", err)
	}
	return items, nil
}

// GetPriceItemByCode looks an item up by its catalog code.
func (s *SQLiteStorage) GetPriceItemByCode(ctx context.Context, code string) (*model.PriceItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, description, category, subcategory, unit, keywords, rate
		FROM price_items
		WHERE code = ?
		ORDER BY position
		LIMIT 1
	`, code)
	it, err := scanPriceItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("price item %q: %w", code, common.ErrNotFound)
	}
	return it, err
}

// CountPriceItems returns the catalog size.
func (s *SQLiteStorage) CountPriceItems(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count price items: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPriceItem(sc scanner) (*model.PriceItem, error) {
	var (
		it       model.PriceItem
		keywords string
	)
	err := sc.Scan(&it.ID, &it.Code, &it.Description, &it.Category, &it.Subcategory, &it.Unit, &keywords, &it.Rate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan price item: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &it.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords for %s: %w", it.ID, err)
	}
	if len(it.Keywords) == 0 {
		it.Keywords = nil
	}
	return &it, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
