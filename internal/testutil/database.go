// Package testutil provides shared fixtures for tests that need a migrated
// database or a small construction catalog.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/storage"
)

// SetupTestDB creates a migrated in-memory database seeded with items.
// It is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.Catalog()...)
func SetupTestDB(t *testing.T, items ...model.PriceItem) *storage.SQLiteStorage {
	t.Helper()

	db, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(items) > 0 {
		if err := db.ReplacePriceItems(ctx, items); err != nil {
			_ = db.Close()
			t.Fatalf("failed to seed price items: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
