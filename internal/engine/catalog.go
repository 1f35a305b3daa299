package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

// CatalogProvider supplies the price list to match against.
type CatalogProvider interface {
	GetAllPriceItems(ctx context.Context) ([]model.PriceItem, error)
}

// CachedCatalog keeps the last loaded price list for ttl. When a reload
// fails the previous list keeps being served and the failure is logged.
type CachedCatalog struct {
	loadedAt time.Time
	source   CatalogProvider
	logger   *slog.Logger
	now      func() time.Time
	items    []model.PriceItem
	ttl      time.Duration
	mu       sync.Mutex
	loaded   bool
}

// NewCachedCatalog wraps source. A ttl of zero reloads on every call.
func NewCachedCatalog(source CatalogProvider, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		ttl:    ttl,
		logger: common.LoggerOrDefault(logger),
		now:    time.Now,
	}
}

// GetAllPriceItems implements CatalogProvider. The returned slice is shared
// and must not be modified.
func (c *CachedCatalog) GetAllPriceItems(ctx context.Context) ([]model.PriceItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Sub(c.loadedAt) < c.ttl {
		return c.items, nil
	}

	items, err := c.source.GetAllPriceItems(ctx)
	if err != nil {
		if c.loaded {
			c.logger.Warn("Catalog reload failed, serving cached price list",
				"items", len(c.items),
				"age", c.now().Sub(c.loadedAt).Round(time.Second),
				"error", err)
			return c.items, nil
		}
		return nil, fmt.Errorf("%w: %w", common.ErrNoCatalog, err)
	}

	c.items = items
	c.loadedAt = c.now()
	c.loaded = true
	c.logger.Debug("Loaded price catalog", "items", len(items))
	return items, nil
}

// Invalidate forces the next call to reload.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
}

// staticCatalog serves a fixed list.
type staticCatalog []model.PriceItem

func (s staticCatalog) GetAllPriceItems(context.Context) ([]model.PriceItem, error) {
	return s, nil
}

// StaticCatalog returns a CatalogProvider for an in-memory price list.
func StaticCatalog(items []model.PriceItem) CatalogProvider {
	return staticCatalog(items)
}
