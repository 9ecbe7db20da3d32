package source

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrSourceUnavailable is returned when the relational database cannot be
// reached or a snapshot query fails.
var ErrSourceUnavailable = errors.New("source: database unavailable")

// Provider exposes the current relational rows to the index synchronizer.
// Implementations must be safe to call from multiple goroutines.
type Provider interface {
	// ListInventory returns every inventory row ordered by id.
	ListInventory(ctx context.Context) ([]InventoryItem, error)

	// ListRecentSales returns at most limit sales, newest first.
	ListRecentSales(ctx context.Context, limit int) ([]SaleRecord, error)
}

// GormProvider implements Provider on top of a gorm database handle.
type GormProvider struct {
	db *gorm.DB
}

// NewGormProvider wraps db. The handle is not pinged; connectivity errors
// surface on the first query as ErrSourceUnavailable.
func NewGormProvider(db *gorm.DB) (*GormProvider, error) {
	if db == nil {
		return nil, fmt.Errorf("source: db must not be nil")
	}
	return &GormProvider{db: db}, nil
}

// ListInventory returns every inventory row ordered by id.
func (p *GormProvider) ListInventory(ctx context.Context) ([]InventoryItem, error) {
	var items []InventoryItem
	if err := p.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("%w: list inventory: %w", ErrSourceUnavailable, err)
	}
	return items, nil
}

// ListRecentSales returns the limit most recent sales by sale date, newest
// first, with ties broken by descending id. limit <= 0 returns no rows.
func (p *GormProvider) ListRecentSales(ctx context.Context, limit int) ([]SaleRecord, error) {
	if limit <= 0 {
		return []SaleRecord{}, nil
	}
	var sales []SaleRecord
	err := p.db.WithContext(ctx).
		Order("data_venda DESC").
		Order("id DESC").
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list sales: %w", ErrSourceUnavailable, err)
	}
	return sales, nil
}

// Ping checks that the database answers. It satisfies the server's readiness
// Pinger interface.
func (p *GormProvider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrSourceUnavailable, err)
	}
	return nil
}
