package source

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SampleInventory is the demo catalog inserted by Seed.
var SampleInventory = []InventoryItem{
	{ProductName: "Alface", Quantity: 50, Unit: "unidade", UnitPrice: 2.50, Category: "Verdura"},
	{ProductName: "Tomate", Quantity: 30, Unit: "kg", UnitPrice: 4.00, Category: "Legume"},
	{ProductName: "Cenoura", Quantity: 45, Unit: "kg", UnitPrice: 3.50, Category: "Legume"},
	{ProductName: "Batata", Quantity: 100, Unit: "kg", UnitPrice: 2.80, Category: "Tubérculo"},
	{ProductName: "Cebola", Quantity: 60, Unit: "kg", UnitPrice: 3.20, Category: "Legume"},
	{ProductName: "Arroz", Quantity: 200, Unit: "kg", UnitPrice: 5.50, Category: "Grão"},
	{ProductName: "Feijão", Quantity: 150, Unit: "kg", UnitPrice: 7.00, Category: "Grão"},
}

// SampleSales is the demo sales history inserted by Seed.
var SampleSales = []SaleRecord{
	{ProductName: "Alface", Quantity: 5, TotalValue: 12.50, CustomerName: "João Silva"},
	{ProductName: "Tomate", Quantity: 3, TotalValue: 12.00, CustomerName: "Maria Santos"},
	{ProductName: "Arroz", Quantity: 10, TotalValue: 55.00, CustomerName: "Pedro Costa"},
}

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Inventory int
	Sales     int
}

// Migrate creates or updates the estoque and vendas tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&InventoryItem{}, &SaleRecord{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrSourceUnavailable, err)
	}
	return nil
}

// Seed migrates the schema and inserts the sample rows when the inventory
// table is empty. Running it again on a populated database is a no-op.
func Seed(ctx context.Context, db *gorm.DB, now time.Time) (SeedResult, error) {
	if err := Migrate(ctx, db); err != nil {
		return SeedResult{}, err
	}

	var n int64
	if err := db.WithContext(ctx).Model(&InventoryItem{}).Count(&n).Error; err != nil {
		return SeedResult{}, fmt.Errorf("%w: count inventory: %w", ErrSourceUnavailable, err)
	}
	if n > 0 {
		return SeedResult{}, nil
	}

	items := make([]InventoryItem, len(SampleInventory))
	copy(items, SampleInventory)
	for i := range items {
		items[i].LastUpdated = now
	}
	// Sales are spaced a minute apart so the "most recent" order is stable.
	sales := make([]SaleRecord, len(SampleSales))
	copy(sales, SampleSales)
	for i := range sales {
		sales[i].SaleDate = now.Add(time.Duration(i-len(sales)) * time.Minute)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return tx.Create(&sales).Error
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("%w: insert sample data: %w", ErrSourceUnavailable, err)
	}
	return SeedResult{Inventory: len(items), Sales: len(sales)}, nil
}
