package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB returns an isolated in-memory SQLite database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestSeed_InsertsOnceAndLists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	res, err := Seed(ctx, db, testNow)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Inventory != len(SampleInventory) || res.Sales != len(SampleSales) {
		t.Errorf("Seed result = %+v", res)
	}

	again, err := Seed(ctx, db, testNow)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if again.Inventory != 0 || again.Sales != 0 {
		t.Errorf("second Seed inserted rows: %+v", again)
	}

	p, _ := NewGormProvider(db)
	items, err := p.ListInventory(ctx)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(items) != len(SampleInventory) {
		t.Fatalf("inventory rows = %d, want %d", len(items), len(SampleInventory))
	}
	if items[0].ProductName != "Alface" || items[0].Quantity != 50 || items[0].UnitPrice != 2.50 {
		t.Errorf("first item = %+v", items[0])
	}
	if items[6].ProductName != "Feijão" || items[6].Category != "Grão" {
		t.Errorf("last item = %+v", items[6])
	}
}

func TestListRecentSales_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	base := testNow
	rows := []SaleRecord{
		{ProductName: "Alface", Quantity: 1, TotalValue: 2.5, SaleDate: base.Add(-2 * time.Hour), CustomerName: "A"},
		{ProductName: "Tomate", Quantity: 1, TotalValue: 4, SaleDate: base, CustomerName: "B"},
		{ProductName: "Arroz", Quantity: 1, TotalValue: 5.5, SaleDate: base.Add(-time.Hour), CustomerName: "C"},
		{ProductName: "Batata", Quantity: 1, TotalValue: 2.8, SaleDate: base, CustomerName: "D"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, _ := NewGormProvider(db)
	got, err := p.ListRecentSales(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecentSales: %v", err)
	}
	want := []string{"Batata", "Tomate", "Arroz"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ProductName != w {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ProductName, w)
		}
	}

	none, err := p.ListRecentSales(ctx, 0)
	if err != nil || len(none) != 0 {
		t.Errorf("limit 0 = %v, %v", none, err)
	}
}

func TestProvider_ClosedDBIsUnavailable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_ = Migrate(ctx, db)
	p, _ := NewGormProvider(db)

	if err := Close(db); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := p.ListInventory(ctx); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("ListInventory err = %v, want ErrSourceUnavailable", err)
	}
	if _, err := p.ListRecentSales(ctx, 5); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("ListRecentSales err = %v, want ErrSourceUnavailable", err)
	}
	if err := p.Ping(ctx); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Ping err = %v, want ErrSourceUnavailable", err)
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()
	got := BuildDSN(Config{Host: "db", Port: 3307, User: "u", Password: "p", Database: "ragdb"})
	want := "u:p@tcp(db:3307)/ragdb?charset=utf8mb4&parseTime=True&loc=UTC"
	if got != want {
		t.Errorf("BuildDSN = %q, want %q", got, want)
	}
	if got := BuildDSN(Config{DSN: "x", Host: "ignored"}); got != "x" {
		t.Errorf("BuildDSN with DSN = %q", got)
	}
}

func TestOpen_DoesNotConnect(t *testing.T) {
	t.Parallel()
	db, err := Open(Config{Host: "127.0.0.1", Port: 1, User: "u", Database: "d"})
	if err != nil {
		t.Fatalf("Open should not contact the server: %v", err)
	}
	_ = Close(db)
}

func TestNewGormProvider_NilDB(t *testing.T) {
	t.Parallel()
	if _, err := NewGormProvider(nil); err == nil {
		t.Error("expected error for nil db")
	}
}
