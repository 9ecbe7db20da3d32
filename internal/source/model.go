// Package source is the relational side of the engine: the inventory and
// sales tables, and the Provider that reads snapshots of them for index
// synchronization. Rows are owned by the database; this package only reads
// them, apart from the sample-data seeding used by `erag seed-db`.
package source

import "time"

// InventoryItem is one row of the estoque table.
type InventoryItem struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ProductName string    `gorm:"column:produto;size:100;not null"`
	Quantity    int       `gorm:"column:quantidade;not null"`
	Unit        string    `gorm:"column:unidade;size:20;default:unidade"`
	UnitPrice   float64   `gorm:"column:preco"`
	Category    string    `gorm:"column:categoria;size:50"`
	LastUpdated time.Time `gorm:"column:ultima_atualizacao;autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (InventoryItem) TableName() string {
	return "estoque"
}

// SaleRecord is one row of the vendas table.
type SaleRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ProductName  string    `gorm:"column:produto;size:100;not null"`
	Quantity     int       `gorm:"column:quantidade;not null"`
	TotalValue   float64   `gorm:"column:valor_total"`
	SaleDate     time.Time `gorm:"column:data_venda;index"`
	CustomerName string    `gorm:"column:cliente;size:100"`
}

// TableName returns the table name for GORM.
func (SaleRecord) TableName() string {
	return "vendas"
}
