// Package ingestion keeps the vector index in step with the relational
// database. It projects inventory and sales rows into searchable documents,
// reconciles the derived documents in the index against the current
// snapshot, seeds the general-knowledge catalog, and chunks operator-supplied
// files into custom documents.
package ingestion

import (
	"fmt"
	"time"

	"github.com/54b3r/estoque-rag/internal/format"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/source"
)

// InventoryVariants is the number of documents projected per inventory row.
const InventoryVariants = 3

// DocumentID returns the deterministic id of a derived document.
func DocumentID(src string, recordID int64, variant int) string {
	return fmt.Sprintf("%s_%d_%d", src, recordID, variant)
}

// ProjectInventory returns the InventoryVariants documents for item, in
// order: full description, quantity-focused, price-focused.
func ProjectInventory(item source.InventoryItem) []rag.Document {
	qty := format.Quantity(float64(item.Quantity))
	price := format.Money(item.UnitPrice)
	unit := item.Unit
	if unit == "" {
		unit = "unidade"
	}

	texts := [InventoryVariants]string{
		fmt.Sprintf("Produto: %s. Categoria: %s. Quantidade em estoque: %s %s. Preço unitário: %s.",
			item.ProductName, item.Category, qty, unit, price),
		fmt.Sprintf("Temos %s %s de %s no estoque.", qty, unit, item.ProductName),
		fmt.Sprintf("O preço de %s é %s por %s.", item.ProductName, price, unit),
	}

	docs := make([]rag.Document, 0, InventoryVariants)
	for i, text := range texts {
		meta := map[string]any{
			rag.MetaSource:      rag.SourceInventory,
			rag.MetaRecordID:    item.ID,
			rag.MetaVariant:     i,
			rag.MetaProductName: item.ProductName,
			rag.MetaQuantity:    item.Quantity,
			rag.MetaUnit:        unit,
			rag.MetaUnitPrice:   item.UnitPrice,
			rag.MetaCategory:    item.Category,
		}
		docs = append(docs, rag.Document{
			ID:       DocumentID(rag.SourceInventory, item.ID, i),
			Content:  text,
			Metadata: meta,
		})
	}
	return docs
}

// ProjectSale returns the single document for sale.
func ProjectSale(sale source.SaleRecord) rag.Document {
	text := fmt.Sprintf("Vendas: %s unidade(s) de %s vendidas ao cliente %s, valor total %s",
		format.Quantity(float64(sale.Quantity)), sale.ProductName, sale.CustomerName, format.Money(sale.TotalValue))
	meta := map[string]any{
		rag.MetaSource:       rag.SourceSales,
		rag.MetaRecordID:     sale.ID,
		rag.MetaVariant:      0,
		rag.MetaProductName:  sale.ProductName,
		rag.MetaCustomerName: sale.CustomerName,
		rag.MetaTotalValue:   sale.TotalValue,
		rag.MetaQuantity:     sale.Quantity,
	}
	if !sale.SaleDate.IsZero() {
		text += fmt.Sprintf(", em %s", sale.SaleDate.Format("02/01/2006"))
		meta[rag.MetaSaleDate] = sale.SaleDate.UTC().Format(time.RFC3339)
	}
	return rag.Document{
		ID:       DocumentID(rag.SourceSales, sale.ID, 0),
		Content:  text + ".",
		Metadata: meta,
	}
}

// Project converts a full snapshot into documents: every inventory variant in
// row order, followed by one document per sale.
func Project(items []source.InventoryItem, sales []source.SaleRecord) []rag.Document {
	docs := make([]rag.Document, 0, len(items)*InventoryVariants+len(sales))
	for _, item := range items {
		docs = append(docs, ProjectInventory(item)...)
	}
	for _, sale := range sales {
		docs = append(docs, ProjectSale(sale))
	}
	return docs
}

// IsDerived reports whether a document is owned by the synchronizer.
func IsDerived(doc rag.Document) bool {
	src := doc.Source()
	return src == rag.SourceInventory || src == rag.SourceSales
}
