package answer

import (
	"fmt"
	"strings"

	"github.com/54b3r/estoque-rag/internal/classify"
	"github.com/54b3r/estoque-rag/internal/format"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/textnorm"
)

// stockItem is an inventory document read back into typed fields.
type stockItem struct {
	name     string
	unit     string
	qty      float64
	price    float64
	hasQty   bool
	hasPrice bool
	text     string
}

// sale is a sales document read back into typed fields.
type sale struct {
	product  string
	customer string
	qty      float64
	total    float64
	hasQty   bool
	text     string
}

// partitions groups retrieved documents by source. Inventory and sales are
// de-duplicated by record so several variants of one row count once.
type partitions struct {
	stock   []stockItem
	sales   []sale
	general []rag.Document
}

// handler renders one intent branch. ok is false when the branch does not
// apply and the next fallback must be tried.
type handler func(p partitions, entity string) (text string, ok bool)

// handlers is the intent dispatch table. Unknown has no entry and goes
// straight to the fallbacks.
var handlers = map[classify.Intent]handler{
	classify.Quantity: renderQuantity,
	classify.Price:    renderPrice,
	classify.Sales:    renderSales,
	classify.List:     renderList,
}

// Synthesize composes the reply for a classified question. Branches are
// tried in order: the intent handler, general knowledge, a composite of
// whatever was found, and finally the fixed no-information reply when docs
// is empty.
func Synthesize(res classify.Result, docs []rag.RetrievedDocument) Answer {
	ans := Answer{
		Sources: append([]rag.RetrievedDocument{}, docs...),
		Intent:  res.Intent,
		Entity:  res.Entity,
	}
	if len(docs) == 0 {
		ans.Text = NoInformationText
		return ans
	}

	p := partition(docs)
	if h, ok := handlers[res.Intent]; ok {
		if text, ok := h(p, res.Entity); ok && strings.TrimSpace(text) != "" {
			ans.Text = text
			return ans
		}
	}
	if text, ok := renderKnowledge(p); ok && strings.TrimSpace(text) != "" {
		ans.Text = text
		return ans
	}
	ans.Text = renderComposite(p)
	return ans
}

func partition(docs []rag.RetrievedDocument) partitions {
	var p partitions
	seen := make(map[string]bool, len(docs))
	for _, rd := range docs {
		d := rd.Document
		src := d.Source()
		switch src {
		case rag.SourceInventory, rag.SourceSales:
			key := src + "/" + d.MetaString(rag.MetaRecordID)
			if d.MetaString(rag.MetaRecordID) == "" {
				key = src + "/id/" + d.ID
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			if src == rag.SourceInventory {
				p.stock = append(p.stock, readStock(d))
			} else {
				p.sales = append(p.sales, readSale(d))
			}
		default:
			// knowledge, custom and documents without a source.
			p.general = append(p.general, d)
		}
	}
	return p
}

func readStock(d rag.Document) stockItem {
	it := stockItem{
		name: d.MetaString(rag.MetaProductName),
		unit: d.MetaString(rag.MetaUnit),
		text: d.Content,
	}
	it.qty, it.hasQty = d.MetaFloat(rag.MetaQuantity)
	it.price, it.hasPrice = d.MetaFloat(rag.MetaUnitPrice)
	if it.unit == "" {
		it.unit = "unidade"
	}
	return it
}

func readSale(d rag.Document) sale {
	s := sale{
		product:  d.MetaString(rag.MetaProductName),
		customer: d.MetaString(rag.MetaCustomerName),
		text:     d.Content,
	}
	s.qty, s.hasQty = d.MetaFloat(rag.MetaQuantity)
	s.total, _ = d.MetaFloat(rag.MetaTotalValue)
	return s
}

// pick returns the single item a per-item intent should describe: the entity
// match if there is one, else the only item. ok is false when a list is needed.
func pick(items []stockItem, entity string) (stockItem, bool) {
	if entity != "" {
		want := textnorm.Fold(entity)
		for _, it := range items {
			if it.name != "" && textnorm.Fold(it.name) == want {
				return it, true
			}
		}
	}
	if len(items) == 1 {
		return items[0], true
	}
	return stockItem{}, false
}

func renderQuantity(p partitions, entity string) (string, bool) {
	if len(p.stock) == 0 {
		return "", false
	}
	if it, ok := pick(p.stock, entity); ok {
		if it.name == "" || !it.hasQty {
			return it.text, true
		}
		s := fmt.Sprintf("Temos %s %s de %s no estoque", format.Quantity(it.qty), it.unit, it.name)
		if it.hasPrice {
			s += fmt.Sprintf(", ao preço de %s por %s", format.Money(it.price), it.unit)
		}
		return s + ".", true
	}

	var b strings.Builder
	b.WriteString("Encontrei estes itens no estoque:")
	for _, it := range head(p.stock, maxListed) {
		b.WriteString("\n• ")
		b.WriteString(stockLine(it))
	}
	return b.String(), true
}

func renderPrice(p partitions, entity string) (string, bool) {
	if len(p.stock) == 0 {
		return "", false
	}
	if it, ok := pick(p.stock, entity); ok {
		if it.name == "" || !it.hasPrice {
			return it.text, true
		}
		s := fmt.Sprintf("O preço de %s é %s por %s", it.name, format.Money(it.price), it.unit)
		if it.hasQty {
			s += fmt.Sprintf(" (%s %s em estoque)", format.Quantity(it.qty), it.unit)
		}
		return s + ".", true
	}

	var b strings.Builder
	b.WriteString("Preços encontrados:")
	for _, it := range head(p.stock, maxListed) {
		b.WriteString("\n• ")
		if it.name == "" || !it.hasPrice {
			b.WriteString(it.text)
			continue
		}
		fmt.Fprintf(&b, "%s: %s por %s", it.name, format.Money(it.price), it.unit)
		if it.hasQty {
			fmt.Fprintf(&b, " (estoque: %s %s)", format.Quantity(it.qty), it.unit)
		}
	}
	return b.String(), true
}

func renderSales(p partitions, _ string) (string, bool) {
	if len(p.sales) == 0 {
		return "", false
	}
	listed := head(p.sales, maxListed)
	var (
		b     strings.Builder
		total float64
	)
	b.WriteString("Vendas recentes:")
	for _, s := range listed {
		b.WriteString("\n• ")
		b.WriteString(saleLine(s))
		total += s.total
	}
	fmt.Fprintf(&b, "\nTotal: %s em %d venda(s).", format.Money(total), len(listed))
	return b.String(), true
}

func renderList(p partitions, _ string) (string, bool) {
	if len(p.stock) == 0 {
		return "", false
	}
	var (
		b     strings.Builder
		total float64
	)
	b.WriteString("Itens no estoque:")
	for _, it := range p.stock {
		b.WriteString("\n• ")
		if it.name == "" || !it.hasQty || !it.hasPrice {
			b.WriteString(it.text)
			continue
		}
		line := it.qty * it.price
		total += line
		fmt.Fprintf(&b, "%s: %s %s × %s = %s",
			it.name, format.Quantity(it.qty), it.unit, format.Money(it.price), format.Money(line))
	}
	fmt.Fprintf(&b, "\nValor total em estoque: %s.", format.Money(total))
	return b.String(), true
}

func renderKnowledge(p partitions) (string, bool) {
	switch len(p.general) {
	case 0:
		return "", false
	case 1:
		return "[Conhecimento geral] " + p.general[0].Content, true
	}
	var b strings.Builder
	b.WriteString("Informações da base de conhecimento:")
	for _, d := range head(p.general, maxKnowledge) {
		b.WriteString("\n• [Conhecimento geral] ")
		b.WriteString(d.Content)
	}
	return b.String(), true
}

func renderComposite(p partitions) string {
	var b strings.Builder
	b.WriteString("Encontrei as seguintes informações relacionadas:")
	if len(p.stock) > 0 {
		b.WriteString("\nEstoque:")
		for _, it := range head(p.stock, maxCompositeStock) {
			b.WriteString("\n• ")
			b.WriteString(stockLine(it))
		}
	}
	if len(p.sales) > 0 {
		b.WriteString("\nVendas:")
		for _, s := range head(p.sales, maxCompositeSales) {
			b.WriteString("\n• ")
			b.WriteString(saleLine(s))
		}
	}
	if len(p.general) > 0 {
		b.WriteString("\nConhecimento geral:")
		for _, d := range head(p.general, maxCompositeGeneral) {
			b.WriteString("\n• ")
			b.WriteString(d.Content)
		}
	}
	return b.String()
}

func stockLine(it stockItem) string {
	if it.name == "" || !it.hasQty {
		return it.text
	}
	s := fmt.Sprintf("%s: %s %s", it.name, format.Quantity(it.qty), it.unit)
	if it.hasPrice {
		s += fmt.Sprintf(" (%s por %s)", format.Money(it.price), it.unit)
	}
	return s
}

func saleLine(s sale) string {
	if s.product == "" {
		return s.text
	}
	line := s.product
	if s.hasQty {
		line += fmt.Sprintf(": %s unidade(s)", format.Quantity(s.qty))
	}
	if s.customer != "" {
		line += " para " + s.customer
	}
	return line + ", total " + format.Money(s.total)
}

func head[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
