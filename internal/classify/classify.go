// Package classify assigns a question to one intent from a closed set and
// extracts the product it mentions. Both steps are lexical, pure and total:
// the same question always yields the same Result and nothing can fail.
package classify

import (
	"strings"

	"github.com/54b3r/estoque-rag/internal/textnorm"
)

// Intent is the primary purpose of a question.
type Intent string

// The closed set of intents.
const (
	Quantity Intent = "QUANTITY"
	Price    Intent = "PRICE"
	Sales    Intent = "SALES"
	List     Intent = "LIST"
	Unknown  Intent = "UNKNOWN"
)

// Rule maps a keyword set to an intent. Keywords are matched as whole words
// after folding case and accents; a keyword containing a space matches as a
// phrase.
type Rule struct {
	Intent   Intent
	Keywords []string
}

// Rules is the priority order: the first rule with a matching keyword wins,
// so a question with both quantity and price words is QUANTITY.
var Rules = []Rule{
	{Intent: Quantity, Keywords: []string{"quanto", "quantos", "quanta", "quantas", "quantidade", "tem", "estoque", "disponivel"}},
	{Intent: Price, Keywords: []string{"preco", "precos", "custa", "custam", "valor", "caro", "cara", "barato", "barata"}},
	{Intent: Sales, Keywords: []string{"venda", "vendas", "vendeu", "vendi", "vendido", "vendidos", "faturamento", "cliente", "clientes"}},
	{Intent: List, Keywords: []string{"listar", "liste", "lista", "mostrar", "mostre", "todos", "todas", "produtos", "catalogo"}},
}

// DefaultProducts is the ordered product vocabulary used for entity extraction.
var DefaultProducts = []string{"alface", "tomate", "cenoura", "batata", "cebola", "arroz", "feijão"}

// Result is the outcome of classifying a question.
type Result struct {
	// Intent is always set; Unknown when no rule matched.
	Intent Intent `json:"intent"`

	// Entity is the matched product in vocabulary spelling, or "".
	Entity string `json:"entity,omitempty"`
}

// compiledRule holds a rule's keywords pre-folded and split into words.
type compiledRule struct {
	intent  Intent
	phrases [][]string
}

// Classifier holds the compiled rules and product vocabulary. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	rules    []compiledRule
	products []string
	folded   []string
}

// New returns a Classifier over Rules and the given product vocabulary.
// A nil vocabulary selects DefaultProducts.
func New(products []string) *Classifier {
	return NewWithRules(Rules, products)
}

// NewWithRules returns a Classifier over a custom rule order.
func NewWithRules(rules []Rule, products []string) *Classifier {
	if products == nil {
		products = DefaultProducts
	}
	c := &Classifier{products: append([]string(nil), products...)}
	for _, r := range rules {
		cr := compiledRule{intent: r.Intent}
		for _, kw := range r.Keywords {
			if words := textnorm.Tokens(kw); len(words) > 0 {
				cr.phrases = append(cr.phrases, words)
			}
		}
		c.rules = append(c.rules, cr)
	}
	for _, p := range c.products {
		c.folded = append(c.folded, textnorm.Fold(p))
	}
	return c
}

// Classify returns the intent and entity for question.
func (c *Classifier) Classify(question string) Result {
	return Result{Intent: c.Intent(question), Entity: c.Entity(question)}
}

// Intent returns the first intent in rule order with a keyword present in
// question, or Unknown.
func (c *Classifier) Intent(question string) Intent {
	tokens := textnorm.Tokens(question)
	for _, r := range c.rules {
		for _, phrase := range r.phrases {
			if containsPhrase(tokens, phrase) {
				return r.intent
			}
		}
	}
	return Unknown
}

// Entity returns the first vocabulary product that occurs in question as a
// case- and accent-insensitive substring, or "".
func (c *Classifier) Entity(question string) string {
	q := textnorm.Fold(question)
	for i, p := range c.folded {
		if p != "" && strings.Contains(q, p) {
			return c.products[i]
		}
	}
	return ""
}

// containsPhrase reports whether phrase occurs as consecutive tokens.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 1 {
		return textnorm.ContainsWord(tokens, phrase[0])
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
