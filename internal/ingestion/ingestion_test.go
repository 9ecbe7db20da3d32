package ingestion

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/estoque-rag/internal/embedder"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/source"
	"github.com/54b3r/estoque-rag/internal/textnorm"
)

// fakeProvider serves a fixed snapshot and records calls.
type fakeProvider struct {
	mu        sync.Mutex
	items     []source.InventoryItem
	sales     []source.SaleRecord
	err       error
	lastLimit int
	calls     atomic.Int32
	// block, when set, is waited on (or ctx) before answering.
	block chan struct{}
}

func (p *fakeProvider) ListInventory(ctx context.Context) ([]source.InventoryItem, error) {
	p.calls.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return slices.Clone(p.items), nil
}

func (p *fakeProvider) ListRecentSales(_ context.Context, limit int) ([]source.SaleRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastLimit = limit
	if p.err != nil {
		return nil, p.err
	}
	if len(p.sales) > limit {
		return slices.Clone(p.sales[:limit]), nil
	}
	return slices.Clone(p.sales), nil
}

func (p *fakeProvider) set(items []source.InventoryItem, sales []source.SaleRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items, p.sales = items, sales
}

func newIndex(t *testing.T) *rag.Index {
	t.Helper()
	idx, err := rag.NewIndex(embedder.NewHashEmbedder(64), rag.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

var (
	alface = source.InventoryItem{ID: 1, ProductName: "Alface", Quantity: 50, Unit: "unidade", UnitPrice: 2.50, Category: "Verdura"}
	tomate = source.InventoryItem{ID: 2, ProductName: "Tomate", Quantity: 30, Unit: "kg", UnitPrice: 4.00, Category: "Legume"}
	venda  = source.SaleRecord{ID: 7, ProductName: "Tomate", Quantity: 3, TotalValue: 12.00, CustomerName: "Maria Santos",
		SaleDate: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
)

func indexedIDs(t *testing.T, idx *rag.Index, src string) []string {
	t.Helper()
	all, err := idx.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	var out []string
	for _, d := range all {
		if src == "" || d.Source() == src {
			out = append(out, d.ID)
		}
	}
	slices.Sort(out)
	return out
}

// ---------------------------------------------------------------------------
// Projection
// ---------------------------------------------------------------------------

func TestProjectInventory(t *testing.T) {
	t.Parallel()
	docs := ProjectInventory(alface)
	if len(docs) != InventoryVariants {
		t.Fatalf("len = %d, want %d", len(docs), InventoryVariants)
	}
	for i, d := range docs {
		if want := DocumentID(rag.SourceInventory, 1, i); d.ID != want {
			t.Errorf("docs[%d].ID = %q, want %q", i, d.ID, want)
		}
		if d.Metadata[rag.MetaQuantity] != 50 {
			t.Errorf("docs[%d] quantity = %#v, want int 50", i, d.Metadata[rag.MetaQuantity])
		}
		if d.Metadata[rag.MetaUnitPrice] != 2.50 {
			t.Errorf("docs[%d] unit price = %#v, want 2.50", i, d.Metadata[rag.MetaUnitPrice])
		}
		if d.Source() != rag.SourceInventory {
			t.Errorf("docs[%d] source = %q", i, d.Source())
		}
	}
	if !strings.Contains(docs[0].Content, "50 unidade") || !strings.Contains(docs[0].Content, "R$ 2.50") {
		t.Errorf("full variant = %q", docs[0].Content)
	}
	if !strings.Contains(docs[1].Content, "Temos 50") {
		t.Errorf("quantity variant = %q", docs[1].Content)
	}
	if !strings.Contains(docs[2].Content, "preço de Alface é R$ 2.50") {
		t.Errorf("price variant = %q", docs[2].Content)
	}
}

func TestProjectSale(t *testing.T) {
	t.Parallel()
	d := ProjectSale(venda)
	if d.ID != "vendas_7_0" {
		t.Errorf("ID = %q", d.ID)
	}
	if !strings.HasPrefix(d.Content, "Vendas: ") {
		t.Errorf("content %q should open with the sales keyword", d.Content)
	}
	for _, want := range []string{"Tomate", "Maria Santos", "R$ 12.00", "14/03/2026"} {
		if !strings.Contains(d.Content, want) {
			t.Errorf("content %q missing %q", d.Content, want)
		}
	}
	if d.Metadata[rag.MetaTotalValue] != 12.00 || d.Metadata[rag.MetaSaleDate] != "2026-03-14T10:00:00Z" {
		t.Errorf("metadata = %#v", d.Metadata)
	}
}

func TestProjectIsPure(t *testing.T) {
	t.Parallel()
	a := Project([]source.InventoryItem{alface, tomate}, []source.SaleRecord{venda})
	b := Project([]source.InventoryItem{alface, tomate}, []source.SaleRecord{venda})
	if !reflect.DeepEqual(a, b) {
		t.Error("Project is not deterministic")
	}
	if len(a) != 2*InventoryVariants+1 {
		t.Errorf("len = %d", len(a))
	}
}

// ---------------------------------------------------------------------------
// Synchronization
// ---------------------------------------------------------------------------

func TestSynchronize_ExactDerivedSetAndOthersUntouched(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	// Pre-existing state: a stale derived doc plus non-derived docs.
	seed := []rag.Document{
		{ID: "estoque_99_0", Content: "velho", Metadata: map[string]any{rag.MetaSource: rag.SourceInventory}},
		{ID: "vendas_98_0", Content: "velha", Metadata: map[string]any{rag.MetaSource: rag.SourceSales}},
		{ID: "knowledge_0", Content: "conhecimento", Metadata: map[string]any{rag.MetaSource: rag.SourceKnowledge}},
		{ID: "custom_x", Content: "nota", Metadata: map[string]any{rag.MetaSource: rag.SourceCustom}},
	}
	if err := idx.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p := &fakeProvider{items: []source.InventoryItem{alface, tomate}, sales: []source.SaleRecord{venda}}
	s, err := NewSynchronizer(p, idx, Config{})
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}
	report, err := s.Synchronize(ctx)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	wantInv := []string{"estoque_1_0", "estoque_1_1", "estoque_1_2", "estoque_2_0", "estoque_2_1", "estoque_2_2"}
	if got := indexedIDs(t, idx, rag.SourceInventory); !slices.Equal(got, wantInv) {
		t.Errorf("estoque ids = %v, want %v", got, wantInv)
	}
	if got := indexedIDs(t, idx, rag.SourceSales); !slices.Equal(got, []string{"vendas_7_0"}) {
		t.Errorf("vendas ids = %v", got)
	}
	if got := indexedIDs(t, idx, rag.SourceKnowledge); !slices.Equal(got, []string{"knowledge_0"}) {
		t.Errorf("knowledge ids = %v", got)
	}
	if got := indexedIDs(t, idx, rag.SourceCustom); !slices.Equal(got, []string{"custom_x"}) {
		t.Errorf("custom ids = %v", got)
	}
	if report.Upserted != 7 || report.Deleted != 2 || report.Inventory != 2 || report.Sales != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestSynchronize_Idempotent(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := &fakeProvider{items: []source.InventoryItem{alface, tomate}, sales: []source.SaleRecord{venda}}
	s, _ := NewSynchronizer(p, idx, Config{})

	if _, err := s.Synchronize(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	first, _ := idx.All(ctx)
	report, err := s.Synchronize(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	second, _ := idx.All(ctx)

	if !reflect.DeepEqual(first, second) {
		t.Error("index content changed between identical runs")
	}
	if report.Deleted != 0 {
		t.Errorf("second run deleted %d docs", report.Deleted)
	}
}

func TestSynchronize_RemovesDeletedRows(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := &fakeProvider{items: []source.InventoryItem{alface, tomate}, sales: []source.SaleRecord{venda}}
	s, _ := NewSynchronizer(p, idx, Config{})
	_, _ = s.Synchronize(ctx)

	p.set([]source.InventoryItem{tomate}, nil)
	report, err := s.Synchronize(ctx)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if got := indexedIDs(t, idx, ""); !slices.Equal(got, []string{"estoque_2_0", "estoque_2_1", "estoque_2_2"}) {
		t.Errorf("ids = %v", got)
	}
	if report.Deleted != 4 {
		t.Errorf("deleted = %d, want 4", report.Deleted)
	}
}

func TestSynchronize_SourceUnavailableLeavesIndexUnchanged(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := &fakeProvider{items: []source.InventoryItem{alface}}
	s, _ := NewSynchronizer(p, idx, Config{})
	_, _ = s.Synchronize(ctx)
	before, _ := idx.All(ctx)

	p.mu.Lock()
	p.err = errors.New("dial tcp 127.0.0.1:3306: connection refused")
	p.mu.Unlock()

	_, err := s.Synchronize(ctx)
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	after, _ := idx.All(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Error("index changed after failed synchronization")
	}
}

func TestSynchronize_SalesWindow(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	s, _ := NewSynchronizer(p, newIndex(t), Config{})
	_, _ = s.Synchronize(ctx)
	if p.lastLimit != DefaultSalesWindow {
		t.Errorf("limit = %d, want %d", p.lastLimit, DefaultSalesWindow)
	}

	s2, _ := NewSynchronizer(p, newIndex(t), Config{SalesWindow: 5})
	_, _ = s2.Synchronize(ctx)
	if p.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", p.lastLimit)
	}
}

func TestSynchronize_SingleFlight(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{items: []source.InventoryItem{alface}, block: make(chan struct{})}
	s, _ := NewSynchronizer(p, newIndex(t), Config{})

	var wg sync.WaitGroup
	reports := make([]*SyncReport, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = s.Synchronize(ctx)
		}()
	}

	// Wait until the first run is inside the provider, give the second
	// caller time to join, then release.
	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
	if !reports[0].Shared && !reports[1].Shared {
		t.Error("expected at least one caller to share the run")
	}
}

func TestSynchronize_Timeout(t *testing.T) {
	p := &fakeProvider{block: make(chan struct{})}
	s, _ := NewSynchronizer(p, newIndex(t), Config{Timeout: 20 * time.Millisecond})

	_, err := s.Synchronize(context.Background())
	if !errors.Is(err, ErrSyncTimeout) {
		t.Errorf("err = %v, want ErrSyncTimeout", err)
	}
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestSynchronize_CallerCancel(t *testing.T) {
	p := &fakeProvider{block: make(chan struct{})}
	defer close(p.block)
	s, _ := NewSynchronizer(p, newIndex(t), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Synchronize(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Knowledge seeding
// ---------------------------------------------------------------------------

func TestSeedKnowledge(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	n, err := SeedKnowledge(ctx, idx, 0)
	if err != nil {
		t.Fatalf("SeedKnowledge: %v", err)
	}
	if n != len(KnowledgeCatalog) {
		t.Errorf("seeded %d, want %d", n, len(KnowledgeCatalog))
	}

	again, err := SeedKnowledge(ctx, idx, 0)
	if err != nil || again != 0 {
		t.Errorf("second seed = %d, %v; want 0, nil", again, err)
	}
	if got := indexedIDs(t, idx, rag.SourceKnowledge); len(got) != len(KnowledgeCatalog) {
		t.Errorf("knowledge docs = %d", len(got))
	}
}

func TestSeedKnowledge_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	_ = idx.Upsert(ctx, []rag.Document{{ID: "custom_1", Content: "x", Metadata: map[string]any{rag.MetaSource: rag.SourceCustom}}})

	n, err := SeedKnowledge(ctx, idx, 100)
	if err != nil || n != len(KnowledgeCatalog) {
		t.Errorf("SeedKnowledge = %d, %v", n, err)
	}
}

func TestKnowledgeCatalog_AvoidsStoreVocabulary(t *testing.T) {
	t.Parallel()
	banned := map[string]bool{
		"estoque": true, "venda": true, "vendas": true, "vendidas": true, "vendido": true,
		"preco": true, "quantidade": true, "valor": true, "total": true, "cliente": true,
	}
	for i, text := range KnowledgeCatalog {
		for _, w := range textnorm.Tokens(text) {
			if banned[w] {
				t.Errorf("KnowledgeCatalog[%d] uses %q, which competes with derived documents", i, w)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Chunking
// ---------------------------------------------------------------------------

func TestChunk(t *testing.T) {
	t.Parallel()

	if got := Chunk("   ", 10, 2); got != nil {
		t.Errorf("blank text = %v, want nil", got)
	}
	if got := Chunk("curto", 100, 10); !slices.Equal(got, []string{"curto"}) {
		t.Errorf("short text = %v", got)
	}

	text := strings.Repeat("palavra ", 50)
	chunks := Chunk(text, 40, 8)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 40 {
			t.Errorf("chunk %d has %d runes", i, len([]rune(c)))
		}
		if strings.HasPrefix(c, "alavra") || strings.HasSuffix(c, "palavr") {
			t.Errorf("chunk %d splits a word: %q", i, c)
		}
	}
}
