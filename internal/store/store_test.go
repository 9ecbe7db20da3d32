package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "Quantos alface tem?", "Temos 50 unidade de Alface no estoque."); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "Quais foram as vendas?", "Vendas recentes:"); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].Question != "Quais foram as vendas?" {
		t.Errorf("entries[0] = %q, want newest first", entries[0].Question)
	}
	if entries[1].Answer != "Temos 50 unidade de Alface no estoque." {
		t.Errorf("entries[1].Answer = %q", entries[1].Answer)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 12 {
		if err := s.Append(ctx, fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 || entries[0].Question != "q11" {
		t.Errorf("got %d entries, first %q", len(entries), entries[0].Question)
	}

	def, _ := s.Recent(ctx, 0)
	if len(def) != DefaultRecent {
		t.Errorf("default limit returned %d, want %d", len(def), DefaultRecent)
	}
}

func Test_Store_EmptyIsNonNil(t *testing.T) {
	t.Parallel()
	entries, err := openTestStore(t).Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if entries == nil {
		t.Error("Recent on empty store returned nil, want empty slice")
	}
}

func Test_Store_Timestamps(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_ = s.Append(context.Background(), "q", "a")
	entries, _ := s.Recent(context.Background(), 1)
	if !entries[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, fixed)
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Append(ctx, "persistida?", "sim")
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entries, _ := s2.Recent(ctx, 10)
	if len(entries) != 1 || entries[0].Question != "persistida?" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func Test_Store_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, fmt.Sprintf("q%d", i), "a"); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, _ := s.Recent(ctx, 100)
	if len(entries) != 20 {
		t.Errorf("want 20 entries, got %d", len(entries))
	}
}
