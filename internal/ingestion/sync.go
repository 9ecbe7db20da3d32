package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/source"
)

// Defaults applied by NewSynchronizer when Config fields are zero.
const (
	DefaultSalesWindow = 20
	DefaultSyncTimeout = 60 * time.Second
)

// ErrSyncTimeout is returned when a synchronization run exceeds its timeout.
var ErrSyncTimeout = errors.New("ingestion: synchronization timed out")

// Index is the subset of rag.Index the synchronizer writes to.
type Index interface {
	Upsert(ctx context.Context, docs []rag.Document) error
	DeleteByIDs(ctx context.Context, ids []string) error
	All(ctx context.Context) ([]rag.Document, error)
	Count(ctx context.Context) (int, error)
}

// Config holds the synchronizer settings.
type Config struct {
	// SalesWindow is the number of most recent sales projected into the index.
	// Defaults to 20 if zero.
	SalesWindow int

	// Timeout bounds a whole synchronization run.
	// Defaults to 60s if zero.
	Timeout time.Duration
}

// SyncReport summarises one completed synchronization run.
type SyncReport struct {
	// Inventory is the number of inventory rows in the snapshot.
	Inventory int `json:"inventory"`

	// Sales is the number of sale rows in the snapshot.
	Sales int `json:"sales"`

	// Upserted is the number of derived documents written.
	Upserted int `json:"upserted"`

	// Deleted is the number of stale derived documents removed.
	Deleted int `json:"deleted"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`

	// Shared is true when this caller joined a run started by another caller.
	Shared bool `json:"shared"`
}

// Synchronizer reconciles the derived documents in the index with the
// relational snapshot. Concurrent calls to Synchronize share a single run.
type Synchronizer struct {
	// provider reads the relational snapshot.
	provider source.Provider

	// index receives the projected documents.
	index Index

	// cfg holds the resolved settings.
	cfg Config

	// group collapses concurrent runs into one.
	group singleflight.Group
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(provider source.Provider, index Index, cfg Config) (*Synchronizer, error) {
	if provider == nil {
		return nil, fmt.Errorf("ingestion: provider must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg.SalesWindow <= 0 {
		cfg.SalesWindow = DefaultSalesWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &Synchronizer{provider: provider, index: index, cfg: cfg}, nil
}

// Synchronize runs one reconciliation, or waits for the run already in
// flight. The run itself is detached from ctx cancellation so that one
// impatient caller cannot abort a run other callers are waiting on; it is
// still bounded by Config.Timeout.
//
// On source failure the error wraps source.ErrSourceUnavailable and the
// index is left unchanged.
func (s *Synchronizer) Synchronize(ctx context.Context) (*SyncReport, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("sync", func() (any, error) {
		return s.run(runCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ingestion: waiting for synchronization: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		report := *res.Val.(*SyncReport)
		report.Shared = res.Shared
		return &report, nil
	}
}

// run fetches the snapshot, writes the projected documents, then removes
// derived documents that are no longer in the snapshot. Nothing is written
// until the snapshot and the current index listing are both in hand.
func (s *Synchronizer) run(ctx context.Context) (*SyncReport, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	items, err := s.provider.ListInventory(ctx)
	if err != nil {
		return nil, s.fail(ctx, sourceErr(err))
	}
	sales, err := s.provider.ListRecentSales(ctx, s.cfg.SalesWindow)
	if err != nil {
		return nil, s.fail(ctx, sourceErr(err))
	}

	docs := Project(items, sales)
	wanted := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		wanted[d.ID] = struct{}{}
	}

	existing, err := s.index.All(ctx)
	if err != nil {
		return nil, s.fail(ctx, fmt.Errorf("ingestion: list indexed documents: %w", err))
	}
	var stale []string
	for _, d := range existing {
		if !IsDerived(d) {
			continue
		}
		if _, ok := wanted[d.ID]; !ok {
			stale = append(stale, d.ID)
		}
	}
	slices.Sort(stale)

	if err := s.index.Upsert(ctx, docs); err != nil {
		return nil, s.fail(ctx, fmt.Errorf("ingestion: upsert derived documents: %w", err))
	}
	if err := s.index.DeleteByIDs(ctx, stale); err != nil {
		return nil, s.fail(ctx, fmt.Errorf("ingestion: delete stale documents: %w", err))
	}

	report := &SyncReport{
		Inventory: len(items),
		Sales:     len(sales),
		Upserted:  len(docs),
		Deleted:   len(stale),
		Duration:  time.Since(start),
	}
	log.Info("ingestion: synchronization complete",
		slog.Int("inventory", report.Inventory),
		slog.Int("sales", report.Sales),
		slog.Int("upserted", report.Upserted),
		slog.Int("deleted", report.Deleted),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// fail tags err with ErrSyncTimeout when the run deadline has passed.
func (s *Synchronizer) fail(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrSyncTimeout, s.cfg.Timeout, err)
	}
	return err
}

// sourceErr guarantees provider failures carry ErrSourceUnavailable.
func sourceErr(err error) error {
	if errors.Is(err, source.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
}
