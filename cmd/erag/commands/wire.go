package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/54b3r/estoque-rag/internal/embedder"
	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/service"
	"github.com/54b3r/estoque-rag/internal/source"
	"github.com/54b3r/estoque-rag/internal/store"
)

// Index backends accepted by INDEX_BACKEND.
const (
	indexQdrant = "qdrant"
	indexMemory = "memory"
)

// stackOptions selects the optional parts of a stack.
type stackOptions struct {
	// history opens the query history store (ERAG_HISTORY_DB).
	history bool
}

// stack is the fully wired service with the handles the commands need for
// readiness probes and cleanup.
type stack struct {
	// svc is the question-answering service.
	svc *service.Service
	// index is the embedding index over the selected vector store.
	index *rag.Index
	// qdrant is set when INDEX_BACKEND=qdrant.
	qdrant *rag.QdrantStore
	// provider reads the relational snapshot.
	provider *source.GormProvider
	// memoryIndex is true when the index lives in process memory.
	memoryIndex bool
	// closers run in reverse order on Close.
	closers []func()
}

// Close releases every resource opened by buildStack. It is safe on a nil
// stack.
func (s *stack) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack wires embedder, index, source database, synchronizer, retriever
// and, optionally, query history into a service.Service. Nothing here
// contacts the source database; Qdrant is contacted to ensure the collection.
func buildStack(ctx context.Context, log *slog.Logger, opts stackOptions) (_ *stack, err error) {
	st := &stack{}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	if err := embedder.Validate(log); err != nil {
		return nil, fmt.Errorf("embedder configuration: %w", err)
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embBackend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", embBackend))

	var vs rag.VectorStore
	switch backend := getEnvOrDefault("INDEX_BACKEND", indexQdrant); backend {
	case indexQdrant:
		cfg := &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "estoque-docs"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}
		qs, err := rag.NewQdrantStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		st.qdrant = qs
		vs = qs
		log.Info("qdrant store ready",
			slog.String("host", cfg.Host), slog.Int("port", cfg.Port), slog.String("collection", cfg.Collection))
	case indexMemory:
		vs = rag.NewMemoryStore()
		st.memoryIndex = true
		log.Info("in-memory index selected, documents are lost on exit")
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (valid values: qdrant, memory)", backend)
	}

	st.index, err = rag.NewIndex(emb, vs)
	if err != nil {
		_ = vs.Close()
		return nil, err
	}
	st.closers = append(st.closers, func() { _ = st.index.Close() })

	db, err := openSource(log)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, func() { _ = source.Close(db) })

	st.provider, err = source.NewGormProvider(db)
	if err != nil {
		return nil, err
	}

	syncer, err := ingestion.NewSynchronizer(st.provider, st.index, ingestion.Config{
		SalesWindow: getEnvInt("SYNC_SALES_WINDOW", ingestion.DefaultSalesWindow),
		Timeout:     getEnvDuration("SYNC_TIMEOUT", ingestion.DefaultSyncTimeout),
	})
	if err != nil {
		return nil, err
	}

	topK := getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK)
	retriever, err := rag.NewRetriever(st.index, topK,
		getEnvDuration("RETRIEVAL_TIMEOUT", rag.DefaultRetrievalTimeout))
	if err != nil {
		return nil, err
	}

	cfg := service.Config{
		Retriever:          retriever,
		Index:              st.index,
		Syncer:             syncer,
		TopK:               topK,
		KnowledgeThreshold: getEnvInt("KNOWLEDGE_SEED_THRESHOLD", 0),
	}
	if opts.history {
		if hs := openHistory(log); hs != nil {
			cfg.History = hs
			st.closers = append(st.closers, func() { _ = hs.Close() })
		}
	}

	st.svc, err = service.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// openSource opens the MySQL handle lazily; the first query connects.
func openSource(log *slog.Logger) (*gorm.DB, error) {
	cfg := source.ConfigFromEnv()
	db, err := source.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if cfg.DSN != "" {
		log.Info("source database configured", slog.String("dsn", "set"))
	} else {
		log.Info("source database configured",
			slog.String("host", cfg.Host), slog.Int("port", cfg.Port), slog.String("database", cfg.Database))
	}
	return db, nil
}

// openHistory opens the query history store. ERAG_HISTORY_DB overrides the
// default path (~/.erag/history.db); "disabled" turns history off. Failures
// disable history rather than aborting the command.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("ERAG_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via ERAG_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration parses a Go duration ("10s", "2m") from the named variable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
