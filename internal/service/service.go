// Package service wires retrieval, classification and synthesis into the
// question-answering pipeline and exposes the operations the transport
// layers call: Ask, AddDocuments, Resync, Count and History.
//
// A Service is built explicitly with New and prepared with Init; there is no
// package-level instance.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/54b3r/estoque-rag/internal/answer"
	"github.com/54b3r/estoque-rag/internal/classify"
	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/store"
)

// DefaultWriteTimeout bounds AddDocuments and Count against the index.
const DefaultWriteTimeout = 30 * time.Second

// ValidationError reports malformed caller input. It is returned before any
// backend is contacted.
type ValidationError struct {
	// Field names the offending input, e.g. "texts[2]".
	Field string
	// Reason says what is wrong with it.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Syncer runs index synchronization.
type Syncer interface {
	Synchronize(ctx context.Context) (*ingestion.SyncReport, error)
}

// History persists answered questions. Optional.
type History interface {
	Append(ctx context.Context, question, answer string) error
	Recent(ctx context.Context, n int) ([]store.Entry, error)
}

// Config holds the collaborators of a Service.
type Config struct {
	// Retriever fetches documents for a question. Required.
	Retriever rag.Retriever

	// Index is the writable document index. Required.
	Index ingestion.Index

	// Syncer reconciles derived documents. Required.
	Syncer Syncer

	// Classifier defaults to classify.New(nil).
	Classifier *classify.Classifier

	// History records questions and answers when set.
	History History

	// TopK is the default number of documents retrieved per question.
	// Defaults to rag.DefaultTopK if zero.
	TopK int

	// KnowledgeThreshold is passed to ingestion.SeedKnowledge by Init.
	KnowledgeThreshold int

	// WriteTimeout bounds index writes and counts.
	// Defaults to 30s if zero.
	WriteTimeout time.Duration
}

// Service is the question-answering pipeline. It is safe for concurrent use.
type Service struct {
	cfg   Config
	chain compose.Runnable[*askState, *askState]
}

// askState flows through the compiled chain. Retrieval failures are carried
// in the state rather than returned, so the synthesize step can turn them
// into a degraded answer.
type askState struct {
	Question     string
	TopK         int
	Docs         []rag.RetrievedDocument
	RetrievalErr error
	Result       classify.Result
	Answer       answer.Answer
}

// New validates cfg and compiles the ask chain.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("service: retriever must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("service: index must not be nil")
	}
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("service: syncer must not be nil")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(nil)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	s := &Service{cfg: cfg}
	chain, err := s.buildChain(ctx)
	if err != nil {
		return nil, err
	}
	s.chain = chain
	return s, nil
}

// buildChain compiles retrieve → classify → synthesize. Running it as an
// eino chain lets globally registered callback handlers (Langfuse) trace
// each step.
func (s *Service) buildChain(ctx context.Context) (compose.Runnable[*askState, *askState], error) {
	chain := compose.NewChain[*askState, *askState]()

	chain.AppendLambda(compose.InvokableLambda(func(ctx context.Context, st *askState) (*askState, error) {
		docs, err := s.cfg.Retriever.Retrieve(ctx, st.Question, st.TopK)
		if err != nil {
			st.RetrievalErr = err
			return st, nil
		}
		st.Docs = docs
		return st, nil
	}), compose.WithNodeName("retrieve"))

	chain.AppendLambda(compose.InvokableLambda(func(_ context.Context, st *askState) (*askState, error) {
		st.Result = s.cfg.Classifier.Classify(st.Question)
		return st, nil
	}), compose.WithNodeName("classify"))

	chain.AppendLambda(compose.InvokableLambda(func(_ context.Context, st *askState) (*askState, error) {
		if st.RetrievalErr != nil {
			st.Answer = answer.Unavailable(st.Result)
			return st, nil
		}
		st.Answer = answer.Synthesize(st.Result, st.Docs)
		return st, nil
	}), compose.WithNodeName("synthesize"))

	r, err := chain.Compile(ctx, compose.WithGraphName("ask"))
	if err != nil {
		return nil, fmt.Errorf("service: compile ask chain: %w", err)
	}
	return r, nil
}

// Init seeds the knowledge catalog and runs a first synchronization. A
// synchronization failure is logged and not returned: the service can
// answer from whatever is already indexed and the operator can resync later.
func (s *Service) Init(ctx context.Context) error {
	log := logging.FromContext(ctx)

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if _, err := ingestion.SeedKnowledge(wctx, s.cfg.Index, s.cfg.KnowledgeThreshold); err != nil {
		return fmt.Errorf("service: init: %w", err)
	}

	if _, err := s.cfg.Syncer.Synchronize(ctx); err != nil {
		log.Warn("service: initial synchronization failed, continuing with current index",
			slog.String("error", err.Error()))
	}
	return nil
}

// Ask answers question using at most k retrieved documents (k <= 0 uses the
// configured default). Backend failures never surface as errors: the answer
// is marked Degraded instead. The only error is a ValidationError for a
// blank question.
func (s *Service) Ask(ctx context.Context, question string, k int) (answer.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return answer.Answer{}, &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if k <= 0 {
		k = s.cfg.TopK
	}
	log := logging.FromContext(ctx)

	out, err := s.chain.Invoke(ctx, &askState{Question: question, TopK: k})
	var ans answer.Answer
	switch {
	case err != nil:
		log.Error("service: ask chain failed", slog.String("error", err.Error()))
		ans = answer.Unavailable(s.cfg.Classifier.Classify(question))
	case out.RetrievalErr != nil:
		log.Warn("service: retrieval unavailable", slog.String("error", out.RetrievalErr.Error()))
		ans = out.Answer
	default:
		ans = out.Answer
	}

	log.Info("service: question answered",
		slog.String("intent", string(ans.Intent)),
		slog.String("entity", ans.Entity),
		slog.Int("sources", len(ans.Sources)),
		slog.Bool("degraded", ans.Degraded),
	)

	if s.cfg.History != nil {
		if err := s.cfg.History.Append(ctx, question, ans.Text); err != nil {
			log.Warn("service: failed to record query history", slog.String("error", err.Error()))
		}
	}
	return ans, nil
}

// AddDocuments indexes operator-supplied texts. metadatas may be nil or must
// be parallel to texts. A missing source defaults to "custom"; the derived
// sources are reserved for the synchronizer. It returns the generated ids.
func (s *Service) AddDocuments(ctx context.Context, texts []string, metadatas []map[string]any) ([]string, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Field: "texts", Reason: "must contain at least one document"}
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, &ValidationError{
			Field:  "metadatas",
			Reason: fmt.Sprintf("has %d entries but texts has %d", len(metadatas), len(texts)),
		}
	}

	docs := make([]rag.Document, 0, len(texts))
	ids := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("texts[%d]", i), Reason: "must not be blank"}
		}
		meta := map[string]any{}
		if metadatas != nil && metadatas[i] != nil {
			meta = maps.Clone(metadatas[i])
		}
		src, _ := meta[rag.MetaSource].(string)
		switch src {
		case "":
			src = rag.SourceCustom
		case rag.SourceInventory, rag.SourceSales:
			return nil, &ValidationError{
				Field:  fmt.Sprintf("metadatas[%d].source", i),
				Reason: fmt.Sprintf("%q is reserved for synchronized documents", src),
			}
		}
		meta[rag.MetaSource] = src

		id := src + "_" + uuid.NewString()
		docs = append(docs, rag.Document{ID: id, Content: text, Metadata: meta})
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.cfg.Index.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("%w: add documents: %w", rag.ErrRetrievalUnavailable, err)
	}
	logging.FromContext(ctx).Info("service: documents added", slog.Int("count", len(docs)))
	return ids, nil
}

// Resync runs (or joins) an index synchronization.
func (s *Service) Resync(ctx context.Context) (*ingestion.SyncReport, error) {
	report, err := s.cfg.Syncer.Synchronize(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: resync: %w", err)
	}
	return report, nil
}

// Count returns the number of indexed documents.
func (s *Service) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	n, err := s.cfg.Index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", rag.ErrRetrievalUnavailable, err)
	}
	return n, nil
}

// ErrHistoryDisabled is returned by History when no store is configured.
var ErrHistoryDisabled = errors.New("service: query history is disabled")

// History returns the n most recent questions, newest first.
func (s *Service) History(ctx context.Context, n int) ([]store.Entry, error) {
	if s.cfg.History == nil {
		return nil, ErrHistoryDisabled
	}
	entries, err := s.cfg.History.Recent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("service: history: %w", err)
	}
	return entries, nil
}
