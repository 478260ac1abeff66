// Package engine is the public facade of the knowledge base: document
// indexing, hybrid retrieval and grounded answer generation behind one
// API, with transport layers left to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.clinix.kb/internal/config"
	"dev.clinix.kb/internal/embedding"
	"dev.clinix.kb/internal/indexer"
	"dev.clinix.kb/internal/llm"
	"dev.clinix.kb/internal/observability/metrics"
	"dev.clinix.kb/internal/rag"
	"dev.clinix.kb/internal/vectordb/qdrant"
)

// DefaultSearchLimit is used when the caller does not specify one.
const DefaultSearchLimit = 5

// previewRunes caps the source text preview length.
const previewRunes = 200

// historyAnswerRunes caps how much of the previous answer is folded
// into a follow-up query.
const historyAnswerRunes = 300

// NoResultsAnswer is returned when retrieval finds nothing relevant.
const NoResultsAnswer = "No relevant documents found for this question."

// HistoryEntry is one question/answer exchange owned by the caller.
type HistoryEntry struct {
	Question string
	Answer   string
}

// Source describes one document chunk backing an answer.
type Source struct {
	Filename string
	Preview  string
	Score    float64
}

// Result is a generated answer with its supporting sources.
type Result struct {
	Answer  string
	Sources []Source
	// Found is false when retrieval produced nothing and the answer is
	// the stock no-results message.
	Found bool
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	Filename string
	Chunks   int
}

// Engine wires the retrieval pipeline together.
type Engine struct {
	cfg       *config.Config
	store     *qdrant.Client
	embedder  *embedding.Client
	retriever *rag.Retriever
	assembler *rag.Assembler
	indexer   *indexer.Indexer
	generator *llm.Client
	collector *metrics.Collector
	logger    *logrus.Logger
}

// New builds an engine from the configuration.
func New(cfg *config.Config, logger *logrus.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	store, err := qdrant.NewClient(cfg.Qdrant, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store client: %w", err)
	}
	embedder, err := embedding.NewClient(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	retriever, err := rag.NewRetriever(store, embedder, cfg.Collection, cfg.Ranking, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}
	assembler := rag.NewAssembler(store, cfg.Collection, cfg.Ranking, logger)

	ix, err := indexer.New(store, embedder, cfg.Indexer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	generator, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		retriever: retriever,
		assembler: assembler,
		indexer:   ix,
		generator: generator,
		collector: metrics.NewCollector(),
		logger:    logger,
	}, nil
}

// Bootstrap verifies the vector store is reachable and creates the
// collection when missing, sized to the embedding model's dimension.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	collection := qdrant.DefaultCollectionConfig(e.cfg.Collection, e.embedder.Dimension())
	if err := e.store.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	return nil
}

// IndexDocument chunks, embeds and stores a document.
func (e *Engine) IndexDocument(ctx context.Context, filename, text string) (*indexer.Report, error) {
	report, err := e.indexer.IndexDocument(ctx, filename, text)
	if err != nil {
		return nil, err
	}
	e.collector.ChunksIndexed.WithLabelValues("indexed").Add(float64(report.Indexed))
	e.collector.ChunksIndexed.WithLabelValues("existing").Add(float64(report.Existing))
	e.collector.ChunksIndexed.WithLabelValues("failed").Add(float64(report.Failed))
	return report, nil
}

// Search runs the retrieval pipeline and returns ranked candidates.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]rag.Candidate, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	candidates, err := e.retriever.Search(ctx, query, limit)
	e.collector.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.collector.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(candidates) == 0 {
		e.collector.QueriesTotal.WithLabelValues("empty").Inc()
		e.collector.EmptyResults.Inc()
	} else {
		e.collector.QueriesTotal.WithLabelValues("answered").Inc()
	}
	return candidates, nil
}

// Answer retrieves context for the query and generates a grounded
// answer. Retrieval always sees the raw question: the keyword and
// definition-term heuristics parse its text, so the previous exchange
// is folded only into the generation prompt.
func (e *Engine) Answer(ctx context.Context, query string, history []HistoryEntry) (*Result, error) {
	candidates, err := e.Search(ctx, query, DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if len(candidates) == 0 {
		return &Result{Answer: NoResultsAnswer, Found: false}, nil
	}

	contextBlock := e.assembler.Assemble(ctx, candidates)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, foldHistory(query, history))

	answer, err := e.generator.Complete(ctx, e.cfg.SystemPrompt, user)
	if err != nil {
		// Balance and auth failures get a human-readable answer so the
		// conversation degrades instead of erroring out.
		if msg, ok := llm.OperatorMessage(err); ok {
			e.collector.GenerationErrors.WithLabelValues(errorKind(err)).Inc()
			return &Result{Answer: msg, Sources: sources(candidates), Found: true}, nil
		}
		e.collector.GenerationErrors.WithLabelValues("other").Inc()
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return &Result{Answer: answer, Sources: sources(candidates), Found: true}, nil
}

// ListDocuments returns the distinct indexed documents with their chunk
// counts, sorted by filename.
func (e *Engine) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	points, err := e.store.ScrollAll(ctx, e.cfg.Collection, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll documents: %w", err)
	}

	counts := make(map[string]int)
	for _, p := range points {
		payload := rag.PayloadFromMap(p.Payload)
		if payload.Filename != "" {
			counts[payload.Filename]++
		}
	}

	docs := make([]DocumentInfo, 0, len(counts))
	for filename, chunks := range counts {
		docs = append(docs, DocumentInfo{Filename: filename, Chunks: chunks})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}

// MetricsHandler serves the engine's Prometheus metrics.
func (e *Engine) MetricsHandler() http.Handler {
	return e.collector.Handler()
}

// foldHistory prepends the last exchange to a follow-up question so
// the generator can resolve pronouns and ellipses against it.
func foldHistory(query string, history []HistoryEntry) string {
	if len(history) == 0 {
		return query
	}
	last := history[len(history)-1]
	return fmt.Sprintf("Previous question: %s\nPrevious answer: %s\nNew question: %s",
		last.Question, truncateRunes(last.Answer, historyAnswerRunes), query)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func sources(candidates []rag.Candidate) []Source {
	result := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		preview := strings.TrimSpace(c.Payload.Text)
		result = append(result, Source{
			Filename: c.Payload.Filename,
			Preview:  truncateRunes(preview, previewRunes),
			Score:    c.Score,
		})
	}
	return result
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, llm.ErrOutOfBalance):
		return "balance"
	case errors.Is(err, llm.ErrUnauthorized):
		return "auth"
	}
	return "other"
}
