// Package indexer loads documents into the vector store. Indexing is
// idempotent and resumable: point ids derive from the document name and
// chunk position, and already-stored chunks are skipped on re-runs.
package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dev.clinix.kb/internal/chunker"
	"dev.clinix.kb/internal/rag"
	"dev.clinix.kb/internal/vectordb/qdrant"
)

// Store is the slice of the vector store the indexer needs.
type Store interface {
	UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error
	ScrollAll(ctx context.Context, collection string, filter qdrant.Filter) ([]qdrant.Point, error)
}

// Config holds indexer settings.
type Config struct {
	Collection string         `yaml:"collection"`
	Chunk      chunker.Config `yaml:"chunk"`
	// EmbedRate caps embedding requests per second; zero means unlimited.
	EmbedRate float64 `yaml:"embed_rate"`
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() *Config {
	return &Config{
		Collection: "documents",
		Chunk:      chunker.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.EmbedRate < 0 {
		return fmt.Errorf("embed_rate cannot be negative")
	}
	return c.Chunk.Validate()
}

// Report summarizes one document indexing run.
type Report struct {
	Filename    string
	TotalChunks int
	// Existing chunks found in the store and left untouched.
	Existing int
	// Indexed chunks embedded and upserted by this run.
	Indexed int
	// Failed chunks whose embedding failed; a later run retries them.
	Failed int
	// Reconciled is set when the stored total_chunks disagreed with the
	// recomputed chunking.
	Reconciled bool
}

// Indexer writes chunked, embedded documents into the vector store.
type Indexer struct {
	store    Store
	embedder rag.Embedder
	config   *Config
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

// New creates an indexer.
func New(store Store, embedder rag.Embedder, config *Config, logger *logrus.Logger) (*Indexer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	if config.EmbedRate > 0 {
		limit = rate.Limit(config.EmbedRate)
	}

	return &Indexer{
		store:    store,
		embedder: embedder,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}, nil
}

// PointID returns the deterministic id for a document chunk. The same
// document name and position always map to the same point, which is
// what makes re-indexing an overwrite instead of a duplicate.
func PointID(filename string, chunkIndex int) string {
	name := fmt.Sprintf("%s_%d", filename, chunkIndex)
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(name)).String()
}

// IndexDocument chunks, embeds and stores a document. Chunks already in
// the store are skipped; per-chunk embedding failures are logged and
// left for the next run.
func (ix *Indexer) IndexDocument(ctx context.Context, filename, text string) (*Report, error) {
	chunks, err := chunker.Split(text, ix.config.Chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", filename, err)
	}

	report := &Report{Filename: filename, TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		ix.logger.WithField("filename", filename).Warn("Document produced no chunks, skipping")
		return report, nil
	}

	existing, storedTotal, err := ix.existingChunks(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing chunks for %s: %w", filename, err)
	}
	report.Existing = len(existing)

	if storedTotal > 0 && storedTotal != len(chunks) {
		// The chunking parameters or the document changed since the
		// last run. The recomputed count wins; stale points keep their
		// ids and get overwritten below.
		report.Reconciled = true
		ix.logger.WithFields(logrus.Fields{
			"filename":     filename,
			"stored_total": storedTotal,
			"actual_total": len(chunks),
		}).Warn("Stored chunk count disagrees with recomputed chunking")
	}

	for i, chunk := range chunks {
		if existing[i] && !report.Reconciled {
			continue
		}

		if err := ix.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("indexing interrupted: %w", err)
		}

		vector, err := ix.embedder.Embed(ctx, chunk)
		if err != nil {
			report.Failed++
			ix.logger.WithError(err).WithFields(logrus.Fields{
				"filename": filename,
				"chunk":    i,
			}).Error("Failed to embed chunk, will retry on next run")
			continue
		}

		point := qdrant.Point{
			ID:     PointID(filename, i),
			Vector: vector,
			Payload: rag.ChunkPayload{
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				Text:        chunk,
			}.ToMap(),
		}
		if err := ix.store.UpsertPoints(ctx, ix.config.Collection, []qdrant.Point{point}); err != nil {
			return report, fmt.Errorf("failed to store chunk %d of %s: %w", i, filename, err)
		}
		report.Indexed++
	}

	ix.logger.WithFields(logrus.Fields{
		"filename": filename,
		"total":    report.TotalChunks,
		"existing": report.Existing,
		"indexed":  report.Indexed,
		"failed":   report.Failed,
	}).Info("Document indexed")

	return report, nil
}

// existingChunks returns the set of chunk indices already stored for the
// document and the total_chunks value recorded with them.
func (ix *Indexer) existingChunks(ctx context.Context, filename string) (map[int]bool, int, error) {
	filter := qdrant.Must(qdrant.MatchValue(rag.PayloadFilename, filename))
	points, err := ix.store.ScrollAll(ctx, ix.config.Collection, filter)
	if err != nil {
		return nil, 0, err
	}

	indices := make(map[int]bool, len(points))
	storedTotal := 0
	for _, p := range points {
		payload := rag.PayloadFromMap(p.Payload)
		indices[payload.ChunkIndex] = true
		if payload.TotalChunks > storedTotal {
			storedTotal = payload.TotalChunks
		}
	}
	return indices, storedTotal, nil
}
