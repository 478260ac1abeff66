package rag

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.clinix.kb/internal/vectordb/qdrant"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeStore struct {
	searchResults []qdrant.ScoredPoint
	scrollPoints  []qdrant.Point
	scrollErr     error

	lastOpts    *qdrant.SearchOptions
	scrollCalls int
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, opts *qdrant.SearchOptions) ([]qdrant.ScoredPoint, error) {
	f.lastOpts = opts
	return f.searchResults, nil
}

func (f *fakeStore) ScrollAll(ctx context.Context, collection string, filter qdrant.Filter) ([]qdrant.Point, error) {
	f.scrollCalls++
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	return f.scrollPoints, nil
}

func chunkPoint(id, filename string, index, total int, score float64, text string) qdrant.ScoredPoint {
	return qdrant.ScoredPoint{
		ID:    id,
		Score: score,
		Payload: ChunkPayload{
			Filename:    filename,
			ChunkIndex:  index,
			TotalChunks: total,
			Text:        text,
		}.ToMap(),
	}
}

func newTestRetriever(t *testing.T, store *fakeStore) *Retriever {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	retriever, err := NewRetriever(store, &fakeEmbedder{vector: []float32{0.1, 0.2}}, "documents", nil, logger)
	require.NoError(t, err)
	return retriever
}

func TestSearchRejectsNonPositiveLimit(t *testing.T) {
	retriever := newTestRetriever(t, &fakeStore{})

	_, err := retriever.Search(context.Background(), "anything", 0)
	require.Error(t, err)
}

func TestSearchOversamplesWithoutFilter(t *testing.T) {
	store := &fakeStore{}
	retriever := newTestRetriever(t, store)

	_, err := retriever.Search(context.Background(), "patient flow", 5)
	require.NoError(t, err)

	require.NotNil(t, store.lastOpts)
	assert.Equal(t, 15, store.lastOpts.Limit)
	assert.Nil(t, store.lastOpts.Filter)
}

func TestSearchAppliesDocumentFilter(t *testing.T) {
	store := &fakeStore{}
	retriever := newTestRetriever(t, store)

	_, err := retriever.Search(context.Background(), "what does the handbook say about shifts", 5)
	require.NoError(t, err)

	require.NotNil(t, store.lastOpts)
	assert.Equal(t, 5, store.lastOpts.Limit)
	require.NotNil(t, store.lastOpts.Filter)
}

func TestSearchKeywordBoostReordersResults(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Notes.md", 0, 200, 0.60, "general notes"),
			chunkPoint("b", "PIR Review.md", 0, 200, 0.58, "review items"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "pir review items", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The pir keyword boost (0.05) lifts the PIR document past the
	// slightly better raw match.
	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 0.63, results[0].Score, 1e-9)
	assert.InDelta(t, 0.58, results[0].BaseScore, 1e-9)
}

func TestSearchSmallDocBoost(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Big.md", 0, 500, 0.60, "text"),
			chunkPoint("b", "Small.md", 0, 12, 0.58, "text"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "shift policy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 0.63, results[0].Score, 1e-9)
}

func TestSearchDefinitionBoost(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 4, 200, 0.70, "gross revenue is discussed in the finance chapter"),
			chunkPoint("b", "Handbook.md", 9, 200, 0.55, "**Gross Revenue (GR)** = total billed amount for the period"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "What is gross revenue?", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 1.05, results[0].Score, 1e-9)
	// The exact definition is already among the candidates, so the
	// full-corpus scan never runs.
	assert.Equal(t, 0, store.scrollCalls)
}

func TestSearchFormulaBoosts(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 0, 200, 0.60, "revenue is reported monthly"),
			chunkPoint("b", "Handbook.md", 1, 200, 0.50, "GR = visits * average check, where gross revenue covers all services"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "formula for gr", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Formula boost 0.25 plus variable mention 0.2.
	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 0.95, results[0].Score, 1e-9)
}

func TestSearchThresholdDropsWeakResults(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 0, 200, 0.80, "strong match"),
			chunkPoint("b", "Handbook.md", 1, 200, 0.75, "strong match"),
			chunkPoint("c", "Handbook.md", 2, 200, 0.10, "weak match"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "shift policy", 4)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestSearchThresholdFallbackKeepsTop(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 0, 200, 0.30, "weak"),
			chunkPoint("b", "Handbook.md", 1, 200, 0.25, "weaker"),
			chunkPoint("c", "Handbook.md", 2, 200, 0.20, "weakest"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "obscure topic", 4)
	require.NoError(t, err)

	// Nothing clears the threshold, so the raw top results come back
	// rather than an empty answer.
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchDefinitionFallbackInjectsScan(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 0, 200, 0.65, "the gold standard is covered in onboarding"),
		},
		scrollPoints: []qdrant.Point{
			{
				ID: "deep",
				Payload: ChunkPayload{
					Filename:    "Gold Standard.md",
					ChunkIndex:  7,
					TotalChunks: 40,
					Text:        "**Gold Standard of Admission (GSA)** = the reference service protocol",
				}.ToMap(),
			},
			{
				ID: "other",
				Payload: ChunkPayload{
					Filename:    "Notes.md",
					ChunkIndex:  1,
					TotalChunks: 40,
					Text:        "unrelated text",
				}.ToMap(),
			},
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "What is gold standard?", 5)
	require.NoError(t, err)

	assert.Equal(t, 1, store.scrollCalls)
	require.NotEmpty(t, results)
	assert.Equal(t, "deep", results[0].ID)
	assert.InDelta(t, 1.5, results[0].Score, 1e-9)
}

func TestSearchDefinitionFallbackDeduplicates(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			{ID: "dup", Score: 0.65, Payload: ChunkPayload{
				Filename:    "Gold Standard.md",
				ChunkIndex:  7,
				TotalChunks: 40,
				Text:        "gold standard context without a definition line",
			}.ToMap()},
		},
		scrollPoints: []qdrant.Point{
			{ID: "dup", Payload: ChunkPayload{
				Filename:    "Gold Standard.md",
				ChunkIndex:  7,
				TotalChunks: 40,
				Text:        "**Gold Standard (GS)** = the reference protocol",
			}.ToMap()},
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "What is gold standard?", 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "dup", results[0].ID)
}

func TestSearchDefinitionFallbackSurvivesScrollError(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("a", "Handbook.md", 0, 200, 0.65, "gold standard mentioned in passing"),
		},
		scrollErr: assert.AnError,
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "What is gold standard?", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	store := &fakeStore{
		searchResults: []qdrant.ScoredPoint{
			chunkPoint("b2", "Beta.md", 2, 200, 0.70, "text"),
			chunkPoint("a1", "Alpha.md", 1, 200, 0.70, "text"),
			chunkPoint("a0", "Alpha.md", 0, 200, 0.70, "text"),
		},
	}
	retriever := newTestRetriever(t, store)

	results, err := retriever.Search(context.Background(), "shift policy", 5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a0", results[0].ID)
	assert.Equal(t, "a1", results[1].ID)
	assert.Equal(t, "b2", results[2].ID)
}
