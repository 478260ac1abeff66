package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"dev.clinix.kb/internal/vectordb/qdrant"
)

// Retriever runs the hybrid search pipeline: vector similarity search,
// keyword-driven document filters, heuristic re-ranking and a
// full-corpus fallback for definitional queries.
type Retriever struct {
	store      VectorStore
	embedder   Embedder
	collection string
	config     *RankingConfig
	logger     *logrus.Logger
}

// NewRetriever creates a retriever over the given store and embedder.
func NewRetriever(store VectorStore, embedder Embedder, collection string, config *RankingConfig, logger *logrus.Logger) (*Retriever, error) {
	if config == nil {
		config = DefaultRankingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Retriever{
		store:      store,
		embedder:   embedder,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

// Search retrieves the most relevant chunks for the query. Results are
// ordered by adjusted score; ties break on filename, then chunk index,
// so repeated queries return identical orderings.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	lower := strings.ToLower(query)
	filter, filterRule := r.documentFilter(lower)

	opts := qdrant.DefaultSearchOptions()
	if filter != nil {
		opts = opts.WithLimit(limit).WithFilter(filter)
	} else {
		opts = opts.WithLimit(limit * r.config.Oversample)
	}

	points, err := r.store.Search(ctx, r.collection, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	candidates := make([]Candidate, 0, len(points))
	for _, p := range points {
		candidates = append(candidates, Candidate{
			ID:        p.ID,
			BaseScore: p.Score,
			Score:     p.Score,
			Payload:   PayloadFromMap(p.Payload),
		})
	}

	r.applyBoosts(candidates, lower)

	if isDefinitionQuery(query, r.config) {
		candidates = r.injectDefinitionMatches(ctx, query, candidates)
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= r.config.MinScore {
			kept = append(kept, c)
		}
	}
	// A thin result set usually means the threshold is too strict for
	// this query, not that nothing is relevant. Fall back to the raw
	// top results rather than answering from nothing.
	if len(kept) < limit/2 {
		r.logger.WithFields(logrus.Fields{
			"query":    query,
			"kept":     len(kept),
			"returned": len(candidates),
		}).Debug("Score threshold left too few results, returning unfiltered top")
		kept = candidates
		if len(kept) > limit {
			kept = kept[:limit]
		}
	}

	sortCandidates(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}

	r.logger.WithFields(logrus.Fields{
		"query":    query,
		"results":  len(kept),
		"filtered": filterRule != "",
	}).Info("Search completed")

	return kept, nil
}

// documentFilter returns a store filter when the query names a document
// exclusively, plus the matched keyword for logging.
func (r *Retriever) documentFilter(lowerQuery string) (qdrant.Filter, string) {
	for _, rule := range r.config.Affinity {
		if rule.Filter && strings.Contains(lowerQuery, rule.Keyword) {
			return qdrant.Must(qdrant.MatchText(PayloadFilename, rule.FilenamePattern)), rule.Keyword
		}
	}
	return nil, ""
}

// applyBoosts adjusts candidate scores in place.
func (r *Retriever) applyBoosts(candidates []Candidate, lowerQuery string) {
	definitional := isDefinitionQuery(lowerQuery, r.config)
	formulaic := isFormulaQuery(lowerQuery, r.config)
	variables := queryVariables(lowerQuery, r.config)

	for i := range candidates {
		c := &candidates[i]
		score := c.BaseScore

		for _, rule := range r.config.Affinity {
			if strings.Contains(lowerQuery, rule.Keyword) &&
				strings.Contains(c.Payload.Filename, rule.FilenamePattern) {
				score += rule.Boost
			}
		}

		if c.Payload.TotalChunks > 0 && c.Payload.TotalChunks < r.config.SmallDocChunks {
			score += r.config.SmallDocBoost
		}

		if definitional && hasDefinition(c.Payload.Text) {
			score += r.config.DefinitionBoost
		}
		if formulaic {
			if hasFormula(c.Payload.Text) {
				score += r.config.FormulaBoost
			}
			lowerText := strings.ToLower(c.Payload.Text)
			for _, form := range variables {
				if strings.Contains(lowerText, form) {
					score += r.config.VariableBoost
					break
				}
			}
		}

		c.Score = score
	}
}

// injectDefinitionMatches runs the full-corpus scan for definitional
// queries. Vector similarity routinely misses exact definition lines,
// so when no candidate already defines the term, every stored chunk is
// scanned and matches are prepended with a score above any similarity.
func (r *Retriever) injectDefinitionMatches(ctx context.Context, query string, candidates []Candidate) []Candidate {
	term := definitionTerm(query, r.config)
	if term == "" {
		return candidates
	}

	matcher := termMatcher(term)
	for _, c := range candidates {
		if definesTerm(c.Payload.Text, term, matcher) {
			return candidates
		}
	}

	points, err := r.store.ScrollAll(ctx, r.collection, nil)
	if err != nil {
		r.logger.WithError(err).WithField("term", term).Warn("Definition scan failed, keeping vector results")
		return candidates
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.ID] = true
	}

	var injected []Candidate
	for _, p := range points {
		payload := PayloadFromMap(p.Payload)
		if !definesTerm(payload.Text, term, matcher) {
			continue
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		injected = append(injected, Candidate{
			ID:        p.ID,
			BaseScore: r.config.FallbackScore,
			Score:     r.config.FallbackScore,
			Payload:   payload,
		})
	}

	if len(injected) == 0 {
		return candidates
	}

	r.logger.WithFields(logrus.Fields{
		"term":     term,
		"injected": len(injected),
	}).Info("Definition scan injected exact matches")

	return append(injected, candidates...)
}

// sortCandidates orders by adjusted score descending, with a stable
// filename and chunk index tie-break.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Payload.Filename != b.Payload.Filename {
			return a.Payload.Filename < b.Payload.Filename
		}
		return a.Payload.ChunkIndex < b.Payload.ChunkIndex
	})
}
