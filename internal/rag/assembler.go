package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"dev.clinix.kb/internal/vectordb/qdrant"
)

// Assembler turns ranked candidates into the context block handed to
// the generator. Matched chunks are padded with their stored neighbors
// so definitions and formulas cut at a chunk boundary arrive whole.
type Assembler struct {
	store      VectorStore
	collection string
	config     *RankingConfig
	logger     *logrus.Logger
}

// NewAssembler creates an assembler over the given store.
func NewAssembler(store VectorStore, collection string, config *RankingConfig, logger *logrus.Logger) *Assembler {
	if config == nil {
		config = DefaultRankingConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Assembler{
		store:      store,
		collection: collection,
		config:     config,
		logger:     logger,
	}
}

type contextEntry struct {
	payload ChunkPayload
	score   float64
}

type documentGroup struct {
	filename string
	total    int
	minScore float64
	entries  map[int]contextEntry
}

// Assemble expands each candidate with its neighboring chunks and
// renders the context block. Entries matching the primary pattern come
// first; within each partition, entries appear in score order, so
// penalty-scored neighbors always trail the matches they pad.
func (a *Assembler) Assemble(ctx context.Context, candidates []Candidate) string {
	if len(candidates) == 0 {
		return ""
	}

	var order []string
	groups := make(map[string]*documentGroup)
	for _, c := range candidates {
		group, ok := groups[c.Payload.Filename]
		if !ok {
			group = &documentGroup{
				filename: c.Payload.Filename,
				total:    c.Payload.TotalChunks,
				minScore: c.Score,
				entries:  make(map[int]contextEntry),
			}
			groups[c.Payload.Filename] = group
			order = append(order, c.Payload.Filename)
		}
		if c.Score < group.minScore {
			group.minScore = c.Score
		}
		if c.Payload.TotalChunks > group.total {
			group.total = c.Payload.TotalChunks
		}
		// Keep the better-scored duplicate when the same chunk was
		// matched twice.
		if existing, dup := group.entries[c.Payload.ChunkIndex]; !dup || c.Score > existing.score {
			group.entries[c.Payload.ChunkIndex] = contextEntry{payload: c.Payload, score: c.Score}
		}
	}

	for _, filename := range order {
		a.expandGroup(ctx, groups[filename])
	}

	var entries []contextEntry
	for _, group := range groups {
		for _, entry := range group.entries {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		x, y := entries[i], entries[j]
		if x.score != y.score {
			return x.score > y.score
		}
		if x.payload.Filename != y.payload.Filename {
			return x.payload.Filename < y.payload.Filename
		}
		return x.payload.ChunkIndex < y.payload.ChunkIndex
	})

	var primary, secondary []contextEntry
	for _, entry := range entries {
		if a.config.PrimaryDocPattern != "" && strings.Contains(entry.payload.Filename, a.config.PrimaryDocPattern) {
			primary = append(primary, entry)
		} else {
			secondary = append(secondary, entry)
		}
	}

	var blocks []string
	for _, entry := range append(primary, secondary...) {
		blocks = append(blocks, fmt.Sprintf("[Source: %s, chunk %d]\n%s",
			entry.payload.Filename, entry.payload.ChunkIndex+1, entry.payload.Text))
	}

	return strings.Join(blocks, "\n\n")
}

// expandGroup fetches the missing neighbor chunks for one document.
// Neighbors score below every genuine match in the document, so they
// never displace matched chunks downstream. A store failure leaves the
// group as matched-only rather than failing the whole assembly.
func (a *Assembler) expandGroup(ctx context.Context, group *documentGroup) {
	if a.config.NeighborWindow <= 0 {
		return
	}

	wanted := make(map[int]bool)
	for idx := range group.entries {
		for offset := -a.config.NeighborWindow; offset <= a.config.NeighborWindow; offset++ {
			neighbor := idx + offset
			if neighbor < 0 {
				continue
			}
			if group.total > 0 && neighbor >= group.total {
				continue
			}
			wanted[neighbor] = true
		}
	}

	var missing []int
	for idx := range wanted {
		if _, ok := group.entries[idx]; !ok {
			missing = append(missing, idx)
		}
	}
	if len(missing) == 0 {
		return
	}
	sort.Ints(missing)

	filter := qdrant.Must(
		qdrant.MatchValue(PayloadFilename, group.filename),
		qdrant.MatchAnyInt(PayloadChunkIndex, missing),
	)
	points, err := a.store.ScrollAll(ctx, a.collection, filter)
	if err != nil {
		a.logger.WithError(err).WithField("filename", group.filename).Warn("Neighbor expansion failed, using matched chunks only")
		return
	}

	neighborScore := group.minScore - a.config.NeighborPenalty
	for _, p := range points {
		payload := PayloadFromMap(p.Payload)
		if _, ok := group.entries[payload.ChunkIndex]; ok {
			continue
		}
		group.entries[payload.ChunkIndex] = contextEntry{payload: payload, score: neighborScore}
	}
}
