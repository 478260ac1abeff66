package rag

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AffinityRule maps a query keyword to a filename substring. When Filter
// is set and the keyword appears in the query, the vector search is
// constrained to that document; the Boost is applied during re-ranking
// either way, so non-exclusive signals still help the ordering.
type AffinityRule struct {
	Keyword         string  `yaml:"keyword"`
	FilenamePattern string  `yaml:"filename_pattern"`
	Boost           float64 `yaml:"boost"`
	Filter          bool    `yaml:"filter"`
}

// RankingConfig collects every tunable of the retrieval pipeline. The
// defaults were tuned against a narrow corpus; retargeting should keep
// the mechanism and revisit the magnitudes.
type RankingConfig struct {
	// Affinity is the keyword-to-document table used for both the
	// stage-1 pre-filter and the keyword re-ranking boost.
	Affinity []AffinityRule `yaml:"affinity"`

	// Oversample widens the unfiltered candidate pool to leave room
	// for re-ranking: the store is asked for limit*Oversample points.
	Oversample int `yaml:"oversample"`
	// MinScore drops candidates below this adjusted score. When fewer
	// than half the requested results survive, the filter is abandoned
	// for that query.
	MinScore float64 `yaml:"min_score"`

	// SmallDocChunks marks a document as under-represented when its
	// total_chunks falls below this value; such chunks get SmallDocBoost.
	SmallDocChunks int     `yaml:"small_doc_chunks"`
	SmallDocBoost  float64 `yaml:"small_doc_boost"`

	// DefinitionBoost is the largest adjustment in the pipeline:
	// definitional queries need exact-match precedence over similarity.
	DefinitionBoost float64 `yaml:"definition_boost"`
	FormulaBoost    float64 `yaml:"formula_boost"`
	VariableBoost   float64 `yaml:"variable_boost"`

	// DefinitionKeywords flag a query as definitional ("what is X").
	DefinitionKeywords []string `yaml:"definition_keywords"`
	// FormulaKeywords flag a query as calculation-related.
	FormulaKeywords []string `yaml:"formula_keywords"`
	// FormulaVariables maps variable abbreviations that may appear in a
	// query to the lowercase surface forms looked up in chunk text.
	FormulaVariables map[string][]string `yaml:"formula_variables"`

	// FallbackScore is assigned to chunks injected by the full-corpus
	// definitional scan; it must exceed any similarity-based score.
	FallbackScore float64 `yaml:"fallback_score"`

	// NeighborWindow is the number of adjacent chunks pulled in around
	// each candidate during context assembly.
	NeighborWindow int `yaml:"neighbor_window"`
	// NeighborPenalty is subtracted from the document's minimum
	// candidate score when scoring synthesized neighbors, so they never
	// outrank genuine matches.
	NeighborPenalty float64 `yaml:"neighbor_penalty"`

	// PrimaryDocPattern designates the reference document whose chunks
	// lead the assembled context. Empty disables the partition.
	PrimaryDocPattern string `yaml:"primary_doc_pattern"`
}

// DefaultRankingConfig returns the documented defaults.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		Affinity: []AffinityRule{
			{Keyword: "handbook", FilenamePattern: "Handbook", Boost: 0.3, Filter: true},
			{Keyword: "gold standard", FilenamePattern: "Gold Standard", Boost: 0.3, Filter: true},
			{Keyword: "director", FilenamePattern: "Director", Boost: 0.1, Filter: true},
			{Keyword: "gsa", FilenamePattern: "Gold Standard", Boost: 0.2},
			{Keyword: "pir", FilenamePattern: "PIR", Boost: 0.05},
		},
		Oversample:      3,
		MinScore:        0.40,
		SmallDocChunks:  100,
		SmallDocBoost:   0.05,
		DefinitionBoost: 0.5,
		FormulaBoost:    0.25,
		VariableBoost:   0.2,
		DefinitionKeywords: []string{
			"what is", "what's", "definition of", "define ",
		},
		FormulaKeywords: []string{
			"formula", "calculat", "comput", "how to find", "how to count",
			"metric", "coefficient", "rate", "norm",
		},
		FormulaVariables: map[string][]string{
			"gr":       {"gross", "revenue"},
			"ur":       {"utilization", "load"},
			"nh":       {"normhour"},
			"normhour": {"normhour", "nh"},
			"wt":       {"working", "time"},
		},
		FallbackScore:     1.5,
		NeighborWindow:    1,
		NeighborPenalty:   0.1,
		PrimaryDocPattern: "Handbook",
	}
}

// Validate checks the configuration.
func (c *RankingConfig) Validate() error {
	if c.Oversample < 1 {
		return fmt.Errorf("oversample must be at least 1")
	}
	if c.SmallDocChunks < 0 {
		return fmt.Errorf("small_doc_chunks cannot be negative")
	}
	if c.NeighborWindow < 0 {
		return fmt.Errorf("neighbor_window cannot be negative")
	}
	if c.NeighborPenalty < 0 {
		return fmt.Errorf("neighbor_penalty cannot be negative")
	}
	for i, rule := range c.Affinity {
		if rule.Keyword == "" || rule.FilenamePattern == "" {
			return fmt.Errorf("affinity rule %d: keyword and filename_pattern are required", i)
		}
	}
	return nil
}

// LoadRankingConfig reads a YAML file over the defaults, so a partial
// file only overrides the fields it names.
func LoadRankingConfig(path string) (*RankingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking config: %w", err)
	}

	config := DefaultRankingConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse ranking config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking config: %w", err)
	}
	return config, nil
}
