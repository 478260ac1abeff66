package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRankingConfig(t *testing.T) {
	config := DefaultRankingConfig()

	assert.NoError(t, config.Validate())
	assert.Equal(t, 3, config.Oversample)
	assert.InDelta(t, 0.40, config.MinScore, 1e-9)
	assert.Equal(t, 100, config.SmallDocChunks)
	assert.InDelta(t, 0.5, config.DefinitionBoost, 1e-9)
	assert.InDelta(t, 1.5, config.FallbackScore, 1e-9)
	assert.Equal(t, 1, config.NeighborWindow)
	assert.Equal(t, "Handbook", config.PrimaryDocPattern)
	assert.NotEmpty(t, config.Affinity)
}

func TestRankingConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*RankingConfig)
		errorMsg string
	}{
		{
			name:   "valid default",
			modify: func(c *RankingConfig) {},
		},
		{
			name:     "zero oversample",
			modify:   func(c *RankingConfig) { c.Oversample = 0 },
			errorMsg: "oversample",
		},
		{
			name:     "negative neighbor window",
			modify:   func(c *RankingConfig) { c.NeighborWindow = -1 },
			errorMsg: "neighbor_window",
		},
		{
			name:     "negative neighbor penalty",
			modify:   func(c *RankingConfig) { c.NeighborPenalty = -0.1 },
			errorMsg: "neighbor_penalty",
		},
		{
			name: "affinity rule without pattern",
			modify: func(c *RankingConfig) {
				c.Affinity = append(c.Affinity, AffinityRule{Keyword: "x"})
			},
			errorMsg: "affinity rule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultRankingConfig()
			tt.modify(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestLoadRankingConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.yaml")
	content := `
min_score: 0.55
oversample: 5
affinity:
  - keyword: "pricing"
    filename_pattern: "Price List"
    boost: 0.2
    filter: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadRankingConfig(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.55, config.MinScore, 1e-9)
	assert.Equal(t, 5, config.Oversample)
	require.Len(t, config.Affinity, 1)
	assert.Equal(t, "Price List", config.Affinity[0].FilenamePattern)

	// Fields absent from the file keep their defaults.
	assert.InDelta(t, 0.5, config.DefinitionBoost, 1e-9)
	assert.Equal(t, 1, config.NeighborWindow)
}

func TestLoadRankingConfigMissingFile(t *testing.T) {
	_, err := LoadRankingConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read ranking config")
}

func TestLoadRankingConfigInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oversample: 0\n"), 0o644))

	_, err := LoadRankingConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ranking config")
}
