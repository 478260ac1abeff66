package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{name: "valid default", cfg: DefaultConfig()},
		{name: "valid wide window", cfg: Config{Size: 500, Overlap: 50}},
		{name: "zero size", cfg: Config{Size: 0, Overlap: 0}, expectError: true},
		{name: "negative overlap", cfg: Config{Size: 100, Overlap: -1}, expectError: true},
		{name: "overlap equals size", cfg: Config{Size: 100, Overlap: 100}, expectError: true},
		{name: "overlap exceeds size", cfg: Config{Size: 100, Overlap: 150}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitInvalidConfigFailsFast(t *testing.T) {
	_, err := Split(words(10), Config{Size: 50, Overlap: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("   \n\t  ", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitSingleWindow(t *testing.T) {
	cfg := Config{Size: 300, Overlap: 60}
	chunks, err := Split(words(120), cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, words(120), chunks[0])
}

func TestSplitNineHundredWords(t *testing.T) {
	cfg := Config{Size: 300, Overlap: 60}
	chunks, err := Split(words(900), cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	// Windows advance by 240, so consecutive chunks share the boundary
	// regions [240,300), [480,540) and [720,780).
	for i, start := range []int{240, 480, 720} {
		head := strings.Fields(chunks[i+1])
		tail := strings.Fields(chunks[i])
		assert.Equal(t, fmt.Sprintf("w%d", start), head[0])
		assert.Equal(t, head[:60], tail[len(tail)-60:])
	}

	last := strings.Fields(chunks[3])
	assert.Equal(t, "w899", last[len(last)-1])
}

func TestSplitCoverageAndCount(t *testing.T) {
	tests := []struct {
		n      int
		cfg    Config
		chunks int
	}{
		{n: 1, cfg: Config{Size: 300, Overlap: 60}, chunks: 1},
		{n: 300, cfg: Config{Size: 300, Overlap: 60}, chunks: 1},
		{n: 301, cfg: Config{Size: 300, Overlap: 60}, chunks: 2},
		{n: 900, cfg: Config{Size: 300, Overlap: 60}, chunks: 4},
		{n: 1000, cfg: Config{Size: 300, Overlap: 60}, chunks: 4},
		{n: 1000, cfg: Config{Size: 500, Overlap: 50}, chunks: 3},
		{n: 700, cfg: Config{Size: 350, Overlap: 70}, chunks: 3},
		{n: 450, cfg: Config{Size: 200, Overlap: 30}, chunks: 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dw_%d_%d", tt.n, tt.cfg.Size, tt.cfg.Overlap), func(t *testing.T) {
			chunks, err := Split(words(tt.n), tt.cfg)
			require.NoError(t, err)
			assert.Len(t, chunks, tt.chunks)
			assert.Equal(t, tt.chunks, Count(tt.n, tt.cfg))

			// Every word index must be covered at least once.
			covered := make(map[string]bool, tt.n)
			for _, c := range chunks {
				for _, w := range strings.Fields(c) {
					covered[w] = true
				}
			}
			assert.Len(t, covered, tt.n)
		})
	}
}

func TestCountZeroWords(t *testing.T) {
	assert.Equal(t, 0, Count(0, DefaultConfig()))
}
