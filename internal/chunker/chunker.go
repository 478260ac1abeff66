// Package chunker splits document text into overlapping word windows,
// the unit of embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a chunking configuration cannot
// produce a terminating split.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config controls chunking behavior. Different document classes use
// different window sizes, so both fields are per-call-site settings.
type Config struct {
	// Size is the window length in whitespace-separated words.
	Size int `yaml:"size"`
	// Overlap is the number of words shared between consecutive windows.
	// Must be strictly smaller than Size.
	Overlap int `yaml:"overlap"`
}

// DefaultConfig returns the window used for formula-heavy reference
// documents. Larger windows (500/50) suit prose-only material.
func DefaultConfig() Config {
	return Config{Size: 300, Overlap: 60}
}

// Validate fails fast before any network I/O is attempted with this config.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, c.Overlap, c.Size)
	}
	return nil
}

// step is the window advance in words.
func (c Config) step() int {
	return c.Size - c.Overlap
}

// Split tokenizes text on whitespace and produces overlapping windows of
// cfg.Size words advancing by cfg.Size-cfg.Overlap. The final partial
// window is kept when non-empty, and splitting stops once a window
// reaches the end of the text, so every word is covered exactly by
// Count(len(words)) windows.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, Count(len(words), cfg))
	for start := 0; ; start += cfg.step() {
		end := start + cfg.Size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// Count returns the number of windows Split produces for n words:
// ceil((n - overlap) / (size - overlap)), with a single window for any
// text that fits in one.
func Count(n int, cfg Config) int {
	if n <= 0 {
		return 0
	}
	if n <= cfg.Size {
		return 1
	}
	step := cfg.step()
	return (n - cfg.Overlap + step - 1) / step
}
