// Package embedding wraps the external embedding service with bounded
// retry. A chunk whose embedding ultimately fails is treated by callers
// as not indexed, never substituted with a zero vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable marks a transient failure that exhausted all retries.
var ErrUnavailable = errors.New("embedding service unavailable")

// Config configures the embedding client.
type Config struct {
	// BaseURL of the Ollama-compatible embedding endpoint.
	BaseURL string `yaml:"base_url"`
	// Model name sent with every request.
	Model string `yaml:"model"`
	// Dimension of the vectors the model produces.
	Dimension int `yaml:"dimension"`
	// Timeout per HTTP call.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries is the total number of attempts per Embed call.
	MaxRetries int `yaml:"max_retries"`
	// RetryBaseDelay scales the linear backoff: attempt n (0-based)
	// waits (n+1) * RetryBaseDelay before the next try.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:11434",
		Model:          "nomic-embed-text",
		Dimension:      768,
		Timeout:        90 * time.Second,
		MaxRetries:     5,
		RetryBaseDelay: 3 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Dimension < 1 {
		return fmt.Errorf("dimension must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("retry_base_delay cannot be negative")
	}
	return nil
}

// Client calls the embedding service.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
	// newTimer returns a backoff timer channel and its stop function.
	// Tests swap it out to observe delays without sleeping.
	newTimer func(time.Duration) (<-chan time.Time, func() bool)
}

// NewClient creates a new embedding client.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
		newTimer: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}, nil
}

// Dimension returns the vector dimension of the configured model.
func (c *Client) Dimension() int {
	return c.config.Dimension
}

// Embed returns the embedding vector for text, retrying transient
// failures with linearly increasing backoff. After exhausting retries
// the last error is propagated wrapped in ErrUnavailable.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		vector, err := c.embedOnce(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if attempt < c.config.MaxRetries-1 {
			delay := time.Duration(attempt+1) * c.config.RetryBaseDelay
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"delay":   delay,
			}).WithError(err).Warn("Embedding attempt failed, retrying")

			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.config.MaxRetries, lastErr)
}

func (c *Client) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	fire, stop := c.newTimer(delay)
	defer stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fire:
		return nil
	}
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model":  c.config.Model,
		"prompt": text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", c.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}

	return response.Embedding, nil
}
