package qdrant

import (
	"fmt"
	"time"
)

// Config holds connection settings for the Qdrant HTTP API.
type Config struct {
	Host     string        `yaml:"host"`
	HTTPPort int           `yaml:"http_port"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`

	// ScrollPageSize is the page size used by ScrollAll.
	ScrollPageSize int `yaml:"scroll_page_size"`
	// MaxScrollPages bounds full-corpus iteration so a pathological
	// store cannot loop ScrollAll forever.
	MaxScrollPages int `yaml:"max_scroll_pages"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		HTTPPort:       6333,
		Timeout:        30 * time.Second,
		ScrollPageSize: 100,
		MaxScrollPages: 10,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ScrollPageSize < 1 {
		return fmt.Errorf("scroll_page_size must be at least 1")
	}
	if c.MaxScrollPages < 1 {
		return fmt.Errorf("max_scroll_pages must be at least 1")
	}
	return nil
}

// GetHTTPURL returns the base URL of the HTTP API.
func (c *Config) GetHTTPURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.HTTPPort)
}

// WithAPIKey sets the API key.
func (c *Config) WithAPIKey(key string) *Config {
	c.APIKey = key
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithScrollLimits sets the scroll page size and page cap.
func (c *Config) WithScrollLimits(pageSize, maxPages int) *Config {
	c.ScrollPageSize = pageSize
	c.MaxScrollPages = maxPages
	return c
}

// Distance is a vector distance metric.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceEuclid Distance = "Euclid"
	DistanceDot    Distance = "Dot"
)

// CollectionConfig describes a vector collection.
type CollectionConfig struct {
	Name       string   `yaml:"name"`
	VectorSize int      `yaml:"vector_size"`
	Distance   Distance `yaml:"distance"`
}

// DefaultCollectionConfig returns a cosine collection config.
func DefaultCollectionConfig(name string, vectorSize int) *CollectionConfig {
	return &CollectionConfig{
		Name:       name,
		VectorSize: vectorSize,
		Distance:   DistanceCosine,
	}
}

// Validate checks the collection configuration.
func (c *CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize < 1 {
		return fmt.Errorf("vector_size must be at least 1")
	}
	switch c.Distance {
	case DistanceCosine, DistanceEuclid, DistanceDot:
	default:
		return fmt.Errorf("invalid distance metric: %s", c.Distance)
	}
	return nil
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	Limit       int
	WithPayload bool
	WithVectors bool
	Filter      Filter
}

// DefaultSearchOptions returns default search options.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:       10,
		WithPayload: true,
	}
}

// WithLimit sets the result limit.
func (o *SearchOptions) WithLimit(limit int) *SearchOptions {
	o.Limit = limit
	return o
}

// WithFilter sets the payload filter.
func (o *SearchOptions) WithFilter(filter Filter) *SearchOptions {
	o.Filter = filter
	return o
}
