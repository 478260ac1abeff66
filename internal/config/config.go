// Package config assembles the engine configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"dev.clinix.kb/internal/chunker"
	"dev.clinix.kb/internal/embedding"
	"dev.clinix.kb/internal/indexer"
	"dev.clinix.kb/internal/llm"
	"dev.clinix.kb/internal/rag"
	"dev.clinix.kb/internal/vectordb/qdrant"
)

// Config is the root configuration for the knowledge base engine.
type Config struct {
	// Collection is the vector store collection holding document chunks.
	Collection string
	// SystemPrompt is prepended to every generation request.
	SystemPrompt string
	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string
	// MetricsAddr is the listen address for the Prometheus endpoint;
	// empty disables it.
	MetricsAddr string
	// RankingPath optionally points at a YAML file overriding the
	// ranking defaults.
	RankingPath string

	Embedding *embedding.Config
	Qdrant    *qdrant.Config
	LLM       *llm.Config
	Indexer   *indexer.Config
	Ranking   *rag.RankingConfig
}

// DefaultSystemPrompt instructs the model to answer strictly from the
// provided context.
const DefaultSystemPrompt = "You are an assistant for the clinic knowledge base. " +
	"Answer using only the provided context. When the context does not " +
	"contain the answer, say so instead of guessing. Quote definitions " +
	"and formulas exactly as they appear in the source."

// LoadEnvFile loads variables from a .env file if one exists. Missing
// files are not an error; real environment variables take precedence.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Collection:   getEnv("KB_COLLECTION", "documents"),
		SystemPrompt: getEnv("KB_SYSTEM_PROMPT", DefaultSystemPrompt),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		RankingPath:  getEnv("RANKING_CONFIG", ""),
	}

	embeddingCfg := embedding.DefaultConfig()
	embeddingCfg.BaseURL = getEnv("EMBEDDING_URL", embeddingCfg.BaseURL)
	embeddingCfg.Model = getEnv("EMBEDDING_MODEL", embeddingCfg.Model)
	embeddingCfg.Dimension = getIntEnv("EMBEDDING_DIMENSION", embeddingCfg.Dimension)
	embeddingCfg.Timeout = getDurationEnv("EMBEDDING_TIMEOUT", embeddingCfg.Timeout)
	embeddingCfg.MaxRetries = getIntEnv("EMBEDDING_MAX_RETRIES", embeddingCfg.MaxRetries)
	embeddingCfg.RetryBaseDelay = getDurationEnv("EMBEDDING_RETRY_DELAY", embeddingCfg.RetryBaseDelay)
	cfg.Embedding = embeddingCfg

	qdrantCfg := qdrant.DefaultConfig()
	qdrantCfg.Host = getEnv("QDRANT_HOST", qdrantCfg.Host)
	qdrantCfg.HTTPPort = getIntEnv("QDRANT_PORT", qdrantCfg.HTTPPort)
	qdrantCfg.APIKey = getEnv("QDRANT_API_KEY", "")
	qdrantCfg.Timeout = getDurationEnv("QDRANT_TIMEOUT", qdrantCfg.Timeout)
	qdrantCfg.ScrollPageSize = getIntEnv("QDRANT_SCROLL_PAGE_SIZE", qdrantCfg.ScrollPageSize)
	qdrantCfg.MaxScrollPages = getIntEnv("QDRANT_MAX_SCROLL_PAGES", qdrantCfg.MaxScrollPages)
	cfg.Qdrant = qdrantCfg

	llmCfg := llm.DefaultConfig()
	llmCfg.BaseURL = getEnv("LLM_BASE_URL", llmCfg.BaseURL)
	llmCfg.APIKey = getEnv("LLM_API_KEY", "")
	llmCfg.Model = getEnv("LLM_MODEL", llmCfg.Model)
	llmCfg.Temperature = getFloatEnv("LLM_TEMPERATURE", llmCfg.Temperature)
	llmCfg.TopP = getFloatEnv("LLM_TOP_P", llmCfg.TopP)
	llmCfg.MaxTokens = getIntEnv("LLM_MAX_TOKENS", llmCfg.MaxTokens)
	llmCfg.Timeout = getDurationEnv("LLM_TIMEOUT", llmCfg.Timeout)
	cfg.LLM = llmCfg

	indexerCfg := indexer.DefaultConfig()
	indexerCfg.Collection = cfg.Collection
	indexerCfg.Chunk = chunker.Config{
		Size:    getIntEnv("CHUNK_SIZE", indexerCfg.Chunk.Size),
		Overlap: getIntEnv("CHUNK_OVERLAP", indexerCfg.Chunk.Overlap),
	}
	indexerCfg.EmbedRate = getFloatEnv("EMBED_RATE", 0)
	cfg.Indexer = indexerCfg

	if cfg.RankingPath != "" {
		ranking, err := rag.LoadRankingConfig(cfg.RankingPath)
		if err != nil {
			return nil, err
		}
		cfg.Ranking = ranking
	} else {
		cfg.Ranking = rag.DefaultRankingConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every component configuration.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Qdrant.Validate(); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Indexer.Validate(); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
