// Package config loads the service's runtime configuration from environment
// variables (optionally staged into the process environment from a .env
// file via godotenv), defaulting every value to what a local single-node
// deployment needs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ragengine/corpusqa/helper"
)

// Config is every tunable the query engine, ingestion pipeline, and
// database/LLM clients read at startup.
type Config struct {
	Database *helper.DatabaseConfiguration

	LLMBaseURL string
	LLMModel   string

	StoragePath        string
	EmbeddingModelName string
	EmbeddingDim       int

	QualityThreshold float64
	MaxRetries       int

	EnableMultiQuery bool
	EnableEvaluation bool

	LLMTimeoutSeconds   int
	GraphTimeoutSeconds int
}

// Load stages a .env file (if present) into the process environment and
// reads the Config from it. A missing .env file is not an error; every
// field falls back to its documented default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, helper.NewErrorKind("config.Load", helper.KindInput, fmt.Errorf("read .env: %w", err))
	}

	cfg := &Config{
		Database: helper.NewDatabaseConfiguration(),

		LLMBaseURL: envOr("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:   envOr("LLM_MODEL", "llama3"),

		StoragePath:        envOr("STORAGE_PATH", "./storage"),
		EmbeddingModelName: envOr("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		EmbeddingDim:       envIntOr("EMBEDDING_DIM", 384),

		QualityThreshold: envFloatOr("QUALITY_THRESHOLD", 0.7),
		MaxRetries:       envIntOr("MAX_RETRIES", 2),

		EnableMultiQuery: envBoolOr("ENABLE_MULTI_QUERY", true),
		EnableEvaluation: envBoolOr("ENABLE_EVALUATION", true),

		LLMTimeoutSeconds:   envIntOr("LLM_TIMEOUT_SECONDS", 60),
		GraphTimeoutSeconds: envIntOr("GRAPH_TIMEOUT_SECONDS", 30),
	}

	if err := cfg.validate(); err != nil {
		return nil, helper.NewErrorKind("config.Load", helper.KindInput, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be in [0,1], got %f", c.QualityThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage path must not be empty")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
