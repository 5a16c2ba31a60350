package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.LLMBaseURL)
	assert.Equal(t, "llama3", cfg.LLMModel)
	assert.Equal(t, "./storage", cfg.StoragePath)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.EmbeddingModelName)
	assert.Equal(t, 384, cfg.EmbeddingDim)
	assert.Equal(t, 0.7, cfg.QualityThreshold)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.True(t, cfg.EnableMultiQuery)
	assert.True(t, cfg.EnableEvaluation)
	assert.Equal(t, 60, cfg.LLMTimeoutSeconds)
	assert.Equal(t, 30, cfg.GraphTimeoutSeconds)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LLM_MODEL", "mistral")
	t.Setenv("EMBEDDING_DIM", "768")
	t.Setenv("QUALITY_THRESHOLD", "0.5")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("ENABLE_EVALUATION", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.LLMModel)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, 0.5, cfg.QualityThreshold)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.False(t, cfg.EnableEvaluation)
}

func TestLoadRejectsInvalidEmbeddingDim(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("EMBEDDING_DIM", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangeQualityThreshold(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("QUALITY_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadIgnoresUnparsableOverridesAndFallsBackToDefault(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxRetries)
}

// clearConfigEnv blanks every config-relevant env var for the test's
// duration. envOr/envIntOr/envFloatOr/envBoolOr all treat an empty value the
// same as unset, so t.Setenv(key, "") is enough and keeps this test-safe for
// parallel runs (plain os.Unsetenv is not restored after the test).
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_BASE_URL", "LLM_MODEL", "STORAGE_PATH", "EMBEDDING_MODEL_NAME",
		"EMBEDDING_DIM", "QUALITY_THRESHOLD", "MAX_RETRIES", "ENABLE_MULTI_QUERY",
		"ENABLE_EVALUATION", "LLM_TIMEOUT_SECONDS", "GRAPH_TIMEOUT_SECONDS",
		"GRAPH_HOST", "GRAPH_PORT", "GRAPH_USER", "GRAPH_PASSWORD", "GRAPH_DBNAME",
		"GRAPH_SSLMODE",
	} {
		t.Setenv(key, "")
	}
}
