package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearStoreEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORE_USERNAME", "STORE_PASSWORD", "EMBED_API_KEY",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "LLM_MODEL_CONFIGS", "LLM_DEFAULT_PROFILE",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoad_MissingRequiredFieldsReturnsError(t *testing.T) {
	clearStoreEnv(t)

	_, err := Load()

	require.Error(t, err)
	require.Contains(t, err.Error(), "STORE_USERNAME")
}

func TestLoad_DefaultsAndRequiredFields(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("STORE_USERNAME", "user")
	t.Setenv("STORE_PASSWORD", "pw")
	t.Setenv("EMBED_API_KEY", "embed-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Store.Port)
	require.Equal(t, "articles", cfg.Store.ArticleIndex)
	require.Equal(t, 768, cfg.Embedding.Dimensions)
	require.Contains(t, cfg.LLMProfiles, "anthropic")
}

func TestLoad_ParsesModelConfigBlob(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("STORE_USERNAME", "user")
	t.Setenv("STORE_PASSWORD", "pw")
	t.Setenv("EMBED_API_KEY", "embed-key")
	t.Setenv("LLM_DEFAULT_PROFILE", "house")
	t.Setenv("LLM_MODEL_CONFIGS", `{"house":{"provider":"anthropic","model":"claude-3-7-sonnet-latest","api_key":"k","temperature":0.2,"max_tokens":512}}`)

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "claude-3-7-sonnet-latest", cfg.LLMProfiles["house"].Model)
	require.Equal(t, 512, cfg.LLMProfiles["house"].MaxTokens)
}
