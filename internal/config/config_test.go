package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XAO_CONFIG", "LOG_LEVEL", "XAO_LLM_PROVIDER", "XAO_LLM_MODEL", "XAO_LLM_BASE_URL",
		"AWS_REGION", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"DATABASE_URL", "PORT", "XAO_API_TOKEN", "XAO_DOMAIN", "ACME_EMAIL", "XAO_ENV",
		"XAO_VERIFY_MAX_RETRIES", "XAO_BATCH_CONCURRENCY",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0, cfg.Verify.MaxRetries)
	assert.Equal(t, 4, cfg.Verify.BatchConcurrency)
	assert.Equal(t, "attached_assets", cfg.Assets.Dir)
	assert.Equal(t, "https://xao.fun", cfg.Assets.QRData)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "xao.yaml", `
log_level: debug
llm:
  provider: anthropic
  timeout: 15s
  max_tokens: 512
verify:
  max_retries: 2
assets:
  dir: out
`)

	t.Run("yaml values apply", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
		assert.Equal(t, DefaultModels[ProviderAnthropic], cfg.LLM.Model)
		assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, 512, cfg.LLM.MaxTokens)
		assert.Equal(t, 2, cfg.Verify.MaxRetries)
		assert.Equal(t, "out", cfg.Assets.Dir)
		// untouched keys keep their defaults
		assert.Equal(t, 4, cfg.Verify.BatchConcurrency)
	})

	t.Run("env overrides yaml", func(t *testing.T) {
		t.Setenv("XAO_LLM_PROVIDER", "gemini")
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("XAO_VERIFY_MAX_RETRIES", "3")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, DefaultModels[ProviderGemini], cfg.LLM.Model)
		assert.Equal(t, 3, cfg.Verify.MaxRetries)
	})

	t.Run("XAO_CONFIG is used when no path is given", func(t *testing.T) {
		t.Setenv("XAO_CONFIG", path)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	})
}

func TestLoad_APIKeyFollowsProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "oa-key", cfg.LLM.APIKey)

	t.Setenv("XAO_LLM_PROVIDER", "anthropic")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "ant-key", cfg.LLM.APIKey)
}

func TestLoad_Bedrock(t *testing.T) {
	clearEnv(t)
	t.Setenv("XAO_LLM_PROVIDER", "bedrock")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.LLM.Region)
	assert.Equal(t, DefaultModels[ProviderBedrock], cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "unknown provider", env: map[string]string{"XAO_LLM_PROVIDER": "cohere"}},
		{name: "bad retry count", env: map[string]string{"XAO_VERIFY_MAX_RETRIES": "many"}},
		{name: "retry count out of range", env: map[string]string{"XAO_VERIFY_MAX_RETRIES": "50"}},
		{name: "zero concurrency", env: map[string]string{"XAO_BATCH_CONCURRENCY": "0"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "malformed yaml", yaml: "llm: [unclosed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.yaml != "" {
				path = writeFile(t, "bad.yaml", tc.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Production(t *testing.T) {
	clearEnv(t)
	t.Setenv("XAO_ENV", "production")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Server.Production)
}
