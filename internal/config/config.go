// Package config loads service and CLI settings from defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// DefaultModels is the model used for each provider when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderBedrock:   "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	ProviderGemini:    "gemini-2.5-flash",
}

// apiKeyEnv maps a provider to the environment variable holding its credential.
// Bedrock authenticates through the AWS credential chain instead.
var apiKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	LLM      LLMConfig      `yaml:"llm"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Verify   VerifyConfig   `yaml:"verify"`
	Assets   AssetsConfig   `yaml:"assets"`
}

// LLMConfig selects and configures the text-generation backend.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Region    string        `yaml:"region"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	APIToken   string `yaml:"api_token"`
	Domain     string `yaml:"domain"`
	ACMEEmail  string `yaml:"acme_email"`
	Production bool   `yaml:"production"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// VerifyConfig tunes the verification pipeline. MaxRetries of zero keeps the
// classifier single-shot.
type VerifyConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	BatchConcurrency int `yaml:"batch_concurrency"`
	MaxBatchSize     int `yaml:"max_batch_size"`
}

type AssetsConfig struct {
	Dir    string `yaml:"dir"`
	QRData string `yaml:"qr_data"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Server: ServerConfig{Port: "8080"},
		Verify: VerifyConfig{
			BatchConcurrency: 4,
			MaxBatchSize:     100,
		},
		Assets: AssetsConfig{
			Dir:    "attached_assets",
			QRData: "https://xao.fun",
		},
	}
}

// Load builds the effective configuration. path names an optional YAML file;
// when empty, XAO_CONFIG is consulted. A .env file in the working directory
// is loaded without overriding variables already set in the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("XAO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LLM.Provider, "XAO_LLM_PROVIDER")
	setString(&c.LLM.Model, "XAO_LLM_MODEL")
	setString(&c.LLM.BaseURL, "XAO_LLM_BASE_URL")
	setString(&c.LLM.Region, "AWS_REGION")
	if env, ok := apiKeyEnv[c.LLM.Provider]; ok {
		setString(&c.LLM.APIKey, env)
	}
	if c.LLM.Provider == ProviderGemini && c.LLM.APIKey == "" {
		setString(&c.LLM.APIKey, "GOOGLE_API_KEY")
	}

	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.APIToken, "XAO_API_TOKEN")
	setString(&c.Server.Domain, "XAO_DOMAIN")
	setString(&c.Server.ACMEEmail, "ACME_EMAIL")
	if v := os.Getenv("XAO_ENV"); v != "" {
		c.Server.Production = v == "production"
	}

	if err := setInt(&c.Verify.MaxRetries, "XAO_VERIFY_MAX_RETRIES"); err != nil {
		return err
	}
	return setInt(&c.Verify.BatchConcurrency, "XAO_BATCH_CONCURRENCY")
}

func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModels[c.LLM.Provider]
	}
	if c.LLM.Provider == ProviderBedrock && c.LLM.Region == "" {
		c.LLM.Region = "eu-west-1"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := DefaultModels[c.LLM.Provider]; !ok {
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative")
	}
	if c.Verify.MaxRetries < 0 || c.Verify.MaxRetries > 10 {
		return fmt.Errorf("verify.max_retries must be within [0,10], got %d", c.Verify.MaxRetries)
	}
	if c.Verify.BatchConcurrency < 1 {
		return fmt.Errorf("verify.batch_concurrency must be at least 1, got %d", c.Verify.BatchConcurrency)
	}
	if c.Verify.MaxBatchSize < 1 {
		return fmt.Errorf("verify.max_batch_size must be at least 1, got %d", c.Verify.MaxBatchSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}
