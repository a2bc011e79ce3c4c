// Package llm provides thin clients for hosted text-generation models behind
// a single Completer interface. Backends translate provider failures into the
// sentinel errors below so callers can tell retryable failures from fatal ones.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/xao-fun/xao-go/internal/config"
)

var (
	ErrAuth          = errors.New("authentication failed")
	ErrRateLimited   = errors.New("rate limited")
	ErrUpstream      = errors.New("upstream error")
	ErrNetwork       = errors.New("network error")
	ErrEmptyResponse = errors.New("empty response")
)

// maxResponseLen caps how much of a provider response body is read.
const maxResponseLen = 1 << 20

// Completer sends one system+user exchange to a model and returns the raw
// text of its reply. Implementations ask the provider for JSON output.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
	Provider() string
}

// New constructs the backend named by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		c, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderAnthropic, config.ProviderBedrock:
		c, err := NewAnthropicClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// statusError maps a provider HTTP status to a sentinel error.
func statusError(provider string, code int, detail string) error {
	var kind error
	switch {
	case code == 401 || code == 403:
		kind = ErrAuth
	case code == 429:
		kind = ErrRateLimited
	default:
		kind = ErrUpstream
	}
	if detail == "" {
		return fmt.Errorf("%w: %s API returned %d", kind, provider, code)
	}
	return fmt.Errorf("%w: %s API returned %d: %s", kind, provider, code, detail)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
