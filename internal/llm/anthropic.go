package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/xao-fun/xao-go/internal/config"
)

// AnthropicClient calls Claude through the Messages API, either directly or
// via AWS Bedrock. SDK-level retries are disabled; retry policy belongs to
// the caller.
type AnthropicClient struct {
	client    anthropic.Client
	provider  string
	model     string
	maxTokens int64
}

// NewAnthropicClient builds a client for the anthropic or bedrock provider.
func NewAnthropicClient(ctx context.Context, cfg config.LLMConfig) (*AnthropicClient, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	provider := cfg.Provider
	switch provider {
	case config.ProviderBedrock:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	default:
		provider = config.ProviderAnthropic
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is required (set ANTHROPIC_API_KEY)")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModels[provider]
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *AnthropicClient) Model() string    { return c.model }
func (c *AnthropicClient) Provider() string { return c.provider }

// jsonPrefill opens the assistant turn so the model continues a JSON object
// instead of writing prose or a fenced block.
const jsonPrefill = "{"

// Complete sends one user turn with the given system prompt and returns the
// reply as a JSON object: the prefilled brace plus the concatenated text
// blocks.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(jsonPrefill)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError(c.provider, apiErr.StatusCode, truncate(apiErr.Error(), 200))
		}
		return "", fmt.Errorf("%w: %s request: %w", ErrNetwork, c.provider, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("%w: %s returned no text", ErrEmptyResponse, c.provider)
	}
	// A continuation starts with a key or "}"; a leading brace means the
	// model restarted the object.
	if strings.HasPrefix(content, jsonPrefill) {
		return content, nil
	}
	return jsonPrefill + content, nil
}
