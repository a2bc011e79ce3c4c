package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/xao-fun/xao-go/internal/config"
)

// GeminiClient calls Google's Gemini API with a JSON response MIME type.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiClient builds a Gemini client. The API key is required.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required (set GEMINI_API_KEY)")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModels[config.ProviderGemini]
	}
	return &GeminiClient{
		client:    client,
		model:     model,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

func (c *GeminiClient) Model() string    { return c.model }
func (c *GeminiClient) Provider() string { return config.ProviderGemini }

func (c *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   c.maxTokens,
	})
	if err != nil {
		if code, ok := geminiStatus(err); ok {
			return "", statusError(config.ProviderGemini, code, truncate(err.Error(), 200))
		}
		return "", fmt.Errorf("%w: gemini request: %w", ErrNetwork, err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", fmt.Errorf("%w: gemini returned no text", ErrEmptyResponse)
	}
	return content, nil
}

// geminiStatus extracts the HTTP status from a genai API error, which the SDK
// may return by value or by pointer.
func geminiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
