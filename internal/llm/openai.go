package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xao-fun/xao-go/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls the OpenAI chat completions API (or any compatible
// endpoint) with the JSON-object response format.
type OpenAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient builds a client from cfg. The API key is required.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required (set OPENAI_API_KEY)")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModels[config.ProviderOpenAI]
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(base, "/"),
		model:     model,
		maxTokens: cfg.MaxTokens,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) Model() string    { return c.model }
func (c *OpenAIClient) Provider() string { return config.ProviderOpenAI }

// Complete sends a single chat completion request and returns the content of
// the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai request: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return "", fmt.Errorf("%w: read openai response: %w", ErrNetwork, err)
	}

	var chatResp chatResponse
	decodeErr := json.Unmarshal(data, &chatResp)

	if resp.StatusCode != http.StatusOK {
		detail := truncate(strings.TrimSpace(string(data)), 200)
		if decodeErr == nil && chatResp.Error != nil {
			detail = chatResp.Error.Message
		}
		return "", statusError(config.ProviderOpenAI, resp.StatusCode, detail)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode openai response: %w", ErrUpstream, decodeErr)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrEmptyResponse)
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
