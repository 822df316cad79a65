package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/54b3r/finrag-go/internal/version"
)

// DefaultCompletionURL is the chat-completions endpoint used when none is set.
const DefaultCompletionURL = "http://localhost:8000/v1/chat/completions"

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// CompletionGenerator posts prompts to an OpenAI-compatible
// chat-completions endpoint and strictly validates the response shape
// {"choices":[{"message":{"content":"..."}}]}.
type CompletionGenerator struct {
	// url is the full chat-completions endpoint.
	url string
	// model is sent as the "model" field when non-empty.
	model string
	// apiKey is sent as a Bearer token when non-empty.
	apiKey string
	// client is the shared HTTP client.
	client *http.Client
}

// NewCompletionGenerator constructs a CompletionGenerator from cfg.
func NewCompletionGenerator(cfg ProviderCompletion) *CompletionGenerator {
	url := cfg.URL
	if url == "" {
		url = DefaultCompletionURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &CompletionGenerator{url: url, model: cfg.Model, apiKey: cfg.APIKey, client: client}
}

// completionRequest is the JSON body sent to the endpoint.
type completionRequest struct {
	Model     string    `json:"model,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// completionResponse is the subset of the response that is read. Content is
// a pointer so that an explicit JSON null is distinguishable from "".
type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends msgs and returns the first choice's content.
func (g *CompletionGenerator) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	payload, err := json.Marshal(completionRequest{Model: g.model, Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("provider: marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("provider: %w: create request: %w", ErrGenerationTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: %w: %w", ErrGenerationTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("provider: %w: HTTP %d: %s", ErrGenerationTransport, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("provider: %w: decode response: %w", ErrGenerationFormat, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("provider: %w: response has no choices", ErrGenerationFormat)
	}
	first := out.Choices[0]
	if first.Message == nil {
		return "", fmt.Errorf("provider: %w: first choice has no message", ErrGenerationFormat)
	}
	if first.Message.Content == nil {
		return "", fmt.Errorf("provider: %w: first choice has no content", ErrGenerationFormat)
	}
	return *first.Message.Content, nil
}
