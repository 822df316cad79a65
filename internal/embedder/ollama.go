package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder calls Ollama's /api/embed. It needs no credentials and is
// safe for concurrent use.
type OllamaEmbedder struct {
	url  string
	body ollamaEmbedRequest
	dim  int
	call *jsonCall
}

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. http://localhost:11434.
	Host string
	// Model is the embedding model, e.g. nomic-embed-text.
	Model string
	// Dimensions is the model's output length. Zero selects 768.
	Dimensions int
	// Timeout bounds each call. Zero selects 60s.
	Timeout time.Duration
}

// NewOllamaEmbedder returns an OllamaEmbedder for cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:  strings.TrimRight(cfg.Host, "/") + "/api/embed",
		body: ollamaEmbedRequest{Model: cfg.Model},
		dim:  positiveOr(cfg.Dimensions, defaultOllamaDimensions),
		call: &jsonCall{
			client:  &http.Client{Timeout: durationOr(cfg.Timeout, 60*time.Second)},
			backend: "ollama embedder",
			errMessage: func(body []byte) string {
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(body, &e)
				return e.Error
			},
		},
	}
}

// Dimension returns the configured output length.
func (e *OllamaEmbedder) Dimension() int { return e.dim }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per text. Blank texts map to zero vectors and
// are not sent.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedNonEmpty(ctx, e.call.backend, e.dim, texts, func(ctx context.Context, batch []string) ([][]float32, error) {
		req := e.body
		req.Input = batch
		var resp ollamaEmbedResponse
		if err := e.call.post(ctx, e.url, req, &resp); err != nil {
			return nil, err
		}
		return resp.Embeddings, nil
	})
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
