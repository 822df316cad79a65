package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenAIEmbedder calls the OpenAI embeddings API, or the Azure OpenAI
// deployment form of it. It is safe for concurrent use.
type OpenAIEmbedder struct {
	url   string
	model string
	dim   int
	call  *jsonCall
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is https://api.openai.com/v1, or
	// https://<resource>.openai.azure.com/openai for Azure.
	BaseURL string
	APIKey  string
	// Model is the model name, or the deployment name for Azure.
	Model string
	// Dimensions is requested from the API and checked on every vector.
	// Zero selects 1536.
	Dimensions int
	// Azure switches to the api-key header and deployment URLs.
	Azure bool
	// APIVersion is sent as api-version in Azure mode.
	APIVersion string
	// Timeout bounds each call. Zero selects 30s.
	Timeout time.Duration
}

// NewOpenAIEmbedder returns an OpenAIEmbedder for cfg.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	header := http.Header{}
	endpoint := base + "/embeddings"
	if cfg.Azure {
		header.Set("api-key", cfg.APIKey)
		endpoint = fmt.Sprintf("%s/deployments/%s/embeddings?api-version=%s",
			base, url.PathEscape(cfg.Model), url.QueryEscape(cfg.APIVersion))
	} else {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &OpenAIEmbedder{
		url:   endpoint,
		model: cfg.Model,
		dim:   positiveOr(cfg.Dimensions, defaultOpenAIDimensions),
		call: &jsonCall{
			client:     &http.Client{Timeout: durationOr(cfg.Timeout, 30*time.Second)},
			backend:    "openai embedder",
			header:     header,
			errMessage: openAIErrorMessage,
		},
	}
}

// Dimension returns the configured output length.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openaiEmbedResponse struct {
	Data []openaiEmbedding `json:"data"`
}

// openAIErrorMessage extracts error.message from an API error body.
func openAIErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	return e.Error.Message
}

// Embed returns one vector per text. Blank texts map to zero vectors and
// are not sent.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedNonEmpty(ctx, e.call.backend, e.dim, texts, e.embedBatch)
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openaiEmbedResponse
	req := openaiEmbedRequest{Input: batch, Model: e.model, Dimensions: e.dim}
	if err := e.call.post(ctx, e.url, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", e.call.backend, len(batch), len(resp.Data))
	}
	// Results carry their input position and may arrive in any order.
	out := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || out[d.Index] != nil {
			return nil, fmt.Errorf("%s: bad result index %d for %d inputs", e.call.backend, d.Index, len(batch))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
