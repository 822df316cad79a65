package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/finrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output length of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output length of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	defaultOllamaHost      = "http://localhost:11434"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2025-04-01-preview"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendHash   = "hash"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
)

// Settings is the resolved embedder configuration.
type Settings struct {
	Backend    string
	Model      string
	Endpoint   string
	APIKey     string
	APIVersion string
	Dimensions int
	// Store is STORE_BACKEND, read only for the pre-flight warning.
	Store string
}

// SettingsFromEnv resolves Settings from the process environment.
//
//	EMBEDDING_PROVIDER    hash | ollama | openai | azure. When unset, MODEL_PROVIDER
//	                      is used if it names one of these, else hash.
//	EMBEDDING_MODEL       overrides the backend's default model
//	EMBEDDING_ENDPOINT    overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT / the OpenAI base URL
//	EMBEDDING_API_KEY     overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//	EMBEDDING_DIMENSIONS  overrides the default length (hash 384, ollama 768, openai/azure 1536)
func SettingsFromEnv() Settings {
	return settingsFrom(os.Getenv)
}

func settingsFrom(getenv func(string) string) Settings {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}

	s := Settings{
		Backend: strings.ToLower(getenv("EMBEDDING_PROVIDER")),
		Model:   getenv("EMBEDDING_MODEL"),
		Store:   strings.ToLower(getenv("STORE_BACKEND")),
	}
	if s.Backend == "" {
		s.Backend = BackendHash
		switch b := strings.ToLower(getenv("MODEL_PROVIDER")); b {
		case BackendOllama, BackendOpenAI, BackendAzure:
			s.Backend = b
		}
	}
	if n, err := strconv.Atoi(getenv("EMBEDDING_DIMENSIONS")); err == nil && n > 0 {
		s.Dimensions = n
	}

	switch s.Backend {
	case BackendHash:
		s.Model = ""
	case BackendOllama:
		s.Endpoint = first("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if s.Endpoint == "" {
			s.Endpoint = defaultOllamaHost
		}
	case BackendOpenAI:
		s.Endpoint = first("EMBEDDING_ENDPOINT")
		if s.Endpoint == "" {
			s.Endpoint = defaultOpenAIBaseURL
		}
		s.APIKey = first("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	case BackendAzure:
		s.Endpoint = first("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		s.APIKey = first("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		s.APIVersion = first("AZURE_OPENAI_API_VERSION")
		if s.APIVersion == "" {
			s.APIVersion = defaultAzureAPIVersion
		}
	}
	if s.Dimensions == 0 {
		s.Dimensions = DefaultDimensions(s.Backend)
	}
	return s
}

// DefaultDimensions returns the default vector length for backend.
func DefaultDimensions(backend string) int {
	switch backend {
	case BackendHash:
		return DefaultHashDimensions
	case BackendOllama:
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ResolveBackend returns the embedding backend selected by the environment.
func ResolveBackend() string { return SettingsFromEnv().Backend }

// HealthURL returns a URL that answers when the backend is reachable, or ""
// for backends without a cheap probe.
func (s Settings) HealthURL() string {
	if s.Backend == BackendOllama {
		return strings.TrimRight(s.Endpoint, "/") + "/api/tags"
	}
	return ""
}

// Build constructs the embedder described by s.
func (s Settings) Build() (rag.Embedder, error) {
	if err := s.requireCredentials(); err != nil {
		return nil, err
	}
	model := s.Model
	switch s.Backend {
	case BackendHash:
		return NewHashEmbedder(s.Dimensions), nil
	case BackendOllama:
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: model, Dimensions: s.Dimensions}), nil
	case BackendOpenAI:
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: s.Endpoint, APIKey: s.APIKey, Model: model, Dimensions: s.Dimensions,
		}), nil
	default: // BackendAzure
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(s.Endpoint, "/") + "/openai",
			APIKey:     s.APIKey,
			Model:      model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		}), nil
	}
}

// requireCredentials fails when the backend is unknown or its key or
// endpoint is missing.
func (s Settings) requireCredentials() error {
	switch s.Backend {
	case BackendHash, BackendOllama:
		return nil
	case BackendOpenAI:
		if s.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return nil
	case BackendAzure:
		if s.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return nil
	default:
		return fmt.Errorf("embedder: unknown backend %q, set EMBEDDING_PROVIDER to hash, ollama, openai or azure", s.Backend)
	}
}

// NewFromEnv builds the embedder selected by the process environment.
func NewFromEnv() (rag.Embedder, error) {
	return SettingsFromEnv().Build()
}
