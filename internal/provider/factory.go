package provider

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// Defaults applied by ConfigFromEnv.
const (
	defaultOllamaHost   = "http://localhost:11434"
	defaultMaxTokens    = 300
	defaultTemperature  = 0.2
	defaultCompletionTO = 60 * time.Second
)

// ConfigFromEnv reads generation settings from the process environment.
//
//	MODEL_PROVIDER     completion | ollama | openai | azure | bedrock | gemini (default completion)
//	COMPLETION_URL     chat-completions endpoint (default DefaultCompletionURL)
//	COMPLETION_MODEL   optional "model" field
//	COMPLETION_API_KEY optional bearer token
//	COMPLETION_TIMEOUT Go duration (default 60s)
//	OLLAMA_HOST, OLLAMA_MODEL (default llama3)
//	OPENAI_API_KEY, OPENAI_MODEL (default gpt-4o)
//	AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT, AZURE_OPENAI_API_VERSION
//	AWS_REGION (default us-east-1), BEDROCK_MODEL_ID, BEDROCK_ENDPOINT, BEDROCK_API_KEY
//	GOOGLE_API_KEY, GEMINI_MODEL (default gemini-1.5-pro)
//	MODEL_MAX_TOKENS (default 300), MODEL_TEMPERATURE (default 0.2)
func ConfigFromEnv() *Config {
	return configFrom(os.Getenv)
}

// configFrom builds a Config from any variable lookup. Unparseable numbers
// and durations fall back to their defaults.
func configFrom(getenv func(string) string) *Config {
	e := env(getenv)
	return &Config{
		Backend: Backend(e.str("MODEL_PROVIDER", string(BackendCompletion))),
		Completion: ProviderCompletion{
			URL:     e.str("COMPLETION_URL", DefaultCompletionURL),
			Model:   e.str("COMPLETION_MODEL", ""),
			APIKey:  e.str("COMPLETION_API_KEY", ""),
			Timeout: e.duration("COMPLETION_TIMEOUT", defaultCompletionTO),
		},
		Ollama: ProviderOllama{
			Host:  e.str("OLLAMA_HOST", defaultOllamaHost),
			Model: e.str("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: e.str("OPENAI_API_KEY", ""),
			Model:  e.str("OPENAI_MODEL", "gpt-4o"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     e.str("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   e.str("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: e.str("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: e.str("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: e.str("AWS_REGION", "us-east-1"),
			ModelID:   e.str("BEDROCK_MODEL_ID", ""),
			Endpoint:  e.str("BEDROCK_ENDPOINT", ""),
			APIKey:    e.str("BEDROCK_API_KEY", ""),
		},
		Gemini: ProviderGemini{
			APIKey: e.str("GOOGLE_API_KEY", ""),
			Model:  e.str("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Tuning: SharedTuning{
			MaxTokens:   e.integer("MODEL_MAX_TOKENS", defaultMaxTokens),
			Temperature: e.float32("MODEL_TEMPERATURE", defaultTemperature),
		},
	}
}

// env wraps a variable lookup with typed accessors.
type env func(string) string

func (e env) str(key, fallback string) string {
	if v := e(key); v != "" {
		return v
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	n, err := strconv.Atoi(e(key))
	if err != nil {
		return fallback
	}
	return n
}

func (e env) float32(key string, fallback float32) float32 {
	f, err := strconv.ParseFloat(e(key), 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(e(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// chatBuilder constructs the eino chat model for one backend.
type chatBuilder func(context.Context, *Config) (model.BaseChatModel, error)

// chatBuilders maps every eino-backed backend to its constructor.
var chatBuilders = map[Backend]chatBuilder{
	BackendOllama:  newOllama,
	BackendOpenAI:  newOpenAI,
	BackendAzure:   newAzure,
	BackendBedrock: newBedrock,
	BackendGemini:  newGemini,
}

// NewFromEnv builds a Generator from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (Generator, error) {
	return New(ctx, ConfigFromEnv())
}

// New validates cfg and constructs the Generator for its backend. Model
// clients are created eagerly so a bad configuration fails at startup.
func New(ctx context.Context, cfg *Config) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, ok := chatBuilders[cfg.Backend]
	if !ok {
		return NewCompletionGenerator(cfg.Completion), nil
	}
	chat, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEinoGenerator(chat, "finrag-"+string(cfg.Backend)), nil
}
