package provider

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config selects a generation backend and carries the settings of every
// backend. Only the sub-struct matching Backend is read.
type Config struct {
	Backend     Backend
	Completion  ProviderCompletion
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// ProviderCompletion configures the raw chat-completions backend.
type ProviderCompletion struct {
	// URL is the full chat-completions endpoint (COMPLETION_URL).
	URL string
	// Model is forwarded as the "model" field when set (COMPLETION_MODEL).
	Model string
	// APIKey is sent as a Bearer token when set (COMPLETION_API_KEY).
	APIKey string
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
	// HTTPClient overrides the default client. Used by tests.
	HTTPClient *http.Client
}

// ProviderOllama configures a local Ollama instance.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI configures the OpenAI API.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderBedrock configures AWS Bedrock.
type ProviderBedrock struct {
	AWSRegion string
	ModelID   string
	// Endpoint optionally overrides the runtime URL.
	Endpoint string
	APIKey   string
}

// ProviderGemini configures Google Gemini via AI Studio.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds sampling settings common to the eino backends.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// requirement names one setting a backend cannot run without.
type requirement struct {
	env   string
	value func(*Config) string
}

// required lists, per backend, the settings that must be non-empty.
var required = map[Backend][]requirement{
	BackendCompletion: {
		{"COMPLETION_URL", func(c *Config) string { return c.Completion.URL }},
	},
	BackendOllama: {
		{"OLLAMA_MODEL", func(c *Config) string { return c.Ollama.Model }},
	},
	BackendOpenAI: {
		{"OPENAI_API_KEY", func(c *Config) string { return c.OpenAI.APIKey }},
		{"OPENAI_MODEL", func(c *Config) string { return c.OpenAI.Model }},
	},
	BackendAzure: {
		{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.AzureOpenAI.APIKey }},
		{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.AzureOpenAI.Endpoint }},
		{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.AzureOpenAI.Deployment }},
	},
	BackendBedrock: {
		{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Bedrock.ModelID }},
		{"AWS_REGION", func(c *Config) string { return c.Bedrock.AWSRegion }},
	},
	BackendGemini: {
		{"GOOGLE_API_KEY", func(c *Config) string { return c.Gemini.APIKey }},
		{"GEMINI_MODEL", func(c *Config) string { return c.Gemini.Model }},
	},
}

// Backends returns the supported backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(required))
	for b := range required {
		names = append(names, string(b))
	}
	slices.Sort(names)
	return names
}

// Validate checks that every setting the selected backend needs is present.
// All missing settings are reported together, each by the environment
// variable that supplies it.
func (c *Config) Validate() error {
	reqs, ok := required[c.Backend]
	if !ok {
		return fmt.Errorf("provider: unknown backend %q, valid values: %s", c.Backend, strings.Join(Backends(), ", "))
	}
	var errs []error
	for _, r := range reqs {
		if strings.TrimSpace(r.value(c)) == "" {
			errs = append(errs, fmt.Errorf("provider: %s is required for the %s backend", r.env, c.Backend))
		}
	}
	if c.Backend == BackendCompletion && c.Completion.URL != "" {
		if u, err := url.Parse(c.Completion.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("provider: COMPLETION_URL %q is not an absolute URL", c.Completion.URL))
		}
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider: MODEL_TEMPERATURE %v outside [0, 2]", c.Tuning.Temperature))
	}
	return errors.Join(errs...)
}

// fixedTemperatureModels are deployment-name prefixes of Azure models that
// reject a temperature parameter.
var fixedTemperatureModels = []string{"o1", "o3", "o4", "codex"}

// acceptsTemperature reports whether an Azure deployment takes a sampling
// temperature.
func acceptsTemperature(deployment string) bool {
	d := strings.ToLower(deployment)
	return !slices.ContainsFunc(fixedTemperatureModels, func(p string) bool {
		return strings.HasPrefix(d, p)
	})
}
