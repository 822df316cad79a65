package provider

import (
	"context"
	"strings"
	"testing"
	"time"
)

// mapEnv turns a map into a lookup for configFrom.
func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConfigFrom_Defaults(t *testing.T) {
	t.Parallel()
	cfg := configFrom(mapEnv(nil))

	if cfg.Backend != BackendCompletion {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendCompletion)
	}
	if cfg.Completion.URL != DefaultCompletionURL || cfg.Completion.Timeout != defaultCompletionTO {
		t.Errorf("Completion = %+v", cfg.Completion)
	}
	if cfg.Tuning.MaxTokens != defaultMaxTokens || cfg.Tuning.Temperature != defaultTemperature {
		t.Errorf("Tuning = %+v", cfg.Tuning)
	}
	if cfg.Ollama.Host != defaultOllamaHost {
		t.Errorf("Ollama.Host = %q", cfg.Ollama.Host)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfigFrom_Overrides(t *testing.T) {
	t.Parallel()
	cfg := configFrom(mapEnv(map[string]string{
		"MODEL_PROVIDER":     "ollama",
		"OLLAMA_MODEL":       "mistral",
		"COMPLETION_TIMEOUT": "5s",
		"MODEL_MAX_TOKENS":   "not-a-number",
		"MODEL_TEMPERATURE":  "0.7",
	}))

	if cfg.Backend != BackendOllama || cfg.Ollama.Model != "mistral" {
		t.Errorf("Ollama = %+v", cfg.Ollama)
	}
	if cfg.Completion.Timeout != 5*time.Second {
		t.Errorf("Completion.Timeout = %v", cfg.Completion.Timeout)
	}
	if cfg.Tuning.MaxTokens != defaultMaxTokens {
		t.Errorf("unparseable MODEL_MAX_TOKENS should fall back, got %d", cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cfg.Tuning.Temperature)
	}
}

func TestConfigFromEnv_ReadsProcessEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "gemini")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendGemini || cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("cfg = %+v", cfg.Gemini)
	}
}

func TestConfigValidate_ReportsEveryMissingVariable(t *testing.T) {
	t.Parallel()

	tests := map[Backend][]string{
		BackendOllama:  {"OLLAMA_MODEL"},
		BackendOpenAI:  {"OPENAI_API_KEY", "OPENAI_MODEL"},
		BackendAzure:   {"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT"},
		BackendBedrock: {"BEDROCK_MODEL_ID", "AWS_REGION"},
		BackendGemini:  {"GOOGLE_API_KEY", "GEMINI_MODEL"},
	}
	for backend, vars := range tests {
		t.Run(string(backend), func(t *testing.T) {
			t.Parallel()
			err := (&Config{Backend: backend}).Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want missing-variable error")
			}
			for _, v := range vars {
				if !strings.Contains(err.Error(), v) {
					t.Errorf("error %q does not name %s", err, v)
				}
			}
		})
	}
}

func TestConfigValidate_Completion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		temp    float32
		wantErr string
	}{
		{name: "default url", url: DefaultCompletionURL},
		{name: "missing url", wantErr: "COMPLETION_URL is required"},
		{name: "relative url", url: "/v1/chat/completions", wantErr: "not an absolute URL"},
		{name: "temperature too high", url: DefaultCompletionURL, temp: 2.5, wantErr: "MODEL_TEMPERATURE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				Backend:    BackendCompletion,
				Completion: ProviderCompletion{URL: tc.url},
				Tuning:     SharedTuning{Temperature: tc.temp},
			}
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigValidate_UnknownBackendListsChoices(t *testing.T) {
	t.Parallel()
	err := (&Config{Backend: "mainframe"}).Validate()
	if err == nil {
		t.Fatal("want error")
	}
	for _, b := range Backends() {
		if !strings.Contains(err.Error(), b) {
			t.Errorf("error %q does not list %s", err, b)
		}
	}
}

func TestAcceptsTemperature(t *testing.T) {
	t.Parallel()
	fixed := []string{"o1", "o1-preview", "O3-Mini", "o4-mini", "codex-mini"}
	free := []string{"gpt-4o", "gpt-4.1", "gpt-35-turbo", "gpt-5.2-codex", ""}

	for _, d := range fixed {
		if acceptsTemperature(d) {
			t.Errorf("acceptsTemperature(%q) = true", d)
		}
	}
	for _, d := range free {
		if !acceptsTemperature(d) {
			t.Errorf("acceptsTemperature(%q) = false", d)
		}
	}
}

func TestNew_BuildsEveryBackend(t *testing.T) {
	t.Parallel()
	cfgs := []*Config{
		{Backend: BackendCompletion, Completion: ProviderCompletion{URL: DefaultCompletionURL}},
		{Backend: BackendOllama, Ollama: ProviderOllama{Host: defaultOllamaHost, Model: "llama3"}},
		{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
			APIKey: "k", Endpoint: "https://example.openai.azure.com", Deployment: "o3-mini", APIVersion: "2024-02-01",
		}},
	}
	for _, cfg := range cfgs {
		gen, err := New(context.Background(), cfg)
		if err != nil {
			t.Errorf("New(%s): %v", cfg.Backend, err)
			continue
		}
		if gen == nil {
			t.Errorf("New(%s) returned nil generator", cfg.Backend)
		}
	}

	if _, err := New(context.Background(), &Config{Backend: BackendOpenAI}); err == nil {
		t.Error("New should validate before building")
	}
}
