// Package config loads finrag configuration. Values are layered:
// defaults, then a .env file, then a YAML file, then the process environment.
// Environment variables always win; the YAML and .env layers only fill keys
// that are unset.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. FINRAG_CONFIG environment variable
//  3. ~/.finrag/config.yaml
//  4. ./finrag.yaml
//
// Components read their settings from the environment after Load has run
// (provider.ConfigFromEnv, embedder.NewFromEnv, store.ConfigFromEnv,
// tracing.ConfigFromEnv, SettingsFromEnv).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the YAML file layout. Keys mirror the environment variables
// listed in envMapping.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Completion CompletionConfig `yaml:"completion"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Store      StoreConfig      `yaml:"store"`
	RAG        RAGConfig        `yaml:"rag"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ModelConfig selects the generator backend.
type ModelConfig struct {
	// Provider is completion, ollama, openai, azure, bedrock or gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`
	Bedrock struct {
		Region   string `yaml:"region"`
		ModelID  string `yaml:"model_id"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"bedrock"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// CompletionConfig configures the plain chat-completions endpoint.
type CompletionConfig struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedder.
type EmbeddingConfig struct {
	// Provider is hash, ollama, openai or azure.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	CacheSize  int    `yaml:"cache_size"`
}

// StoreConfig configures the collection store.
type StoreConfig struct {
	// Backend is memory, sqlite or qdrant.
	Backend string `yaml:"backend"`
	// Path is the SQLite database file.
	Path   string `yaml:"path"`
	Qdrant struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
		TLS    bool   `yaml:"tls"`
		Prefix string `yaml:"prefix"`
	} `yaml:"qdrant"`
}

// RAGConfig configures retrieval and context assembly.
type RAGConfig struct {
	// Collections is searched in order; the order is the context order.
	Collections     []string `yaml:"collections"`
	TopK            int      `yaml:"top_k"`
	MaxContextChars int      `yaml:"max_context_chars"`
	SystemPrompt    string   `yaml:"system_prompt"`
	// Corpus is the manifest ingested at startup.
	Corpus string `yaml:"corpus"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	Concurrency  int    `yaml:"concurrency"`
	Chunker      string `yaml:"chunker"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	RateLimit    float64 `yaml:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst"`
	QueryTimeout string  `yaml:"query_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures Langfuse tracing of eino generator calls.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML fields to the environment variables components read.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"BEDROCK_API_KEY", func(c *Config) string { return c.Model.Bedrock.APIKey }},
	{"BEDROCK_ENDPOINT", func(c *Config) string { return c.Model.Bedrock.Endpoint }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"COMPLETION_URL", func(c *Config) string { return c.Completion.URL }},
	{"COMPLETION_API_KEY", func(c *Config) string { return c.Completion.APIKey }},
	{"COMPLETION_MODEL", func(c *Config) string { return c.Completion.Model }},
	{"COMPLETION_TIMEOUT", func(c *Config) string { return c.Completion.Timeout }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_CACHE_SIZE", func(c *Config) string { return intStr(c.Embedding.CacheSize) }},
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"STORE_PATH", func(c *Config) string { return c.Store.Path }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_USE_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"QDRANT_PREFIX", func(c *Config) string { return c.Store.Qdrant.Prefix }},
	{"RAG_COLLECTIONS", func(c *Config) string { return listStr(c.RAG.Collections) }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"RAG_MAX_CONTEXT_CHARS", func(c *Config) string { return intStr(c.RAG.MaxContextChars) }},
	{"RAG_SYSTEM_PROMPT", func(c *Config) string { return c.RAG.SystemPrompt }},
	{"RAG_CORPUS", func(c *Config) string { return c.RAG.Corpus }},
	{"INGEST_CONCURRENCY", func(c *Config) string { return intStr(c.Ingestion.Concurrency) }},
	{"INGEST_CHUNKER", func(c *Config) string { return c.Ingestion.Chunker }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingestion.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingestion.ChunkOverlap) }},
	{"FINRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"FINRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"FINRAG_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"FINRAG_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"FINRAG_QUERY_TIMEOUT", func(c *Config) string { return c.Server.QueryTimeout }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load applies the .env file in the working directory and then the first
// YAML config file found. Neither layer overwrites a variable that is
// already set. It returns the YAML path that was loaded, or "" when none
// was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("config: failed to read .env: %w", err)
	}

	path := resolveConfigPath(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return "", fmt.Errorf("config: %s: %w", explicitPath, fs.ErrNotExist)
		}
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	cfg, err := Parse(path)
	if err != nil {
		return "", err
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(cfg)
		if v == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// Parse reads and decodes one YAML config file. Unknown keys are rejected
// so that typos surface at startup.
func Parse(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfigPath returns the first config file path that exists.
// An explicit path is never substituted by a fallback.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}
	if p := os.Getenv("FINRAG_CONFIG"); p != "" && fileExists(p) {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, ".finrag", "config.yaml"); fileExists(p) {
			return p
		}
	}
	if fileExists("finrag.yaml") {
		return "finrag.yaml"
	}
	return ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// intStr formats v, returning "" for zero.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str formats v with the shortest exact representation, returning
// "" for zero.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

func listStr(v []string) string { return strings.Join(v, ",") }
