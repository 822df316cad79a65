package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultCollections is used when RAG_COLLECTIONS is unset.
var DefaultCollections = []string{"books", "finance"}

// DefaultEmbedCacheSize is the embed cache capacity when EMBEDDING_CACHE_SIZE
// is unset. A negative value disables the cache.
const DefaultEmbedCacheSize = 4096

// Settings are the application-level knobs that do not belong to a single
// backend package. Zero numeric values select the owning component's default.
type Settings struct {
	// Collections is searched in order and fixes the context order.
	Collections []string `validate:"min=1,unique,dive,required,max=128"`
	// TopK is the per-collection passage count.
	TopK int `validate:"gte=0,lte=50"`
	// MaxContextChars bounds the assembled context.
	MaxContextChars int `validate:"gte=0"`
	// SystemPrompt overrides the default persona.
	SystemPrompt string
	// Corpus is the manifest ingested before serving or answering.
	Corpus string

	// IngestConcurrency bounds batch ingestion.
	IngestConcurrency int `validate:"gte=0,lte=64"`
	// Chunker is the default chunker kind.
	Chunker string `validate:"omitempty,oneof=paragraph window whole"`
	// ChunkSize and ChunkOverlap configure the window chunker.
	ChunkSize    int `validate:"gte=0"`
	ChunkOverlap int `validate:"gte=0"`
	// EmbedCacheSize is the embed cache capacity; negative disables it.
	EmbedCacheSize int

	Host         string
	Port         int           `validate:"gte=0,lte=65535"`
	RateLimit    float64       `validate:"gte=0"`
	RateBurst    int           `validate:"gte=0"`
	QueryTimeout time.Duration `validate:"gte=0"`
}

// SettingsFromEnv reads Settings from the environment and validates them.
// All parse failures are reported together.
func SettingsFromEnv() (*Settings, error) {
	var errs []error
	s := &Settings{
		Collections:       DefaultCollections,
		SystemPrompt:      os.Getenv("RAG_SYSTEM_PROMPT"),
		Corpus:            os.Getenv("RAG_CORPUS"),
		Chunker:           strings.ToLower(os.Getenv("INGEST_CHUNKER")),
		Host:              os.Getenv("FINRAG_HOST"),
		TopK:              envInt("RAG_TOP_K", 0, &errs),
		MaxContextChars:   envInt("RAG_MAX_CONTEXT_CHARS", 0, &errs),
		IngestConcurrency: envInt("INGEST_CONCURRENCY", 0, &errs),
		ChunkSize:         envInt("INGEST_CHUNK_SIZE", 0, &errs),
		ChunkOverlap:      envInt("INGEST_CHUNK_OVERLAP", 0, &errs),
		EmbedCacheSize:    envInt("EMBEDDING_CACHE_SIZE", DefaultEmbedCacheSize, &errs),
		Port:              envInt("FINRAG_PORT", 0, &errs),
		RateBurst:         envInt("FINRAG_RATE_BURST", 0, &errs),
	}
	if v := os.Getenv("RAG_COLLECTIONS"); v != "" {
		s.Collections = splitList(v)
	}
	if v := os.Getenv("FINRAG_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("FINRAG_RATE_LIMIT must be a number, got %q", v))
		}
		s.RateLimit = f
	}
	if v := os.Getenv("FINRAG_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FINRAG_QUERY_TIMEOUT must be a duration, got %q", v))
		}
		s.QueryTimeout = d
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field ranges and the window overlap.
func (s *Settings) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("config: invalid settings: %w", err)
	}
	if s.ChunkSize > 0 && s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("config: INGEST_CHUNK_OVERLAP (%d) must be smaller than INGEST_CHUNK_SIZE (%d)", s.ChunkOverlap, s.ChunkSize)
	}
	return nil
}

func envInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return fallback
	}
	return n
}

// splitList splits a comma-separated list, trimming blanks.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
