// Package store provides the rag.Store backends: an in-process map (memory),
// a local SQLite database (sqlite), and a Qdrant server (qdrant). All of them
// rank by cosine similarity and break score ties by insertion order.
package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/finrag-go/internal/rag"
)

// Backend identifies a store implementation.
type Backend string

const (
	// BackendMemory keeps collections in process memory.
	BackendMemory Backend = "memory"
	// BackendSQLite persists collections in a SQLite file.
	BackendSQLite Backend = "sqlite"
	// BackendQdrant stores collections in a Qdrant server.
	BackendQdrant Backend = "qdrant"
)

// Config selects and configures a store backend.
type Config struct {
	// Backend is the implementation to open. Empty means memory.
	Backend Backend

	// Path is the SQLite database path. Empty means ":memory:".
	Path string

	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig
}

// ConfigFromEnv reads the store configuration from environment variables:
//
//	STORE_BACKEND   = memory | sqlite | qdrant  (default: memory)
//	STORE_PATH      = SQLite database path       (default: :memory:)
//	QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY, QDRANT_USE_TLS, QDRANT_PREFIX
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Backend: Backend(strings.ToLower(os.Getenv("STORE_BACKEND"))),
		Path:    os.Getenv("STORE_PATH"),
		Qdrant: QdrantConfig{
			Host:   os.Getenv("QDRANT_HOST"),
			APIKey: os.Getenv("QDRANT_API_KEY"),
			Prefix: os.Getenv("QDRANT_PREFIX"),
		},
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("store: QDRANT_PORT must be an integer, got %q", v)
		}
		cfg.Qdrant.Port = port
	}
	if v := os.Getenv("QDRANT_USE_TLS"); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("store: QDRANT_USE_TLS must be a boolean, got %q", v)
		}
		cfg.Qdrant.UseTLS = tls
	}
	return cfg, nil
}

// Open constructs the configured backend. dimension is the embedder output
// size, used to create Qdrant collections.
func Open(cfg Config, dimension int) (rag.Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return OpenSQLite(path)
	case BackendQdrant:
		qc := cfg.Qdrant
		qc.VectorSize = uint64(dimension)
		return NewQdrantStore(qc)
	default:
		return nil, fmt.Errorf("store: unknown backend %q (want memory, sqlite or qdrant)", cfg.Backend)
	}
}
