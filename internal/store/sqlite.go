package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/finrag-go/internal/rag"
)

// SQLiteStore is a rag.Store backed by a local SQLite database. Embeddings
// are stored as little-endian float32 blobs and ranked in Go. Use ":memory:"
// for an ephemeral database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// mu guards handles.
	mu sync.Mutex
	// handles caches one collection value per name so Dimension stays
	// consistent across callers.
	handles map[string]*sqliteCollection
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, handles: make(map[string]*sqliteCollection)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
    name        TEXT    PRIMARY KEY,
    dimension   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS passages (
    collection  TEXT    NOT NULL REFERENCES collections(name),
    id          TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    source_id   TEXT    NOT NULL DEFAULT '',
    text        TEXT    NOT NULL,
    metadata    TEXT    NOT NULL DEFAULT '{}',
    embedding   BLOB    NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_passages_source
    ON passages (collection, source_id, seq);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// GetOrCreate returns the named collection, creating it on first use.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, name string) (rag.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("store: collection name must not be empty")
	}
	const q = `INSERT INTO collections (name, dimension, created_at) VALUES (?, 0, ?) ON CONFLICT(name) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, name, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("store: create collection %q: %w", name, err)
	}
	return s.Collection(ctx, name)
}

// Collection returns an existing collection or rag.ErrNotFound.
func (s *SQLiteStore) Collection(ctx context.Context, name string) (rag.Collection, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rag.NotFoundError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup collection %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.handles[name]
	if !ok {
		c = &sqliteCollection{db: s.db, name: name}
		s.handles[name] = c
	}
	c.dim.Store(int64(dim))
	return c, nil
}

// Names returns collection names in creation order.
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: list collections scan: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list collections rows: %w", err)
	}
	return names, nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// sqliteCollection is a handle onto rows of the passages table.
type sqliteCollection struct {
	db   *sql.DB
	name string
	// dim caches collections.dimension.
	dim atomic.Int64
}

func (c *sqliteCollection) Name() string   { return c.name }
func (c *sqliteCollection) Dimension() int { return int(c.dim.Load()) }

// Upsert writes the batch in one transaction. Existing rows keep their seq.
func (c *sqliteCollection) Upsert(ctx context.Context, passages []rag.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: upsert %q: begin: %w", c.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var pinned int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, c.name).Scan(&pinned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rag.NotFoundError(c.name)
		}
		return fmt.Errorf("store: upsert %q: read dimension: %w", c.name, err)
	}
	dim, err := rag.ValidateBatch(c.name, pinned, passages)
	if err != nil {
		return fmt.Errorf("store: upsert %q: %w", c.name, err)
	}
	if pinned == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = ? WHERE name = ?`, dim, c.name); err != nil {
			return fmt.Errorf("store: upsert %q: pin dimension: %w", c.name, err)
		}
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM passages WHERE collection = ?`, c.name).Scan(&next); err != nil {
		return fmt.Errorf("store: upsert %q: next seq: %w", c.name, err)
	}

	const q = `
INSERT INTO passages (collection, id, seq, source_id, text, metadata, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
    source_id = excluded.source_id,
    text      = excluded.text,
    metadata  = excluded.metadata,
    embedding = excluded.embedding`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: upsert %q: prepare: %w", c.name, err)
	}
	defer stmt.Close()

	for _, p := range passages {
		md, err := json.Marshal(nonNilMetadata(p.Metadata))
		if err != nil {
			return fmt.Errorf("store: upsert %q: encode metadata for %q: %w", c.name, p.ID, err)
		}
		sourceID, _ := p.Metadata[rag.MetaSourceID].(string)
		if _, err := stmt.ExecContext(ctx, c.name, p.ID, next, sourceID, p.Text, string(md), encodeVector(p.Embedding)); err != nil {
			return fmt.Errorf("store: upsert %q: write %q: %w", c.name, p.ID, err)
		}
		next++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: upsert %q: commit: %w", c.name, err)
	}
	c.dim.Store(int64(dim))
	return nil
}

func (c *sqliteCollection) Query(ctx context.Context, vector []float32, k int) ([]rag.ScoredPassage, error) {
	if err := checkQuery(c.name, c.Dimension(), vector, k); err != nil {
		return nil, fmt.Errorf("store: query %q: %w", c.name, err)
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, seq, text, metadata, embedding FROM passages WHERE collection = ?`, c.name)
	if err != nil {
		return nil, fmt.Errorf("store: query %q: %w", c.name, err)
	}
	defer rows.Close()

	cands := []candidate{}
	for rows.Next() {
		var (
			p    rag.Passage
			seq  int64
			md   string
			blob []byte
		)
		if err := rows.Scan(&p.ID, &seq, &p.Text, &md, &blob); err != nil {
			return nil, fmt.Errorf("store: query %q scan: %w", c.name, err)
		}
		if p.Metadata, err = decodeMetadata(md); err != nil {
			return nil, fmt.Errorf("store: query %q: decode metadata for %q: %w", c.name, p.ID, err)
		}
		p.Embedding = decodeVector(blob)
		if err := rag.CheckDimension(c.name, len(vector), p.Embedding); err != nil {
			return nil, fmt.Errorf("store: query %q: %w", c.name, err)
		}
		cands = append(cands, candidate{passage: p, score: cosine(vector, p.Embedding), seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query %q rows: %w", c.name, err)
	}
	return topK(cands, k), nil
}

// deleteBatch bounds the bound variables of one DELETE well below SQLite's
// per-statement limit.
const deleteBatch = 500

func (c *sqliteCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete from %q: begin: %w", c.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	for batch := range slices.Chunk(ids, deleteBatch) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, 0, len(batch)+1)
		args = append(args, c.name)
		for _, id := range batch {
			args = append(args, id)
		}
		q := `DELETE FROM passages WHERE collection = ? AND id IN (` + placeholders + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store: delete from %q: %w", c.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete from %q: commit: %w", c.name, err)
	}
	return nil
}

func (c *sqliteCollection) SourceIDs(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM passages WHERE collection = ? AND source_id = ? ORDER BY seq`, c.name, sourceID)
	if err != nil {
		return nil, fmt.Errorf("store: source ids %q: %w", c.name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: source ids %q scan: %w", c.name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: source ids %q rows: %w", c.name, err)
	}
	return ids, nil
}

func (c *sqliteCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages WHERE collection = ?`, c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %q: %w", c.name, err)
	}
	return n, nil
}

func nonNilMetadata(md map[string]any) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	return md
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// decodeMetadata restores scalar metadata. JSON numbers without a fraction
// or exponent come back as int64, all others as float64.
func decodeMetadata(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	for k, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			raw[k] = i
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		raw[k] = f
	}
	return raw, nil
}
