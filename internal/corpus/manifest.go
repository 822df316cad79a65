// Package corpus describes what gets ingested at startup: a YAML manifest of
// books (plain-text documents) and market-data snapshots, the Extractor
// hook that turns a document into text, and the rendering of a snapshot
// into a finance passage.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/54b3r/finrag-go/internal/ingestion"
)

// Default collection names.
const (
	DefaultBooksCollection   = "books"
	DefaultFinanceCollection = "finance"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Manifest lists the documents and snapshots to ingest.
//
// Example:
//
//	books:
//	  - path: books/the_intelligent_investor.txt
//	    title: The Intelligent Investor
//	snapshots:
//	  - ticker: AAPL
//	    path: snapshots/AAPL.yaml
type Manifest struct {
	// BooksCollection receives book passages. Defaults to "books".
	BooksCollection string `yaml:"books_collection" validate:"omitempty,max=128"`
	// FinanceCollection receives snapshot passages. Defaults to "finance".
	FinanceCollection string `yaml:"finance_collection" validate:"omitempty,max=128"`

	Books     []Book     `yaml:"books" validate:"dive"`
	Snapshots []Snapshot `yaml:"snapshots" validate:"dive"`

	// dir resolves relative paths; it is the manifest's directory.
	dir string
}

// Book is one document entry.
type Book struct {
	// ID defaults to a slug of the file name.
	ID string `yaml:"id" validate:"omitempty,max=256"`
	// Title defaults to the humanised file name.
	Title string `yaml:"title"`
	Path  string `yaml:"path" validate:"required"`
	// Metadata is merged onto every passage of the book.
	Metadata map[string]any `yaml:"metadata"`
}

// Snapshot is one market-data entry.
type Snapshot struct {
	Ticker string `yaml:"ticker" validate:"required,max=16"`
	Path   string `yaml:"path" validate:"required"`
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corpus: parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields and rejects duplicate source IDs within a
// collection.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("corpus: invalid manifest: %w", err)
	}
	seen := make(map[string]bool)
	for _, b := range m.Books {
		id := m.bookID(b)
		if seen[id] {
			return fmt.Errorf("corpus: invalid manifest: duplicate book id %q", id)
		}
		seen[id] = true
	}
	clear(seen)
	for _, s := range m.Snapshots {
		if seen[s.Ticker] {
			return fmt.Errorf("corpus: invalid manifest: duplicate ticker %q", s.Ticker)
		}
		seen[s.Ticker] = true
	}
	return nil
}

// Collections returns the books and finance collection names, in the order
// their passages appear in the assembled context.
func (m *Manifest) Collections() []string {
	return []string{m.booksCollection(), m.financeCollection()}
}

func (m *Manifest) booksCollection() string {
	if m.BooksCollection != "" {
		return m.BooksCollection
	}
	return DefaultBooksCollection
}

func (m *Manifest) financeCollection() string {
	if m.FinanceCollection != "" {
		return m.FinanceCollection
	}
	return DefaultFinanceCollection
}

func (m *Manifest) bookID(b Book) string {
	if b.ID != "" {
		return b.ID
	}
	return ingestion.InferMetadata(b.Path).SourceID
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) || m.dir == "" {
		return path
	}
	return filepath.Join(m.dir, path)
}

// Sources extracts every book with ex and renders every snapshot, returning
// one ingestion source per entry. Entries that cannot be read are skipped
// and reported together in the returned error; the rest are still returned.
func (m *Manifest) Sources(ctx context.Context, ex Extractor) ([]ingestion.Source, error) {
	if ex == nil {
		ex = FileExtractor{}
	}
	var (
		out  []ingestion.Source
		errs []error
	)

	for _, b := range m.Books {
		path := m.resolve(b.Path)
		text, err := ex.Extract(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("book %q: %w", b.Path, err))
			continue
		}
		inferred := ingestion.InferMetadata(path)
		md := inferred.Map()
		if b.Title != "" {
			md["title"] = b.Title
		}
		for k, v := range b.Metadata {
			md[k] = v
		}
		out = append(out, ingestion.Source{
			ID:         m.bookID(b),
			Collection: m.booksCollection(),
			Text:       text,
			Metadata:   md,
		})
	}

	for _, s := range m.Snapshots {
		snap, err := LoadSnapshot(m.resolve(s.Path), s.Ticker)
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot %q: %w", s.Ticker, err))
			continue
		}
		ticker := strings.ToUpper(s.Ticker)
		out = append(out, ingestion.Source{
			ID:         ticker,
			Collection: m.financeCollection(),
			Text:       snap.Render(),
			Metadata:   map[string]any{"ticker": ticker},
		})
	}

	return out, errors.Join(errs...)
}
