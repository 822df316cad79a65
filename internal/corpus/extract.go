package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for files an Extractor cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// DefaultMaxBytes caps how much of one document FileExtractor reads.
const DefaultMaxBytes = 64 << 20

// Extractor produces raw text from a document. PDF and other binary formats
// are handled by external tools that implement this interface.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FileExtractor reads plain-text documents (.txt, .md) from disk.
type FileExtractor struct {
	// MaxBytes caps the bytes read per file. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

// textExts lists the extensions FileExtractor accepts.
var textExts = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// Extract returns the file's text with CRLF line endings normalised.
func (e FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ext := strings.ToLower(filepath.Ext(path)); !textExts[ext] {
		return "", fmt.Errorf("corpus: %w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", fmt.Errorf("corpus: read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("corpus: %s exceeds %d bytes", path, limit)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("corpus: %s is not valid UTF-8", path)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
