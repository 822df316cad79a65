package ingestion

import (
	"errors"
	"fmt"

	"github.com/54b3r/finrag-go/internal/rag"
)

// IngestionError reports the failure of one source. It unwraps to both
// rag.ErrIngestion and the underlying cause.
type IngestionError struct {
	SourceID   string
	Collection string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion: source %q into %q: %v", e.SourceID, e.Collection, e.Err)
}

func (e *IngestionError) Unwrap() []error { return []error{rag.ErrIngestion, e.Err} }

// asIngestionError returns err as an *IngestionError, wrapping it for src
// when it is not one already.
func asIngestionError(err error, src Source) *IngestionError {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie
	}
	return &IngestionError{SourceID: src.ID, Collection: src.Collection, Err: err}
}
