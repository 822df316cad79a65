package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a collection name that was never created.
	ErrNotFound = errors.New("collection not found")
	// ErrDimensionMismatch signals a vector whose length differs from the
	// collection's pinned dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIngestion signals that ingesting one source failed.
	ErrIngestion = errors.New("ingestion failed")
	// ErrDuplicateID signals a passage ID repeated within one upsert call.
	ErrDuplicateID = errors.New("duplicate passage id")
	// ErrInvalidPassage signals a passage with an empty ID or empty text.
	ErrInvalidPassage = errors.New("invalid passage")
	// ErrInvalidMetadata signals a non-scalar metadata value.
	ErrInvalidMetadata = errors.New("metadata values must be scalars")
	// ErrInvalidK signals a result count below 1.
	ErrInvalidK = errors.New("k must be at least 1")
)

// DimensionError reports a dimension conflict on a named collection.
type DimensionError struct {
	// Collection is the collection the vector was checked against.
	Collection string
	// Want is the collection's pinned dimension.
	Want int
	// Got is the length of the offending vector.
	Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: collection %q has dimension %d, got %d",
		ErrDimensionMismatch.Error(), e.Collection, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// CheckDimension returns a *DimensionError when want is pinned (non-zero) and
// differs from the vector length.
func CheckDimension(collection string, want int, vector []float32) error {
	if want != 0 && len(vector) != want {
		return &DimensionError{Collection: collection, Want: want, Got: len(vector)}
	}
	return nil
}

// NotFoundError returns an error wrapping ErrNotFound for the named collection.
func NotFoundError(name string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ValidateBatch checks a batch of passages before it reaches a backend:
// IDs and text must be non-empty, IDs unique within the batch, every vector
// the same length as dim (or as the first vector when dim is 0), and every
// metadata value a scalar. It returns the batch's vector length.
func ValidateBatch(collection string, dim int, passages []Passage) (int, error) {
	seen := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		if p.ID == "" {
			return 0, fmt.Errorf("%w: empty id", ErrInvalidPassage)
		}
		if p.Text == "" {
			return 0, fmt.Errorf("%w: empty text for id %q", ErrInvalidPassage, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}

		if dim == 0 {
			dim = len(p.Embedding)
			if dim == 0 {
				return 0, fmt.Errorf("%w: empty embedding for id %q", ErrInvalidPassage, p.ID)
			}
		}
		if err := CheckDimension(collection, dim, p.Embedding); err != nil {
			return 0, err
		}
		if err := ValidateMetadata(p.Metadata); err != nil {
			return 0, fmt.Errorf("id %q: %w", p.ID, err)
		}
	}
	return dim, nil
}
