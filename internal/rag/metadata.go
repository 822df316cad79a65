package rag

import (
	"fmt"
	"maps"
)

// ValidateMetadata reports ErrInvalidMetadata for any value that is not a
// string, bool, integer or floating-point scalar.
func ValidateMetadata(md map[string]any) error {
	for k, v := range md {
		if _, ok := normalizeScalar(v); !ok {
			return fmt.Errorf("%w: key %q has type %T", ErrInvalidMetadata, k, v)
		}
	}
	return nil
}

// NormalizeMetadata returns a copy of md with integers widened to int64 and
// float32 widened to float64, so values compare equal across backends.
func NormalizeMetadata(md map[string]any) (map[string]any, error) {
	if md == nil {
		return nil, nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		n, ok := normalizeScalar(v)
		if !ok {
			return nil, fmt.Errorf("%w: key %q has type %T", ErrInvalidMetadata, k, v)
		}
		out[k] = n
	}
	return out, nil
}

// MergeMetadata returns base ∪ overlay; keys in overlay win.
func MergeMetadata(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	maps.Copy(out, base)
	maps.Copy(out, overlay)
	return out
}

// ClonePassage returns a deep copy of p so callers cannot alias stored state.
func ClonePassage(p Passage) Passage {
	out := p
	if p.Metadata != nil {
		out.Metadata = maps.Clone(p.Metadata)
	}
	if p.Embedding != nil {
		out.Embedding = append([]float32(nil), p.Embedding...)
	}
	return out
}

func normalizeScalar(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case float32:
		return float64(x), true
	default:
		return nil, false
	}
}
