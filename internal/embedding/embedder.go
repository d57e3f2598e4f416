package embedding

import (
	"context"
	"fmt"

	"certrag/internal/domain"
)

// Embedder converts free text into fixed-dimension vectors.
// EmbedBatch preserves input order and returns exactly one vector per input.
// Every failure wraps domain.ErrEmbedding.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CheckVectors verifies a batch response: one vector per input, no empty or
// all-zero vectors, one shared dimension.
func CheckVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbedding, want, len(vectors))
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", domain.ErrEmbedding, i)
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", domain.ErrEmbedding, i, len(v), dim)
		}
		if isZero(v) {
			return fmt.Errorf("%w: zero vector at index %d", domain.ErrEmbedding, i)
		}
	}
	return nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
