package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"certrag/internal/domain"
)

// Storage persists (vector, text, metadata) records and supports filtered
// similarity search and metadata-keyed deletion.
//
// Add makes a batch visible all at once or not at all. Search applies the
// filter before ranking, so it never returns fewer than k results while more
// eligible records exist. DeleteByMetadata is idempotent.
type Storage interface {
	Add(ctx context.Context, records []domain.Record) error
	Search(ctx context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error)
	DeleteByMetadata(ctx context.Context, key, value string) (int, error)
	IsReady(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewRecordID returns a fresh record identifier.
func NewRecordID() string {
	return uuid.NewString()
}

// PrepareBatch assigns missing IDs and checks that every vector is non-empty
// and shares one dimension. It returns that dimension.
func PrepareBatch(records []domain.Record) (int, error) {
	dim := 0
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = NewRecordID()
		}
		n := len(records[i].Vector)
		if n == 0 {
			return 0, fmt.Errorf("%w: record %d has an empty vector", domain.ErrInvalidInput, i)
		}
		if dim == 0 {
			dim = n
		} else if n != dim {
			return 0, fmt.Errorf("%w: record %d has dimension %d, expected %d", domain.ErrInvalidInput, i, n, dim)
		}
	}
	return dim, nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank orders results by descending score, keeping the input order for ties,
// and truncates to k.
func Rank(results []domain.SearchResult, k int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
