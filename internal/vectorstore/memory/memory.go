package memory

import (
	"context"
	"fmt"
	"sync"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []domain.Record
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage returns an empty in-memory index.
func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Add(_ context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]domain.Record, len(records))
	for i, r := range records {
		r.Metadata = r.Metadata.Clone()
		batch[i] = r
	}
	dim, err := vectorstore.PrepareBatch(batch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && dim != s.dimension {
		return fmt.Errorf("%w: vector dimension %d, index dimension %d", domain.ErrInvalidInput, dim, s.dimension)
	}
	s.dimension = dim
	s.records = append(s.records, batch...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrInvalidInput, len(vector), s.dimension)
	}

	results := make([]domain.SearchResult, 0, len(s.records))
	for _, r := range s.records {
		if !r.Metadata.Matches(filter) {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata.Clone(),
			Score:    vectorstore.Cosine(vector, r.Vector),
		})
	}
	return vectorstore.Rank(results, k), nil
}

func (s *Storage) DeleteByMetadata(_ context.Context, key, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if v, ok := r.Metadata[key]; ok && v == value {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// drop references held past the new length
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = domain.Record{}
	}
	s.records = kept
	if len(s.records) == 0 {
		s.dimension = 0
	}
	return removed, nil
}

func (s *Storage) IsReady(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) Close() error { return nil }
