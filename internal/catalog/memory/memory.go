package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"certrag/internal/catalog"
	"certrag/internal/domain"
)

// Store is an in-memory catalog.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	byHash map[string]string
	seq    map[string]int
	next   int
}

var _ catalog.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		docs:   make(map[string]domain.Document),
		byHash: make(map[string]string),
		seq:    make(map[string]int),
	}
}

func (s *Store) Create(_ context.Context, doc *domain.Document) error {
	if err := catalog.Prepare(doc, time.Now().UTC()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[doc.ContentHash]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.docs[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.docs[doc.ID] = *doc
	s.byHash[doc.ContentHash] = doc.ID
	s.seq[doc.ID] = s.next
	s.next++
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (s *Store) FindByFingerprint(_ context.Context, digest string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[digest]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc := s.docs[id]
	return &doc, nil
}

func (s *Store) List(_ context.Context, certificationCode string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if certificationCode == "" || doc.CertificationCode == certificationCode {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, id string, processed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Processed = processed
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = doc
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.remove(doc)
	return nil
}

func (s *Store) DeleteByCertification(_ context.Context, certificationCode string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, doc := range s.docs {
		if doc.CertificationCode == certificationCode {
			s.remove(doc)
			n++
		}
	}
	return n, nil
}

func (s *Store) remove(doc domain.Document) {
	delete(s.docs, doc.ID)
	delete(s.byHash, doc.ContentHash)
	delete(s.seq, doc.ID)
}

func (s *Store) Close() error { return nil }
