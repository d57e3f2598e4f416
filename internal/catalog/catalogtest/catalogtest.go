// Package catalogtest holds the behaviour suite every catalog.Store must pass.
package catalogtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/catalog"
	"certrag/internal/domain"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) catalog.Store

func newDoc(cert, title, hash string) *domain.Document {
	return &domain.Document{
		CertificationCode: cert,
		CertificationName: cert + " certification",
		DocumentType:      domain.DocumentTypeSyllabus,
		Title:             title,
		OriginalFilename:  title + ".pdf",
		ContentHash:       hash,
	}
}

// Run executes the suite against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		doc := newDoc("CTFL", "Foundation", "h1")
		require.NoError(t, s.Create(ctx, doc))
		assert.NotEmpty(t, doc.ID)
		assert.False(t, doc.CreatedAt.IsZero())

		got, err := s.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Foundation", got.Title)
		assert.Equal(t, "h1", got.ContentHash)
		assert.False(t, got.Processed)

		byHash, err := s.FindByFingerprint(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, byHash.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Get(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = s.FindByFingerprint(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.True(t, errors.Is(s.MarkProcessed(ctx, "missing", true), domain.ErrNotFound))
		assert.True(t, errors.Is(s.Delete(ctx, "missing"), domain.ErrNotFound))
	})

	t.Run("UniqueFingerprint", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, newDoc("CTFL", "Foundation", "same")))
		err := s.Create(ctx, newDoc("CT-AI", "Renamed copy", "same"))
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

		docs, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("ConcurrentCreateOneWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.Create(ctx, newDoc("CTFL", "Foundation", "race"))
			}()
		}
		wg.Wait()
		close(results)
		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.True(t, errors.Is(err, domain.ErrAlreadyExists), "got %v", err)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("RejectsInvalidDocuments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		bad := newDoc("CTFL", "x", "h")
		bad.DocumentType = "brochure"
		assert.True(t, errors.Is(s.Create(ctx, bad), domain.ErrInvalidInput))
		assert.True(t, errors.Is(s.Create(ctx, newDoc("", "x", "h")), domain.ErrInvalidInput))
		assert.True(t, errors.Is(s.Create(ctx, newDoc("CTFL", "x", "")), domain.ErrInvalidInput))
	})

	t.Run("ListAndMarkProcessed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newDoc("CTFL", "A", "ha")
		b := newDoc("CT-AI", "B", "hb")
		c := newDoc("CTFL", "C", "hc")
		for _, d := range []*domain.Document{a, b, c} {
			require.NoError(t, s.Create(ctx, d))
		}
		require.NoError(t, s.MarkProcessed(ctx, c.ID, true))

		ctfl, err := s.List(ctx, "CTFL")
		require.NoError(t, err)
		require.Len(t, ctfl, 2)
		assert.Equal(t, "A", ctfl[0].Title)
		assert.Equal(t, "C", ctfl[1].Title)
		assert.True(t, ctfl[1].Processed)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newDoc("CTFL", "A", "ha")
		b := newDoc("CTFL", "B", "hb")
		c := newDoc("CT-AI", "C", "hc")
		for _, d := range []*domain.Document{a, b, c} {
			require.NoError(t, s.Create(ctx, d))
		}

		require.NoError(t, s.Delete(ctx, c.ID))
		_, err := s.FindByFingerprint(ctx, "hc")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		// the fingerprint is free again
		require.NoError(t, s.Create(ctx, newDoc("CT-AI", "C again", "hc")))

		n, err := s.DeleteByCertification(ctx, "CTFL")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = s.DeleteByCertification(ctx, "CTFL")
		require.NoError(t, err)
		assert.Zero(t, n)

		rest, err := s.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "C again", rest[0].Title)
	})
}
