package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
	"certrag/internal/vectorstore/storagetest"
)

func TestStorageSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) vectorstore.Storage { return NewStorage() })
}

func TestAddRejectsWholeBatchOnBadVector(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()

	err := s.Add(ctx, []domain.Record{
		{Text: "ok", Vector: []float32{1, 0}},
		{Text: "bad", Vector: []float32{1, 0, 0}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	n, _ := s.Count(ctx)
	assert.Zero(t, n)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []domain.Record{{Text: "a", Vector: []float32{1, 0}}}))

	_, err := s.Search(ctx, []float32{1, 0, 0}, 5, nil)
	assert.Error(t, err)
}

func TestStoredMetadataIsIsolatedFromCaller(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	md := domain.Metadata{domain.MetaCertificationCode: "CTFL"}
	require.NoError(t, s.Add(ctx, []domain.Record{{Text: "a", Vector: []float32{1, 0}, Metadata: md}}))
	md[domain.MetaCertificationCode] = "changed"

	results, err := s.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "CTFL", results[0].Metadata[domain.MetaCertificationCode])
	assert.NotEmpty(t, results[0].ID)
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []domain.Record{
		{Text: "first", Vector: []float32{1, 0}},
		{Text: "second", Vector: []float32{2, 0}},
		{Text: "third", Vector: []float32{3, 0}},
	}))

	results, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "second", results[1].Text)
	assert.Equal(t, "third", results[2].Text)
}
