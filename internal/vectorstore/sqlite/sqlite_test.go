package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
	"certrag/internal/vectorstore/storagetest"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestStorageSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) vectorstore.Storage { return openTestStorage(t) })
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []domain.Record{{
		Text:     "Statement coverage is measured as executed statements over total statements.",
		Vector:   []float32{0.25, -1.5, 3},
		Metadata: domain.Metadata{domain.MetaDocumentID: "doc-1", domain.MetaPage: "12"},
	}}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, []float32{0.25, -1.5, 3}, 1, domain.Metadata{domain.MetaPage: "12"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "doc-1", results[0].Metadata[domain.MetaDocumentID])
}

func TestAddRejectsDimensionChange(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []domain.Record{{Text: "a", Vector: []float32{1, 0}}}))

	err := s.Add(ctx, []domain.Record{{Text: "b", Vector: []float32{1, 0, 0}}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteRemovesMetadataRows(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []domain.Record{
		{Text: "a", Vector: []float32{1, 0}, Metadata: domain.Metadata{domain.MetaDocumentID: "x", domain.MetaTitle: "A"}},
		{Text: "b", Vector: []float32{0, 1}, Metadata: domain.Metadata{domain.MetaDocumentID: "y", domain.MetaTitle: "B"}},
	}))

	removed, err := s.DeleteByMetadata(ctx, domain.MetaDocumentID, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM record_metadata`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
	assert.Len(t, encodeVector(in), 16)
}

func TestFilteredSelectIsDeterministic(t *testing.T) {
	q1, a1 := filteredSelect(domain.Metadata{"b": "2", "a": "1"})
	q2, a2 := filteredSelect(domain.Metadata{"a": "1", "b": "2"})
	assert.Equal(t, q1, q2)
	assert.Equal(t, []interface{}{"a", "1", "b", "2"}, a1)
	assert.Equal(t, a1, a2)

	q, args := filteredSelect(nil)
	assert.NotContains(t, q, "WHERE")
	assert.Empty(t, args)
}
