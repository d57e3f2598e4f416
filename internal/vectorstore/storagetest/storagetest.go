// Package storagetest holds the behaviour suite every vectorstore.Storage
// backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
)

// Factory returns an empty storage. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) vectorstore.Storage

func record(docID, cert, title string, vec ...float32) domain.Record {
	return domain.Record{
		Text:   fmt.Sprintf("%s chunk from %s", cert, docID),
		Vector: vec,
		Metadata: domain.Metadata{
			domain.MetaDocumentID:        docID,
			domain.MetaCertificationCode: cert,
			domain.MetaCertificationName: cert + " name",
			domain.MetaDocumentType:      domain.DocumentTypeSyllabus,
			domain.MetaTitle:             title,
		},
	}
}

// corpus has ten CT-AI records close to query and three CTFL records far from it.
func corpus() []domain.Record {
	var out []domain.Record
	for i := 0; i < 10; i++ {
		out = append(out, record("ai-doc", "CT-AI", "AI Testing", 1, float32(i)*0.01, 0, 0))
	}
	for i := 0; i < 3; i++ {
		out = append(out, record("fl-doc", "CTFL", "Foundation", 0.1, 1, float32(i)*0.1, 0))
	}
	return out
}

var query = []float32{1, 0, 0, 0}

// Run executes the suite against fresh storages from newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Run("Empty", func(t *testing.T) { testEmpty(t, newStorage(t)) })
	t.Run("AddEmptyBatch", func(t *testing.T) { testAddEmptyBatch(t, newStorage(t)) })
	t.Run("SearchRanksByCosine", func(t *testing.T) { testSearchRanks(t, newStorage(t)) })
	t.Run("FilterIsPreFilter", func(t *testing.T) { testPreFilter(t, newStorage(t)) })
	t.Run("DeleteByDocument", func(t *testing.T) { testDeleteByDocument(t, newStorage(t)) })
	t.Run("DeleteByCertification", func(t *testing.T) { testDeleteByCertification(t, newStorage(t)) })
	t.Run("DuplicateAddsAreKept", func(t *testing.T) { testDuplicateAdds(t, newStorage(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newStorage(t)) })
}

func testEmpty(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	ready, err := s.IsReady(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	removed, err := s.DeleteByMetadata(ctx, domain.MetaDocumentID, "nope")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func testAddEmptyBatch(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, nil))
	require.NoError(t, s.Add(ctx, []domain.Record{}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testSearchRanks(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, corpus()))

	ready, err := s.IsReady(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	results, err := s.Search(ctx, query, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, "CT-AI", r.Metadata[domain.MetaCertificationCode])
		assert.Equal(t, "AI Testing", r.Metadata[domain.MetaTitle])
		assert.Equal(t, "ai-doc", r.Metadata[domain.MetaDocumentID])
		assert.NotEmpty(t, r.Text)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
}

func testPreFilter(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, corpus()))

	results, err := s.Search(ctx, query, 5, domain.Metadata{domain.MetaCertificationCode: "CTFL"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "CTFL", r.Metadata[domain.MetaCertificationCode])
	}

	results, err = s.Search(ctx, query, 2, domain.Metadata{domain.MetaCertificationCode: "CTFL"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(ctx, query, 5, domain.Metadata{
		domain.MetaCertificationCode: "CTFL",
		domain.MetaDocumentType:      domain.DocumentTypeSampleExam,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Search(ctx, query, 5, domain.Metadata{domain.MetaCertificationCode: "NOPE"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testDeleteByDocument(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, corpus()))

	removed, err := s.DeleteByMetadata(ctx, domain.MetaDocumentID, "ai-doc")
	require.NoError(t, err)
	assert.Equal(t, 10, removed)

	removed, err = s.DeleteByMetadata(ctx, domain.MetaDocumentID, "ai-doc")
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.DeleteByMetadata(ctx, "no_such_key", "ai-doc")
	require.NoError(t, err)
	assert.Zero(t, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := s.Search(ctx, query, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "fl-doc", r.Metadata[domain.MetaDocumentID])
	}
}

func testDeleteByCertification(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, corpus()))

	removed, err := s.DeleteByMetadata(ctx, domain.MetaCertificationCode, "CTFL")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	removed, err = s.DeleteByMetadata(ctx, domain.MetaCertificationCode, "CT-AI")
	require.NoError(t, err)
	assert.Equal(t, 10, removed)

	ready, err := s.IsReady(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
}

func testDuplicateAdds(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	batch := []domain.Record{record("dup", "CTFL", "Foundation", 1, 1, 0, 0)}
	require.NoError(t, s.Add(ctx, batch))
	again := []domain.Record{record("dup", "CTFL", "Foundation", 1, 1, 0, 0)}
	require.NoError(t, s.Add(ctx, again))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testConcurrentWriters(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	const writers, perWriter = 8, 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			batch := make([]domain.Record, perWriter)
			for i := range batch {
				batch[i] = record(fmt.Sprintf("doc-%d", w), "CTFL", "Foundation", 1, float32(w), float32(i), 1)
			}
			errs <- s.Add(ctx, batch)
		}(w)
		go func() {
			defer wg.Done()
			results, err := s.Search(ctx, query, 50, nil)
			if err == nil && len(results)%perWriter != 0 {
				err = fmt.Errorf("observed a partial batch: %d results", len(results))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, n)

	removed, err := s.DeleteByMetadata(ctx, domain.MetaDocumentID, "doc-3")
	require.NoError(t, err)
	assert.Equal(t, perWriter, removed)
}
