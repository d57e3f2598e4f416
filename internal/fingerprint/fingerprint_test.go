package fingerprint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
)

type stubLookup struct {
	docs map[string]domain.Document
	err  error
}

func (s stubLookup) FindByFingerprint(_ context.Context, digest string) (*domain.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[digest]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func TestOf(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Of(nil))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Of([]byte("abc")))

	a := Of([]byte("%PDF-1.7 syllabus"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Of([]byte("%PDF-1.7 syllabus")))
	assert.NotEqual(t, a, Of([]byte("%PDF-1.7 syllabus ")))
}

func TestGuardCheck(t *testing.T) {
	content := []byte("syllabus bytes")
	digest := Of(content)
	g := NewGuard(stubLookup{docs: map[string]domain.Document{
		digest: {ID: "doc-1", Title: "CTFL v4.0"},
	}})

	existing, err := g.Check(context.Background(), digest)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "doc-1", existing.ID)

	missing, err := g.Check(context.Background(), Of([]byte("other")))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGuardReject(t *testing.T) {
	content := []byte("syllabus bytes")
	g := NewGuard(stubLookup{docs: map[string]domain.Document{
		Of(content): {ID: "doc-1", Title: "CTFL v4.0"},
	}})

	digest, err := g.Reject(context.Background(), content)
	assert.Equal(t, Of(content), digest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateContent))
	assert.Equal(t, "Document with identical content already exists: 'CTFL v4.0' (ID: doc-1)", err.Error())

	_, err = g.Reject(context.Background(), []byte("fresh"))
	assert.NoError(t, err)
}

func TestGuardPropagatesLookupFailure(t *testing.T) {
	g := NewGuard(stubLookup{err: errors.New("disk gone")})
	_, err := g.Check(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}
