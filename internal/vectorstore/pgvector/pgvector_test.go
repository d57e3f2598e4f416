package pgvector

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
	"certrag/internal/vectorstore/storagetest"
)

// Runs against a live database only when PGVECTOR_DSN is set.
func newLiveStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_DSN not set")
	}
	table := "certrag_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	s, err := Open(dsn, table)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DropTable()
		_ = s.Close()
	})
	return s
}

func TestStorageSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) vectorstore.Storage { return newLiveStorage(t) })
}

func TestNewRejectsUnsafeTableName(t *testing.T) {
	_, err := New(nil, "records; DROP TABLE users")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
