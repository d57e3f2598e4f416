package memory

import (
	"testing"

	"certrag/internal/catalog"
	"certrag/internal/catalog/catalogtest"
)

func TestStoreSuite(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Store { return NewStore() })
}
