// Package fingerprint computes content digests and checks them against
// previously ingested documents.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"certrag/internal/domain"
)

// Of returns the lowercase hex SHA-256 digest of content.
func Of(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Lookup finds a document by its content fingerprint.
// It returns domain.ErrNotFound when none exists.
type Lookup interface {
	FindByFingerprint(ctx context.Context, digest string) (*domain.Document, error)
}

// Guard rejects content that was already ingested.
type Guard struct {
	lookup Lookup
}

func NewGuard(lookup Lookup) *Guard {
	return &Guard{lookup: lookup}
}

// Check returns the existing document for digest, or nil if the digest is new.
func (g *Guard) Check(ctx context.Context, digest string) (*domain.Document, error) {
	doc, err := g.lookup.FindByFingerprint(ctx, digest)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return doc, nil
}

// Reject returns a *domain.DuplicateError when content is already known.
func (g *Guard) Reject(ctx context.Context, content []byte) (string, error) {
	digest := Of(content)
	existing, err := g.Check(ctx, digest)
	if err != nil {
		return digest, err
	}
	if existing != nil {
		return digest, &domain.DuplicateError{Existing: *existing}
	}
	return digest, nil
}
