// Package catalog records uploaded documents and their content fingerprints.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certrag/internal/domain"
)

// Store persists document records. Content hashes are unique.
type Store interface {
	// Create assigns an ID and timestamps when missing. A second document
	// with the same content hash fails with domain.ErrAlreadyExists.
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (*domain.Document, error)
	FindByFingerprint(ctx context.Context, digest string) (*domain.Document, error)
	// List returns documents oldest first; an empty code lists everything.
	List(ctx context.Context, certificationCode string) ([]domain.Document, error)
	MarkProcessed(ctx context.Context, id string, processed bool) error
	Delete(ctx context.Context, id string) error
	DeleteByCertification(ctx context.Context, certificationCode string) (int, error)
	Close() error
}

// Prepare fills defaults on a new document and validates required fields.
func Prepare(doc *domain.Document, now time.Time) error {
	if doc.CertificationCode == "" {
		return fmt.Errorf("%w: certification code is required", domain.ErrInvalidInput)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: content hash is required", domain.ErrInvalidInput)
	}
	switch doc.DocumentType {
	case domain.DocumentTypeSyllabus, domain.DocumentTypeSampleExam:
	default:
		return fmt.Errorf("%w: document type %q", domain.ErrInvalidInput, doc.DocumentType)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Title == "" {
		doc.Title = doc.OriginalFilename
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return nil
}
