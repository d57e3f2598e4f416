package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateContent indicates byte-identical content was already ingested.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrExtraction indicates the uploaded file could not be read as text.
	ErrExtraction = errors.New("text extraction failed")

	// ErrEmbedding indicates the embedding service failed or returned unusable vectors.
	ErrEmbedding = errors.New("embedding service error")

	// ErrIndexUnavailable indicates the vector index backing store is unreachable.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// DuplicateError is returned when an upload matches an existing document's fingerprint.
type DuplicateError struct {
	Existing Document
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("Document with identical content already exists: '%s' (ID: %s)", e.Existing.Title, e.Existing.ID)
}

// Is makes errors.Is(err, ErrDuplicateContent) hold for *DuplicateError.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateContent
}
