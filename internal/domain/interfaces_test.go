package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataMatches(t *testing.T) {
	md := Metadata{MetaCertificationCode: "CTFL", MetaDocumentType: DocumentTypeSyllabus}

	assert.True(t, md.Matches(nil))
	assert.True(t, md.Matches(Metadata{MetaCertificationCode: "CTFL"}))
	assert.False(t, md.Matches(Metadata{MetaCertificationCode: "CT-AI"}))
	assert.False(t, md.Matches(Metadata{MetaTitle: "CTFL"}))
}

func TestMetadataClone(t *testing.T) {
	md := Metadata{MetaTitle: "a"}
	cp := md.Clone()
	cp[MetaTitle] = "b"
	assert.Equal(t, "a", md[MetaTitle])
}

func TestDocumentMetadataKeys(t *testing.T) {
	md := DocumentMetadata{
		DocumentID:        "doc-1",
		CertificationCode: "CTFL",
		CertificationName: "Foundation Level",
		DocumentType:      DocumentTypeSyllabus,
		Title:             "CTFL v4.0",
	}.Metadata()

	assert.Equal(t, "doc-1", md[MetaDocumentID])
	assert.Equal(t, "CTFL", md[MetaCertificationCode])
	assert.Equal(t, "Foundation Level", md[MetaCertificationName])
	assert.Equal(t, DocumentTypeSyllabus, md[MetaDocumentType])
	assert.Equal(t, "CTFL v4.0", md[MetaTitle])
}

func TestDuplicateError(t *testing.T) {
	err := fmt.Errorf("upload: %w", &DuplicateError{Existing: Document{ID: "42", Title: "CTFL v4.0"}})

	assert.True(t, errors.Is(err, ErrDuplicateContent))
	var dup *DuplicateError
	assert.True(t, errors.As(err, &dup))
	assert.Equal(t, "42", dup.Existing.ID)
	assert.Contains(t, err.Error(), "'CTFL v4.0' (ID: 42)")
}

func TestEmptyResult(t *testing.T) {
	res := EmptyResult()
	assert.Equal(t, "", res.Context)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.False(t, res.RetrievalSuccessful)
}
