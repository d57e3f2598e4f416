package domain

import (
	"context"
	"time"
)

// Metadata keys carried by every indexed record.
const (
	MetaCertificationCode = "certification_code"
	MetaCertificationName = "certification_name"
	MetaDocumentType      = "document_type"
	MetaTitle             = "title"
	MetaDocumentID        = "document_id"
	MetaPage              = "page"
	MetaChunkIndex        = "chunk_index"
)

// Document types accepted by the catalog.
const (
	DocumentTypeSyllabus   = "syllabus"
	DocumentTypeSampleExam = "sample_exam"
)

// Metadata is the exact-match attribute map stored next to each vector.
type Metadata map[string]string

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matches reports whether every key of filter is present in m with the same value.
func (m Metadata) Matches(filter Metadata) bool {
	for k, v := range filter {
		if got, ok := m[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// DocumentMetadata is supplied by the document-management layer at upload time.
type DocumentMetadata struct {
	DocumentID        string
	CertificationCode string
	CertificationName string
	DocumentType      string
	Title             string
}

// Metadata converts the upload metadata into record metadata.
func (d DocumentMetadata) Metadata() Metadata {
	return Metadata{
		MetaDocumentID:        d.DocumentID,
		MetaCertificationCode: d.CertificationCode,
		MetaCertificationName: d.CertificationName,
		MetaDocumentType:      d.DocumentType,
		MetaTitle:             d.Title,
	}
}

// Document is a catalog entry for an uploaded syllabus or sample exam.
type Document struct {
	ID                string
	CertificationCode string
	CertificationName string
	DocumentType      string
	Title             string
	OriginalFilename  string
	SourcePath        string
	ContentHash       string
	Processed         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UploadMetadata returns the metadata used to tag this document's chunks.
func (d Document) UploadMetadata() DocumentMetadata {
	return DocumentMetadata{
		DocumentID:        d.ID,
		CertificationCode: d.CertificationCode,
		CertificationName: d.CertificationName,
		DocumentType:      d.DocumentType,
		Title:             d.Title,
	}
}

// Page is the extracted text of one PDF page.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded slice of one document's text plus its carried metadata.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// Record is the persisted unit of the vector index.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// SearchResult represents a matching record with a relevance score.
type SearchResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// Citation is a de-duplicated summary of where retrieved context came from.
type Citation struct {
	CertificationCode string `json:"certification_code"`
	DocumentType      string `json:"document_type"`
	Title             string `json:"title"`
}

// RetrievalResult is the orchestrator's per-query output.
type RetrievalResult struct {
	Context             string     `json:"context"`
	Sources             []Citation `json:"sources"`
	RetrievalSuccessful bool       `json:"retrieval_successful"`
}

// EmptyResult is the failed/empty retrieval shape.
func EmptyResult() RetrievalResult {
	return RetrievalResult{Context: "", Sources: []Citation{}, RetrievalSuccessful: false}
}

// Chunker splits extracted text into overlapping segments.
type Chunker interface {
	Split(text string) []string
}

// Extractor turns raw file bytes into page texts.
type Extractor interface {
	Extract(ctx context.Context, content []byte) ([]Page, error)
}
