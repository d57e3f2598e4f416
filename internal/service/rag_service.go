// Package service wires extraction, chunking, embedding and the vector index
// into the ingestion and query entry points used by the document layer.
//
// A RAGService is safe for concurrent use. Deleting a document while chunks for
// the same document_id are being added is not serialized here; callers that
// delete and re-add must do so from one goroutine.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"certrag/internal/catalog"
	"certrag/internal/chunker"
	"certrag/internal/citation"
	"certrag/internal/domain"
	"certrag/internal/embedding"
	"certrag/internal/extract"
	"certrag/internal/fingerprint"
	"certrag/internal/logger"
	"certrag/internal/retrieval"
	"certrag/internal/vectorstore"
)

const module = "service"

// RAGServiceImpl is the ingestion and retrieval service over one index and catalog.
type RAGServiceImpl struct {
	splitter  *chunker.Splitter
	embedder  embedding.Embedder
	index     vectorstore.Storage
	catalog   catalog.Store
	guard     *fingerprint.Guard
	pdf       *extract.PDF
	retriever *retrieval.Orchestrator
	log       logger.Logger
	now       func() time.Time
}

// NewRAGService creates the service; topK <= 0 uses the retrieval default.
func NewRAGService(splitter *chunker.Splitter, embedder embedding.Embedder, index vectorstore.Storage, store catalog.Store, topK int, log logger.Logger) *RAGServiceImpl {
	return &RAGServiceImpl{
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		catalog:   store,
		guard:     fingerprint.NewGuard(store),
		pdf:       extract.NewPDF(log),
		retriever: retrieval.NewOrchestrator(embedder, index, topK, log),
		log:       log,
		now:       time.Now,
	}
}

// UploadRequest describes a file handed over by the document layer.
type UploadRequest struct {
	CertificationCode string
	CertificationName string
	DocumentType      string
	Title             string
	Filename          string
	SourcePath        string
}

// Upload fingerprints content, rejects duplicates, records the document and
// ingests it. A document whose ingestion fails is returned with Processed=false
// together with the error, so it can be reprocessed later.
func (s *RAGServiceImpl) Upload(ctx context.Context, content []byte, req UploadRequest) (*domain.Document, error) {
	digest, err := s.guard.Reject(ctx, content)
	if err != nil {
		var dup *domain.DuplicateError
		if errors.As(err, &dup) {
			s.log.Warn(module, "duplicate upload rejected", map[string]interface{}{
				"existing_id": dup.Existing.ID, "filename": req.Filename,
			})
		}
		return nil, err
	}

	doc := &domain.Document{
		CertificationCode: req.CertificationCode,
		CertificationName: req.CertificationName,
		DocumentType:      req.DocumentType,
		Title:             req.Title,
		OriginalFilename:  req.Filename,
		SourcePath:        req.SourcePath,
		ContentHash:       digest,
	}
	if err := s.catalog.Create(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// lost a race with an identical upload
			if existing, ferr := s.catalog.FindByFingerprint(ctx, digest); ferr == nil {
				return nil, &domain.DuplicateError{Existing: *existing}
			}
		}
		return nil, fmt.Errorf("record document: %w", err)
	}

	if err := s.ingest(ctx, content, *doc); err != nil {
		s.log.Error(module, "ingestion failed, document left unprocessed", map[string]interface{}{
			"document_id": doc.ID, "error": err,
		})
		return doc, err
	}
	if err := s.catalog.MarkProcessed(ctx, doc.ID, true); err != nil {
		return doc, fmt.Errorf("mark processed: %w", err)
	}
	doc.Processed = true
	return doc, nil
}

func (s *RAGServiceImpl) ingest(ctx context.Context, content []byte, doc domain.Document) error {
	pages, err := extract.ForFilename(doc.OriginalFilename, s.pdf).Extract(ctx, content)
	if err != nil {
		return err
	}
	return s.addChunks(ctx, s.splitter.ChunkPages(pages, doc.UploadMetadata()))
}

// AddPDF extracts, chunks, embeds and indexes a PDF. Nothing is written to the
// index unless every step succeeds.
func (s *RAGServiceImpl) AddPDF(ctx context.Context, content []byte, meta domain.DocumentMetadata) error {
	pages, err := s.pdf.Extract(ctx, content)
	if err != nil {
		return err
	}
	return s.addChunks(ctx, s.splitter.ChunkPages(pages, meta))
}

// AddText indexes plain text as a single page.
func (s *RAGServiceImpl) AddText(ctx context.Context, text string, meta domain.DocumentMetadata) error {
	pages, err := extract.PlainText{}.Extract(ctx, []byte(text))
	if err != nil {
		return err
	}
	return s.addChunks(ctx, s.splitter.ChunkPages(pages, meta))
}

func (s *RAGServiceImpl) addChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	start := s.now()
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if err := embedding.CheckVectors(vectors, len(texts)); err != nil {
		return err
	}

	records := make([]domain.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = domain.Record{Text: ch.Text, Vector: vectors[i], Metadata: ch.Metadata}
	}
	if err := s.index.Add(ctx, records); err != nil {
		return err
	}
	s.log.Info(module, "chunks indexed", map[string]interface{}{
		"document_id": chunks[0].Metadata[domain.MetaDocumentID],
		"chunks":      len(chunks),
		"embedder":    s.embedder.Name(),
		"took_ms":     s.now().Sub(start).Milliseconds(),
	})
	return nil
}

// GetContextForQuery never fails; see retrieval.Orchestrator.GetContext.
func (s *RAGServiceImpl) GetContextForQuery(ctx context.Context, query, certificationCode string) domain.RetrievalResult {
	return s.retriever.GetContext(ctx, query, certificationCode)
}

// DeleteDocumentByID removes every indexed chunk of one document.
func (s *RAGServiceImpl) DeleteDocumentByID(ctx context.Context, documentID string) (int, error) {
	return s.deleteBy(ctx, domain.MetaDocumentID, documentID)
}

// DeleteCertificationDocuments removes every indexed chunk of a certification.
func (s *RAGServiceImpl) DeleteCertificationDocuments(ctx context.Context, certificationCode string) (int, error) {
	return s.deleteBy(ctx, domain.MetaCertificationCode, certificationCode)
}

func (s *RAGServiceImpl) deleteBy(ctx context.Context, key, value string) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: empty %s", domain.ErrInvalidInput, key)
	}
	n, err := s.index.DeleteByMetadata(ctx, key, value)
	if err != nil {
		return 0, err
	}
	s.log.Info(module, "chunks deleted", map[string]interface{}{key: value, "deleted": n})
	return n, nil
}

// IsInitialized reports whether the index holds any record. An unreachable
// index counts as not initialized.
func (s *RAGServiceImpl) IsInitialized(ctx context.Context) bool {
	ready, err := s.index.IsReady(ctx)
	if err != nil {
		s.log.Warn(module, "index readiness check failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return ready
}

// ReprocessDocument drops the chunks of a catalog document and indexes content again.
func (s *RAGServiceImpl) ReprocessDocument(ctx context.Context, id string, content []byte) error {
	doc, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.index.DeleteByMetadata(ctx, domain.MetaDocumentID, doc.ID); err != nil {
		return err
	}
	if err := s.catalog.MarkProcessed(ctx, doc.ID, false); err != nil {
		return err
	}
	if err := s.ingest(ctx, content, *doc); err != nil {
		return err
	}
	return s.catalog.MarkProcessed(ctx, doc.ID, true)
}

// ReprocessCertification re-reads every document of a certification from its
// source path. It keeps going past failures and returns them joined.
func (s *RAGServiceImpl) ReprocessCertification(ctx context.Context, certificationCode string) (int, error) {
	docs, err := s.catalog.List(ctx, certificationCode)
	if err != nil {
		return 0, err
	}
	var errs []error
	done := 0
	for _, doc := range docs {
		if err := s.reprocessFromSource(ctx, doc); err != nil {
			s.log.Error(module, "reprocess failed", map[string]interface{}{"document_id": doc.ID, "error": err})
			errs = append(errs, fmt.Errorf("%s: %w", doc.ID, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// ReprocessFromSource re-reads one document from its recorded source path.
func (s *RAGServiceImpl) ReprocessFromSource(ctx context.Context, id string) error {
	doc, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.reprocessFromSource(ctx, *doc)
}

func (s *RAGServiceImpl) reprocessFromSource(ctx context.Context, doc domain.Document) error {
	if doc.SourcePath == "" {
		return fmt.Errorf("%w: no source path recorded", domain.ErrInvalidInput)
	}
	content, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return err
	}
	if got := fingerprint.Of(content); got != doc.ContentHash {
		s.log.Warn(module, "source content changed since upload", map[string]interface{}{
			"document_id": doc.ID, "path": doc.SourcePath,
		})
	}
	return s.ReprocessDocument(ctx, doc.ID, content)
}

// RemoveDocument deletes a document's chunks and its catalog record.
func (s *RAGServiceImpl) RemoveDocument(ctx context.Context, id string) (int, error) {
	if _, err := s.catalog.Get(ctx, id); err != nil {
		return 0, err
	}
	n, err := s.DeleteDocumentByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return n, s.catalog.Delete(ctx, id)
}

// RemoveCertification deletes all chunks and catalog records of a certification.
func (s *RAGServiceImpl) RemoveCertification(ctx context.Context, certificationCode string) (int, error) {
	n, err := s.DeleteCertificationDocuments(ctx, certificationCode)
	if err != nil {
		return 0, err
	}
	if _, err := s.catalog.DeleteByCertification(ctx, certificationCode); err != nil {
		return n, err
	}
	return n, nil
}

// Documents lists catalog entries, optionally for one certification.
func (s *RAGServiceImpl) Documents(ctx context.Context, certificationCode string) ([]domain.Document, error) {
	return s.catalog.List(ctx, certificationCode)
}

// ValidateAnswer checks an answer's citations against retrieved sources and
// logs the invalid ones. The answer is not modified.
func (s *RAGServiceImpl) ValidateAnswer(answer string, sources []domain.Citation) citation.Report {
	report := citation.Validate(answer, sources)
	if !report.Valid() {
		s.log.Warn(module, "answer cites unknown sources", map[string]interface{}{
			"invalid": report.Invalid, "citations": len(report.Citations),
		})
	}
	return report
}

// Status summarizes the index and catalog.
type Status struct {
	Initialized      bool           `json:"is_initialized"`
	Records          int            `json:"records"`
	Embedder         string         `json:"embedder"`
	DocumentsByCert  map[string]int `json:"documents_by_certification"`
	UnprocessedCount int            `json:"unprocessed"`
}

// Status counts records and catalog documents per certification.
func (s *RAGServiceImpl) Status(ctx context.Context) (Status, error) {
	st := Status{
		Initialized:     s.IsInitialized(ctx),
		Embedder:        s.embedder.Name(),
		DocumentsByCert: map[string]int{},
	}
	n, err := s.index.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Records = n
	docs, err := s.catalog.List(ctx, "")
	if err != nil {
		return st, err
	}
	for _, d := range docs {
		st.DocumentsByCert[d.CertificationCode]++
		if !d.Processed {
			st.UnprocessedCount++
		}
	}
	return st, nil
}
