// Package retrieval turns a user query into assembled context and citations.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"certrag/internal/domain"
	"certrag/internal/logger"
)

const (
	module = "retrieval"

	DefaultTopK = 5
	unknown     = "Unknown"
	separator   = "\n\n"
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the read side of the vector index.
type Index interface {
	IsReady(ctx context.Context) (bool, error)
	Search(ctx context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error)
}

// Orchestrator runs filtered similarity search and assembles the result.
type Orchestrator struct {
	embedder QueryEmbedder
	index    Index
	topK     int
	log      logger.Logger
}

func NewOrchestrator(embedder QueryEmbedder, index Index, topK int, log logger.Logger) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Orchestrator{embedder: embedder, index: index, topK: topK, log: log}
}

// Retrieve returns the ranked matches for query, optionally limited to one
// certification. An empty index yields no matches and no error.
func (o *Orchestrator) Retrieve(ctx context.Context, query, certificationCode string) ([]domain.SearchResult, error) {
	ready, err := o.index.IsReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, nil
	}

	var filter domain.Metadata
	if certificationCode != "" {
		filter = domain.Metadata{domain.MetaCertificationCode: certificationCode}
	}

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return o.index.Search(ctx, vec, o.topK, filter)
}

// GetContext never fails: any error or panic degrades to domain.EmptyResult.
func (o *Orchestrator) GetContext(ctx context.Context, query, certificationCode string) (result domain.RetrievalResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(module, "retrieval panicked", map[string]interface{}{
				"panic": fmt.Sprint(r), "certification_code": certificationCode,
			})
			result = domain.EmptyResult()
		}
	}()

	matches, err := o.Retrieve(ctx, query, certificationCode)
	if err != nil {
		o.log.Error(module, "retrieval failed", map[string]interface{}{
			"error": err, "certification_code": certificationCode,
		})
		return domain.EmptyResult()
	}
	if len(matches) == 0 {
		o.log.Info(module, "no relevant context found", map[string]interface{}{
			"certification_code": certificationCode,
		})
		return domain.EmptyResult()
	}

	result = Assemble(matches)
	o.log.Info(module, "context retrieved", map[string]interface{}{
		"matches": len(matches), "sources": len(result.Sources), "certification_code": certificationCode,
	})
	return result
}

// Assemble joins match texts in rank order and collapses their metadata into
// unique citations, first seen first.
func Assemble(matches []domain.SearchResult) domain.RetrievalResult {
	if len(matches) == 0 {
		return domain.EmptyResult()
	}
	texts := make([]string, 0, len(matches))
	sources := make([]domain.Citation, 0, len(matches))
	seen := make(map[domain.Citation]struct{}, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
		c := CitationOf(m.Metadata)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		sources = append(sources, c)
	}
	return domain.RetrievalResult{
		Context:             strings.Join(texts, separator),
		Sources:             sources,
		RetrievalSuccessful: true,
	}
}

// CitationOf maps record metadata to a citation, filling missing fields with "Unknown".
func CitationOf(md domain.Metadata) domain.Citation {
	return domain.Citation{
		CertificationCode: valueOr(md, domain.MetaCertificationCode),
		DocumentType:      valueOr(md, domain.MetaDocumentType),
		Title:             valueOr(md, domain.MetaTitle),
	}
}

func valueOr(md domain.Metadata, key string) string {
	if v, ok := md[key]; ok && v != "" {
		return v
	}
	return unknown
}
