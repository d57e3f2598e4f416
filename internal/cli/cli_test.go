package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/citation"
	"certrag/internal/domain"
	"certrag/internal/service"
)

type mockService struct {
	uploads     []service.UploadRequest
	duplicateOf string
	lastCert    string
	result      domain.RetrievalResult
	docs        []domain.Document
	removed     []string
}

func (m *mockService) Upload(_ context.Context, _ []byte, req service.UploadRequest) (*domain.Document, error) {
	if m.duplicateOf != "" {
		return nil, &domain.DuplicateError{Existing: domain.Document{ID: m.duplicateOf, Title: "Foundation"}}
	}
	m.uploads = append(m.uploads, req)
	title := req.Title
	if title == "" {
		title = req.Filename
	}
	return &domain.Document{ID: "doc-1", Title: title, Processed: true}, nil
}

func (m *mockService) GetContextForQuery(_ context.Context, _ string, cert string) domain.RetrievalResult {
	m.lastCert = cert
	return m.result
}

func (m *mockService) Documents(context.Context, string) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *mockService) RemoveDocument(_ context.Context, id string) (int, error) {
	if id == "missing" {
		return 0, domain.ErrNotFound
	}
	m.removed = append(m.removed, id)
	return 3, nil
}

func (m *mockService) RemoveCertification(_ context.Context, code string) (int, error) {
	m.removed = append(m.removed, code)
	return 7, nil
}

func (m *mockService) ReprocessFromSource(context.Context, string) error { return nil }

func (m *mockService) ReprocessCertification(context.Context, string) (int, error) {
	return 1, errors.New("doc-2: file missing")
}

func (m *mockService) ValidateAnswer(answer string, sources []domain.Citation) citation.Report {
	return citation.Validate(answer, sources)
}

func (m *mockService) Status(context.Context) (service.Status, error) {
	return service.Status{
		Initialized:     true,
		Records:         42,
		Embedder:        "openai",
		DocumentsByCert: map[string]int{"CTFL": 2, "CT-AI": 1},
	}, nil
}

func setupMock(t *testing.T) *mockService {
	t.Helper()
	m := &mockService{}
	closed := false
	SetOpener(func(string, bool) (RAGService, func() error, error) {
		return m, func() error { closed = true; return nil }, nil
	})
	t.Cleanup(func() {
		SetOpener(nil)
		rootCmd.SetArgs(nil)
		assert.True(t, closed, "service was not closed")
	})
	return m
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := Execute()
	return buf.String(), err
}

func TestRootHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "query", "chat", "docs", "delete", "reprocess", "cite", "status"} {
		assert.True(t, names[want], want)
	}
}

func TestIngest(t *testing.T) {
	m := setupMock(t)
	path := filepath.Join(t.TempDir(), "ctfl.txt")
	require.NoError(t, os.WriteFile(path, []byte("static testing"), 0o644))

	out, err := run(t, "ingest", "--cert", "CTFL", "--type", "syllabus", "--title", "", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ingested")
	require.Len(t, m.uploads, 1)
	assert.Equal(t, "CTFL", m.uploads[0].CertificationCode)
	assert.Equal(t, "ctfl.txt", m.uploads[0].Filename)
	assert.True(t, filepath.IsAbs(m.uploads[0].SourcePath))
}

func TestIngestReportsDuplicates(t *testing.T) {
	m := setupMock(t)
	m.duplicateOf = "doc-0"
	path := filepath.Join(t.TempDir(), "ctfl.txt")
	require.NoError(t, os.WriteFile(path, []byte("static testing"), 0o644))

	out, err := run(t, "ingest", "--cert", "CTFL", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Document with identical content already exists: 'Foundation' (ID: doc-0)")
}

func TestQuery(t *testing.T) {
	m := setupMock(t)
	m.result = domain.RetrievalResult{
		Context:             "Static testing finds defects without execution.",
		Sources:             []domain.Citation{{CertificationCode: "CTFL", DocumentType: "syllabus", Title: "Foundation"}},
		RetrievalSuccessful: true,
	}

	out, err := run(t, "query", "--cert", "CTFL", "--json=false", "what is static testing?")
	require.NoError(t, err)
	assert.Equal(t, "CTFL", m.lastCert)
	assert.Contains(t, out, "[1] Foundation (CTFL, syllabus)")
	assert.Contains(t, out, "Static testing finds defects")
}

func TestQueryJSON(t *testing.T) {
	m := setupMock(t)
	m.result = domain.EmptyResult()

	out, err := run(t, "query", "--cert", "", "--json", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, `"retrieval_successful": false`)
	assert.Contains(t, out, `"sources": []`)
}

func TestDelete(t *testing.T) {
	m := setupMock(t)

	out, err := run(t, "delete", "cert", "CTFL")
	require.NoError(t, err)
	assert.Contains(t, out, "7 chunks")

	_, err = run(t, "delete", "doc", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, []string{"CTFL"}, m.removed)
}

func TestReprocessCertReportsFailures(t *testing.T) {
	setupMock(t)
	out, err := run(t, "reprocess", "cert", "CTFL")
	require.Error(t, err)
	assert.Contains(t, out, "Reprocessed 1 document(s) of CTFL")
}

func TestCite(t *testing.T) {
	m := setupMock(t)
	m.result = domain.RetrievalResult{
		Sources:             []domain.Citation{{CertificationCode: "CTFL", DocumentType: "syllabus", Title: "Foundation"}},
		RetrievalSuccessful: true,
	}
	out, err := run(t, "cite", "--query", "q", "--cert", "CTFL", "See (Foundation, 1.2) and (Wikipedia).")
	require.NoError(t, err)
	assert.Contains(t, out, "Citations: 2, invalid: 1")
	assert.Contains(t, out, "unknown source: Wikipedia")
}

func TestStatus(t *testing.T) {
	setupMock(t)
	out, err := run(t, "status", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:     42")
	assert.Contains(t, out, "CT-AI")
}
