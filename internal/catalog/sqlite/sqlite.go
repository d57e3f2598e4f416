package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"certrag/internal/catalog"
	"certrag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	certification_code TEXT NOT NULL,
	certification_name TEXT NOT NULL DEFAULT '',
	document_type      TEXT NOT NULL,
	title              TEXT NOT NULL,
	original_filename  TEXT NOT NULL DEFAULT '',
	source_path        TEXT NOT NULL DEFAULT '',
	content_hash       TEXT NOT NULL UNIQUE,
	processed          INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_certification ON documents(certification_code);
`

const columns = `id, certification_code, certification_name, document_type, title,
	original_filename, source_path, content_hash, processed, created_at, updated_at`

// Store is a catalog.Store backed by a SQLite file.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

// Open creates or opens the catalog at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, doc *domain.Document) error {
	if err := catalog.Prepare(doc, time.Now().UTC()); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		doc.ID, doc.CertificationCode, doc.CertificationName, doc.DocumentType, doc.Title,
		doc.OriginalFilename, doc.SourcePath, doc.ContentHash, doc.Processed,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM documents WHERE id = ?`, id)
	return scanOne(row)
}

func (s *Store) FindByFingerprint(ctx context.Context, digest string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM documents WHERE content_hash = ?`, digest)
	return scanOne(row)
}

func (s *Store) List(ctx context.Context, certificationCode string) ([]domain.Document, error) {
	query := `SELECT ` + columns + ` FROM documents`
	var args []interface{}
	if certificationCode != "" {
		query += ` WHERE certification_code = ?`
		args = append(args, certificationCode)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scan(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, id string, processed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processed = ?, updated_at = ? WHERE id = ?`,
		processed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return expectOne(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return expectOne(res)
}

func (s *Store) DeleteByCertification(ctx context.Context, certificationCode string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE certification_code = ?`, certificationCode)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	return int(n), nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row *sql.Row) (*domain.Document, error) {
	doc, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func scan(row scanner) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.CertificationCode, &doc.CertificationName, &doc.DocumentType,
		&doc.Title, &doc.OriginalFilename, &doc.SourcePath, &doc.ContentHash, &doc.Processed,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}
