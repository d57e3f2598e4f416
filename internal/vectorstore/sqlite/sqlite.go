// Package sqlite is a persistent local vector index. Vectors are stored as
// little-endian float32 blobs and ranked in process; metadata is mirrored into
// a key/value table so filters run in SQL before ranking.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	dim        INTEGER NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS record_metadata (
	record_seq INTEGER NOT NULL REFERENCES records(seq) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (record_seq, key)
);
CREATE INDEX IF NOT EXISTS idx_record_metadata_kv ON record_metadata(key, value);
`

// Storage is a vectorstore.Storage backed by a SQLite file.
type Storage struct {
	db *sql.DB
	// SQLite allows one writer; serialising here avoids busy upgrades.
	writeMu sync.Mutex
}

var _ vectorstore.Storage = (*Storage)(nil)

// Open creates or opens the index at path.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrIndexUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", domain.ErrIndexUnavailable, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) Add(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := append([]domain.Record(nil), records...)
	dim, err := vectorstore.PrepareBatch(batch)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dim {
		return fmt.Errorf("%w: vector dimension %d, index dimension %d", domain.ErrInvalidInput, dim, existing)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback()

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, text, metadata, embedding, dim) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return unavailable("preparing insert", err)
	}
	defer recStmt.Close()
	mdStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO record_metadata (record_seq, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return unavailable("preparing metadata insert", err)
	}
	defer mdStmt.Close()

	for _, r := range batch {
		mdJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		res, err := recStmt.ExecContext(ctx, r.ID, r.Text, string(mdJSON), encodeVector(r.Vector), dim)
		if err != nil {
			return unavailable("inserting record", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return unavailable("reading record seq", err)
		}
		for k, v := range r.Metadata {
			if _, err := mdStmt.ExecContext(ctx, seq, k, v); err != nil {
				return unavailable("inserting metadata", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing transaction", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}

	query, args := filteredSelect(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("querying records", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var (
			id, text, mdJSON string
			blob             []byte
		)
		if err := rows.Scan(&id, &text, &mdJSON, &blob); err != nil {
			return nil, unavailable("scanning record", err)
		}
		stored := decodeVector(blob)
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrInvalidInput, len(vector), len(stored))
		}
		var md domain.Metadata
		if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", id, err)
		}
		results = append(results, domain.SearchResult{
			ID:       id,
			Text:     text,
			Metadata: md,
			Score:    vectorstore.Cosine(vector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating records", err)
	}
	return vectorstore.Rank(results, k), nil
}

// filteredSelect builds the candidate query with one EXISTS clause per filter key.
func filteredSelect(filter domain.Metadata) (string, []interface{}) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`SELECT r.id, r.text, r.metadata, r.embedding FROM records r`)
	args := make([]interface{}, 0, 2*len(keys))
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(`EXISTS (SELECT 1 FROM record_metadata m WHERE m.record_seq = r.seq AND m.key = ? AND m.value = ?)`)
		args = append(args, k, filter[k])
	}
	b.WriteString(" ORDER BY r.seq")
	return b.String(), args
}

func (s *Storage) DeleteByMetadata(ctx context.Context, key, value string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM records WHERE seq IN (
			SELECT record_seq FROM record_metadata WHERE key = ? AND value = ?
		)`, key, value)
	if err != nil {
		return 0, unavailable("deleting records", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("counting deleted records", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_metadata WHERE record_seq NOT IN (SELECT seq FROM records)`); err != nil {
		return 0, unavailable("deleting metadata", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("committing transaction", err)
	}
	return int(removed), nil
}

func (s *Storage) IsReady(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records LIMIT 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("checking readiness", err)
	}
	return true, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, unavailable("counting records", err)
	}
	return n, nil
}

func (s *Storage) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dim FROM records LIMIT 1`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("reading dimension", err)
	}
	return dim, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, op, err)
}

// encodeVector converts a []float32 to a byte slice for storage.
func encodeVector(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to []float32.
func decodeVector(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
