package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
)

// RecordModel is one indexed chunk. Metadata is JSONB so filters run in SQL.
type RecordModel struct {
	Seq       int64             `gorm:"primaryKey;autoIncrement"`
	RecordID  string            `gorm:"type:text;not null"`
	Text      string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null"`
	Embedding pgvector.Vector   `gorm:"type:vector;not null"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Storage is a vectorstore.Storage over Postgres with the pgvector extension.
type Storage struct {
	db    *gorm.DB
	table string
}

var _ vectorstore.Storage = (*Storage)(nil)

// Open connects to dsn and prepares the records table.
func Open(dsn, table string) (*Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, unavailable("connecting", err)
	}
	return New(db, table)
}

// New wraps an existing connection.
func New(db *gorm.DB, table string) (*Storage, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q", domain.ErrInvalidInput, table)
	}
	s := &Storage{db: db, table: table}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate() error {
	if err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return unavailable("creating extension", err)
	}
	if err := s.db.Table(s.table).AutoMigrate(&RecordModel{}); err != nil {
		return unavailable("migrating table", err)
	}
	// index names are schema-wide, so they carry the table name
	for _, stmt := range []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_record_id ON %s (record_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_gin ON %s USING GIN (metadata jsonb_path_ops)`, s.table, s.table),
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			return unavailable("creating index", err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Storage) Add(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := append([]domain.Record(nil), records...)
	if _, err := vectorstore.PrepareBatch(batch); err != nil {
		return err
	}

	rows := make([]RecordModel, len(batch))
	for i, r := range batch {
		md := make(datatypes.JSONMap, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		rows[i] = RecordModel{
			RecordID:  r.ID,
			Text:      r.Text,
			Metadata:  md,
			Embedding: pgvector.NewVector(r.Vector),
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(s.table).CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return unavailable("inserting records", err)
	}
	return nil
}

type scoredRow struct {
	RecordModel
	Score float64
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	q := pgvector.NewVector(vector)

	query := s.db.WithContext(ctx).
		Table(s.table).
		Select("*, 1 - (embedding <=> ?) AS score", q)
	for key, value := range filter {
		query = query.Where("metadata ->> ? = ?", key, value)
	}

	var rows []scoredRow
	err := query.
		Order(gorm.Expr("embedding <=> ?", q)).
		Order("seq").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable("searching records", err)
	}

	out := make([]domain.SearchResult, 0, len(rows))
	for _, r := range rows {
		md := make(domain.Metadata, len(r.Metadata))
		for key, v := range r.Metadata {
			md[key] = fmt.Sprint(v)
		}
		out = append(out, domain.SearchResult{
			ID:       r.RecordID,
			Text:     r.Text,
			Metadata: md,
			Score:    r.Score,
		})
	}
	return out, nil
}

func (s *Storage) DeleteByMetadata(ctx context.Context, key, value string) (int, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(s.table).Where("metadata ->> ? = ?", key, value).Delete(&RecordModel{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, unavailable("deleting records", err)
	}
	return int(removed), nil
}

func (s *Storage) IsReady(ctx context.Context) (bool, error) {
	var row RecordModel
	err := s.db.WithContext(ctx).Table(s.table).Select("seq").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("checking readiness", err)
	}
	return true, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, unavailable("counting records", err)
	}
	return int(n), nil
}

// DropTable removes the records table.
func (s *Storage) DropTable() error {
	return s.db.Migrator().DropTable(s.table)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: pgvector %s: %v", domain.ErrIndexUnavailable, op, err)
}
