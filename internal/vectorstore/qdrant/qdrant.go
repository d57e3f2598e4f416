package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"certrag/internal/domain"
	"certrag/internal/vectorstore"
)

// textKey holds the chunk text in the point payload, next to the metadata keys.
const textKey = "text"

// Storage keeps records as points of one Qdrant collection with cosine distance.
// The collection is created on first write if missing.
type Storage struct {
	client     *qdrant.Client
	collection string
	dimension  int

	mu      sync.Mutex
	ensured bool
}

// Config holds connection and collection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Dimension, when nonzero, must match every batch; zero means the first batch decides.
	Dimension int
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage connects to Qdrant. The collection is created on the first Add.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, unavailable("connecting", err)
	}
	return &Storage{client: client, collection: cfg.Collection, dimension: cfg.Dimension}, nil
}

func (s *Storage) Close() error { return s.client.Close() }

// ensureCollection creates the collection when missing.
func (s *Storage) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return unavailable("checking collection", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dim),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		}); err != nil {
			return unavailable("creating collection", err)
		}
	}
	s.ensured = true
	return nil
}

func (s *Storage) collectionReady(ctx context.Context) (bool, error) {
	s.mu.Lock()
	ensured := s.ensured
	s.mu.Unlock()
	if ensured {
		return true, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, unavailable("checking collection", err)
	}
	return exists, nil
}

func (s *Storage) Add(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := append([]domain.Record(nil), records...)
	dim, err := vectorstore.PrepareBatch(batch)
	if err != nil {
		return err
	}
	if err := checkDimension(s.dimension, dim); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	pts := make([]*qdrant.PointStruct, len(batch))
	for i, r := range batch {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[textKey] = r.Text
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         pts,
	}); err != nil {
		return unavailable("upserting points", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter domain.Metadata) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	ok, err := s.collectionReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.SearchResult{}, nil
	}

	limit := uint64(k)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		Filter:         buildFilter(filter),
		Query:          qdrant.NewQuery(vector...),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, unavailable("querying points", err)
	}

	out := make([]domain.SearchResult, 0, len(resp))
	for _, p := range resp {
		md := make(domain.Metadata, len(p.Payload))
		var text string
		for key, v := range p.Payload {
			if key == textKey {
				text = v.GetStringValue()
				continue
			}
			md[key] = payloadString(v)
		}
		out = append(out, domain.SearchResult{
			ID:       pointID(p.Id),
			Text:     text,
			Metadata: md,
			Score:    float64(p.Score),
		})
	}
	return out, nil
}

func (s *Storage) DeleteByMetadata(ctx context.Context, key, value string) (int, error) {
	ok, err := s.collectionReady(ctx)
	if err != nil || !ok {
		return 0, err
	}
	filter := buildFilter(domain.Metadata{key: value})

	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, unavailable("counting points", err)
	}
	if n == 0 {
		return 0, nil
	}

	wait := true
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	}); err != nil {
		return 0, unavailable("deleting points", err)
	}
	return int(n), nil
}

func (s *Storage) IsReady(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	ok, err := s.collectionReady(ctx)
	if err != nil || !ok {
		return 0, err
	}
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, unavailable("counting points", err)
	}
	return int(n), nil
}

// DropCollection removes the whole collection.
func (s *Storage) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	s.ensured = false
	s.mu.Unlock()
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return unavailable("deleting collection", err)
	}
	return nil
}

// checkDimension rejects a batch that does not fit the configured collection size.
func checkDimension(configured, got int) error {
	if configured != 0 && configured != got {
		return fmt.Errorf("%w: vector dimension %d, collection configured for %d", domain.ErrInvalidInput, got, configured)
	}
	return nil
}

func buildFilter(filter domain.Metadata) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	f := &qdrant.Filter{Must: make([]*qdrant.Condition, 0, len(filter))}
	for key, value := range filter {
		f.Must = append(f.Must, qdrant.NewMatch(key, value))
	}
	return f
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch x := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return x.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", x.Num)
	}
	return ""
}

func payloadString(v *qdrant.Value) string {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return fmt.Sprintf("%d", val.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return fmt.Sprintf("%g", val.DoubleValue)
	case *qdrant.Value_BoolValue:
		return fmt.Sprintf("%t", val.BoolValue)
	}
	return ""
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: qdrant %s: %v", domain.ErrIndexUnavailable, op, err)
}
