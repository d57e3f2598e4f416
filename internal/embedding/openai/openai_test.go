package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
	"certrag/internal/logger"
)

type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// vectorFor derives a deterministic non-zero vector from the input length.
func vectorFor(s string) []float32 {
	return []float32{float32(len(s)) + 1, 1, 0.5}
}

func inputs(t *testing.T, r *http.Request) []string {
	t.Helper()
	var body struct {
		Input json.RawMessage `json:"input"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	var many []string
	if err := json.Unmarshal(body.Input, &many); err == nil {
		return many
	}
	var one string
	require.NoError(t, json.Unmarshal(body.Input, &one))
	return []string{one}
}

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = url
	c := NewClient(cfg, logger.NewNop())
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		in := inputs(t, r)
		// answer in reverse order; the client must sort by index
		data := make([]embeddingItem, 0, len(in))
		for i := len(in) - 1; i >= 0; i-- {
			data = append(data, embeddingItem{Index: i, Embedding: vectorFor(in[i])})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{APIKey: "sk-test", BatchSize: 2, Parallelism: 3})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vectors, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, vectorFor(text), vectors[i])
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", Config{})
	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		in := inputs(t, r)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []embeddingItem{{Index: 0, Embedding: vectorFor(in[0])}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{})
	first, err := c.Embed(context.Background(), "what is boundary value analysis")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "what is boundary value analysis")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	// callers own the returned slice
	first[0] = -1
	second[1] = -1
	third, err := c.Embed(context.Background(), "what is boundary value analysis")
	require.NoError(t, err)
	assert.Equal(t, vectorFor("what is boundary value analysis"), third)
}

func TestEmbedAcceptsOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{})
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []embeddingItem{{Index: 0, Embedding: []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{MaxRetries: 3})
	v, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFailuresWrapErrEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"client error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"server error exhausts retries", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"zero vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,0,0]}]}`))
		}},
		{"missing vectors", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,1]}]}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv.URL, Config{MaxRetries: 1})
			_, err := c.EmbedBatch(context.Background(), []string{"one", "two"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrEmbedding), "got %v", err)
		})
	}
}

func TestUnreachableServiceWrapsErrEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, Config{MaxRetries: 0})
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbedding))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	for _, attempt := range []int{35, 63, 64, 1000} {
		assert.Equal(t, 5*time.Second, retryDelay(attempt), "attempt %d", attempt)
	}
}
