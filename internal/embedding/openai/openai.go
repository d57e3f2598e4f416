package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"certrag/internal/domain"
	"certrag/internal/embedding"
	"certrag/internal/logger"
)

const module = "embedding"

// Client is an OpenAI-compatible embeddings client implementing embedding.Embedder.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	batchSize   int
	parallelism int
	maxRetries  int
	dimension   atomic.Int64

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *cache.Cache
	log     logger.Logger
	backoff func(attempt int) time.Duration
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Dimensions     int
	Timeout        time.Duration
	BatchSize      int
	Parallelism    int
	MaxRetries     int
	RequestsPerSec float64
	CacheTTL       time.Duration
	HTTPClient     *http.Client
}

var _ embedding.Embedder = (*Client)(nil)

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
		maxRetries:  cfg.MaxRetries,
		client:      httpClient,
		limiter:     rate.NewLimiter(limit, cfg.Parallelism),
		cache:       cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:         log,
		backoff:     retryDelay,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embeddings",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn(module, "circuit breaker state changed", map[string]interface{}{
				"breaker": name, "from": from.String(), "to": to.String(),
			})
		},
	})
	return c
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality observed on the last successful response.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text. Results are cached by text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float32(nil), v.([]float32)...), nil
	}
	vectors, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vectors[0]...), cache.DefaultExpiration)
	return vectors[0], nil
}

// EmbedBatch embeds texts in sub-batches of the configured size, running up to
// parallelism requests at once. Output order matches input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for start := 0; start < len(texts); start += c.batchSize {
		start := start
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vectors, err := c.request(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := embedding.CheckVectors(out, len(texts)); err != nil {
		return nil, err
	}
	return out, nil
}

// request sends one embeddings call through the limiter and the circuit breaker.
func (c *Client) request(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, inputs)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: service temporarily unavailable: %v", domain.ErrEmbedding, err)
		}
		if errors.Is(err, domain.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	vectors := result.([][]float32)
	if err := embedding.CheckVectors(vectors, len(inputs)); err != nil {
		return nil, err
	}
	c.dimension.Store(int64(len(vectors[0])))
	return vectors, nil
}

type requestBody struct {
	Input      interface{} `json:"input"`
	Prompt     string      `json:"prompt,omitempty"`
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
}

type statusError struct {
	status    string
	code      int
	retryWait time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai embeddings failed: %s", e.status)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (c *Client) doWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		vectors, err := c.do(ctx, inputs)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil || attempt == c.maxRetries {
			break
		}
		wait := c.backoff(attempt)
		if se != nil && se.retryWait > 0 {
			wait = se.retryWait
		}
		c.log.Debug(module, "retrying embeddings request", map[string]interface{}{
			"attempt": attempt + 1, "wait": wait.String(), "error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, inputs []string) ([][]float32, error) {
	body := requestBody{Input: inputs, Model: c.model, Dimensions: c.dimensions}
	if len(inputs) == 1 {
		// Ollama's native endpoint reads "prompt"
		body.Input = inputs[0]
		body.Prompt = inputs[0]
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		se := &statusError{status: resp.Status, code: resp.StatusCode}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				se.retryWait = time.Duration(secs) * time.Second
			}
		}
		return nil, se
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(payload, len(inputs))
}

// decode accepts the OpenAI list shape and, for single inputs, the Ollama
// {"embedding": [...]} shape.
func decode(payload []byte, n int) ([][]float32, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		sort.SliceStable(openaiOut.Data, func(i, j int) bool {
			return openaiOut.Data[i].Index < openaiOut.Data[j].Index
		})
		out := make([][]float32, len(openaiOut.Data))
		for i, d := range openaiOut.Data {
			out[i] = d.Embedding
		}
		return out, nil
	}
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 && n == 1 {
		return [][]float32{ollamaOut.Embedding}, nil
	}
	return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 200ms << 5 already exceeds the cap
	if attempt > 5 {
		attempt = 5
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
