package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultDimension is used for placeholder rows until the server has
// returned at least one embedding.
const DefaultDimension = 384

// Client talks to a llama.cpp style embedding server, one request per text.
type Client struct {
	baseURL          string
	client           *http.Client
	maxRetries       int
	defaultDimension int
	dimension        atomic.Int64
}

// Config configures the embedding server client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	DefaultDimension int
}

// NewClient creates a new embedding server client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llama embedder: base url is empty")
	}
	if cfg.DefaultDimension <= 0 {
		cfg.DefaultDimension = DefaultDimension
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		client:           &http.Client{Timeout: t},
		maxRetries:       cfg.MaxRetries,
		defaultDimension: cfg.DefaultDimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "llama" }

// Dimension returns the dimension of the last successful embedding, or the
// configured default before any succeeded.
func (c *Client) Dimension() int {
	if d := c.dimension.Load(); d > 0 {
		return int(d)
	}
	return c.defaultDimension
}

// Ping checks GET {base}/health and fails on any non-2xx status.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llama health check failed: %s", resp.Status)
	}
	return nil
}

// Encode embeds each text with its own request. A failed item is logged and
// replaced by a zero vector so the batch keeps one row per input; only a
// cancelled context aborts the call.
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var failed []int
	for i, text := range texts {
		v, err := c.Embed(ctx, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Printf("llama: embedding %d/%d failed, using zero vector: %v", i+1, len(texts), err)
			failed = append(failed, i)
			continue
		}
		c.dimension.Store(int64(len(v)))
		out[i] = v
	}
	if len(failed) > 0 {
		// placeholders take the width the server reported, even when the
		// first success came after them
		dim := c.Dimension()
		for _, i := range failed {
			out[i] = make([]float32, dim)
		}
		log.Printf("llama: %d of %d embeddings substituted", len(failed), len(texts))
	}
	return out, nil
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	type reqBody struct {
		Content string `json:"content"`
	}
	url := c.baseURL + "/embedding"
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, err := json.Marshal(reqBody{Content: text})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt < c.maxRetries && sleep(ctx, retryDelay(attempt)) {
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				delay = time.Duration(secs) * time.Second
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries && sleep(ctx, delay) {
				continue
			}
			return nil, fmt.Errorf("llama embedding failed: %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("llama embedding failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			if attempt < c.maxRetries && sleep(ctx, retryDelay(attempt)) {
				continue
			}
			return nil, err
		}
		return parseEmbedding(payload)
	}
	return nil, errors.New("no embedding returned")
}

// parseEmbedding accepts {"embedding": [...]}, the OpenAI-compatible
// {"data": [{"embedding": [...]}]}, or a bare array body.
func parseEmbedding(payload []byte) ([]float32, error) {
	var obj struct {
		Embedding json.RawMessage `json:"embedding"`
		Data      []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil {
		if len(obj.Embedding) > 0 {
			return decodeVector(obj.Embedding)
		}
		if len(obj.Data) > 0 && len(obj.Data[0].Embedding) > 0 {
			return obj.Data[0].Embedding, nil
		}
		return nil, errors.New("response has no embedding field")
	}
	// Fallback to array-shaped bodies: [..] or [{"embedding": ..}]
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("empty embedding")
	}
	if v, err := decodeVector(payload); err == nil {
		return v, nil
	}
	var first struct {
		Embedding json.RawMessage `json:"embedding"`
	}
	if err := json.Unmarshal(items[0], &first); err != nil || len(first.Embedding) == 0 {
		return nil, errors.New("array response has no embedding")
	}
	return decodeVector(first.Embedding)
}

// decodeVector reads a flat vector or the first row of a nested one.
func decodeVector(raw json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("empty embedding")
		}
		return flat, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("decode embedding vector: %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, errors.New("empty embedding")
	}
	return nested[0], nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
