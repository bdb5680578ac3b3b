package llama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, content string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, body.Content)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEncode_EmbeddingField(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, content string) {
		_, _ = w.Write([]byte(`{"embedding":[1,2,3]}`))
	})
	c, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	rows, err := c.Encode(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 3 || rows[1][2] != 3 {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if c.Dimension() != 3 {
		t.Fatalf("expected dimension 3, got %d", c.Dimension())
	}
}

func TestEncode_FailedItemsBecomeZeroVectors(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, content string) {
		switch content {
		case "broken":
			w.WriteHeader(http.StatusBadRequest)
		case "garbage":
			_, _ = w.Write([]byte(`{"other":true}`))
		default:
			_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
		}
	})
	c, _ := NewClient(Config{BaseURL: srv.URL, DefaultDimension: 4})

	rows, err := c.Encode(context.Background(), []string{"broken", "ok", "garbage"})
	if err != nil {
		t.Fatalf("Encode must contain item failures, got %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// every placeholder follows the server's dimension, including the one
	// that failed before the first success
	for _, i := range []int{0, 2} {
		if len(rows[i]) != 2 || rows[i][0] != 0 || rows[i][1] != 0 {
			t.Fatalf("expected 2-dim zero placeholder at %d, got %v", i, rows[i])
		}
	}
}

func TestEncode_RowsStayRectangularForIndexing(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, content string) {
		if content == "first" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3,0.4,0.5,0.6]}`))
	})
	c, _ := NewClient(Config{BaseURL: srv.URL, DefaultDimension: 3})

	rows, err := c.Encode(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i, r := range rows {
		if len(r) != 6 {
			t.Fatalf("row %d has %d values, want 6", i, len(r))
		}
	}
}

func TestEncode_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewClient(Config{BaseURL: url})
	rows, err := c.Encode(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != DefaultDimension {
		t.Fatalf("expected one zero row of default dimension, got %d rows", len(rows))
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected Ping to fail")
	}
}

func TestPing_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c, _ := NewClient(Config{BaseURL: srv.URL})
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected Ping to fail on 503")
	}
}

func TestParseEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{name: "embedding field", payload: `{"embedding":[1,2]}`, want: 2},
		{name: "nested embedding field", payload: `{"embedding":[[1,2,3]]}`, want: 3},
		{name: "openai shape", payload: `{"data":[{"embedding":[1,2,3,4]}]}`, want: 4},
		{name: "bare array", payload: `[1,2,3]`, want: 3},
		{name: "array of objects", payload: `[{"index":0,"embedding":[[1,2]]}]`, want: 2},
		{name: "missing field", payload: `{"vector":[1]}`, wantErr: true},
		{name: "empty array", payload: `[]`, wantErr: true},
		{name: "not json", payload: `oops`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmbedding([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEmbedding: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d values, got %d", tt.want, len(got))
			}
		})
	}
}
