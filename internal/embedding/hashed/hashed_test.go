package hashed

import (
	"context"
	"math"
	"testing"
)

func TestEncode_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := NewEmbedder(64).Encode(ctx, []string{"the same text"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// a fresh instance must agree bit for bit
	b, err := NewEmbedder(64).Encode(ctx, []string{"the same text"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range a[0] {
		if math.Float32bits(a[0][i]) != math.Float32bits(b[0][i]) {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestEncode_UnitNormAndShape(t *testing.T) {
	e := NewEmbedder(0)
	if e.Dimension() != DefaultDimension {
		t.Fatalf("expected default dimension %d, got %d", DefaultDimension, e.Dimension())
	}
	texts := []string{"alpha", "beta", "", "gamma delta"}
	rows, err := e.Encode(context.Background(), texts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(rows) != len(texts) {
		t.Fatalf("expected %d rows, got %d", len(texts), len(rows))
	}
	for i, row := range rows {
		if len(row) != DefaultDimension {
			t.Fatalf("row %d has dimension %d", i, len(row))
		}
		var sum float64
		for _, v := range row {
			sum += float64(v) * float64(v)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Fatalf("row %d norm = %v", i, math.Sqrt(sum))
		}
	}
}

func TestEncode_DifferentTextsDiffer(t *testing.T) {
	rows, err := NewEmbedder(32).Encode(context.Background(), []string{"short", "a much longer string"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	different := false
	for i := range rows[0] {
		if rows[0][i] != rows[1][i] {
			different = true
			break
		}
	}
	if !different {
		t.Fatalf("expected different embeddings for different texts")
	}
}

func TestEncode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEmbedder(8).Encode(ctx, []string{"x"}); err == nil {
		t.Fatalf("expected context error")
	}
}
