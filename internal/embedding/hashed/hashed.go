package hashed

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"
)

// DefaultDimension matches the small sentence-embedding models the remote
// providers usually serve.
const DefaultDimension = 384

// Embedder derives a reproducible unit vector from the md5 of each text.
// It needs no network and no corpus preparation.
type Embedder struct {
	dimension int
}

// NewEmbedder creates a hashed embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "fake" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Encode returns one vector per text. Equal texts always map to bit-identical vectors.
func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	sum := md5.Sum([]byte(text))
	// low 32 bits of the digest read as a big-endian number
	seed := binary.BigEndian.Uint32(sum[12:])
	r := rand.New(rand.NewSource(int64(seed)))

	vec := make([]float32, e.dimension)
	norm := 0.0
	for i := range vec {
		v := r.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
