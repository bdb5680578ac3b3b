package vectorstore

import (
	"io"
	"math"
)

// Neighbor is one search result: the inner-product score and the row it came from.
type Neighbor struct {
	Score float32
	Row   int
}

// Index holds normalized vectors in insertion order and answers exact
// inner-product queries over them.
type Index interface {
	Len() int
	Dimension() int
	Search(query []float32, k int) []Neighbor
	io.WriterTo
}

// Normalize scales v in place to unit Euclidean length. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
