package domain

import "context"

// Section is a titled line of source text anchored to its byte span.
// Source[StartIdx:EndIdx] is the untrimmed line that produced Content.
type Section struct {
	SectionID int
	Content   string
	Title     string
	StartIdx  int
	EndIdx    int
}

// Hit represents a matching section with its similarity score.
type Hit struct {
	Section Section
	Score   float32
}

// Embedder converts texts into fixed-dimension vectors.
// Encode returns exactly one row per input text, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits source text into sections suitable for retrieval indexing.
type Chunker interface {
	Split(content string) []Section
}

// Summarizer picks the most representative sections of a document.
type Summarizer interface {
	Summarize(sections []Section, maxSections int) string
}

// SearchEngine defines the operations exposed by the application core.
type SearchEngine interface {
	BuildFromSource(ctx context.Context, text string) error
	ProcessText(ctx context.Context, text string) error
	LoadCheckpoint() bool
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}
