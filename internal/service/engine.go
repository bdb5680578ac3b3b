package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"termsearch/internal/checkpoint"
	"termsearch/internal/domain"
	"termsearch/internal/lexical"
	"termsearch/internal/loader"
	"termsearch/internal/progress"
	"termsearch/internal/vectorstore"
	"termsearch/internal/vectorstore/flat"
)

// DefaultTopK is the number of hits returned when callers have no preference.
const DefaultTopK = 3

const encodeBatchSize = 16

var (
	// ErrIndexNotReady is returned by Search before any successful build or load.
	ErrIndexNotReady = errors.New("index not built yet")
	// ErrNoSections is returned when the source text yields no sections.
	ErrNoSections = errors.New("no sections produced")
)

// Engine owns the embedder, the sections of one source text and the index
// built over them. Builds and LoadCheckpoint must not overlap with each other
// or with Search. Concurrent Search calls on a built engine are safe.
type Engine struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      *checkpoint.Store
	summarizer domain.Summarizer
	progress   progress.Reporter

	index        *flat.Index
	lexical      *lexical.Index
	sections     []domain.Section
	originalText string
}

var _ domain.SearchEngine = (*Engine)(nil)

// NewEngine wires the engine. A nil store disables persistence; a nil
// summarizer disables Overview.
func NewEngine(chunker domain.Chunker, embedder domain.Embedder, store *checkpoint.Store, summarizer domain.Summarizer) *Engine {
	return &Engine{chunker: chunker, embedder: embedder, store: store, summarizer: summarizer}
}

// SetProgress attaches a reporter that tracks section encoding.
func (e *Engine) SetProgress(p progress.Reporter) { e.progress = p }

// Ready reports whether an index is available for Search.
func (e *Engine) Ready() bool { return e.index != nil }

// Sections returns the sections of the current build.
func (e *Engine) Sections() []domain.Section { return e.sections }

// OriginalText returns the source text of the current build.
func (e *Engine) OriginalText() string { return e.originalText }

// EmbedderName returns the name of the provider selected at construction.
func (e *Engine) EmbedderName() string { return e.embedder.Name() }

// Overview summarizes the current build in at most maxSections sections.
func (e *Engine) Overview(maxSections int) string {
	if e.summarizer == nil || len(e.sections) == 0 {
		return ""
	}
	return e.summarizer.Summarize(e.sections, maxSections)
}

// BuildFromFile loads the documents matching pattern and builds from their text.
func (e *Engine) BuildFromFile(ctx context.Context, pattern string) error {
	text, files, err := loader.Load(pattern)
	if err != nil {
		return err
	}
	log.Printf("building index from %d file(s): %v", len(files), files)
	return e.BuildFromSource(ctx, text)
}

// BuildFromSource indexes text and persists the checkpoint.
func (e *Engine) BuildFromSource(ctx context.Context, text string) error {
	if err := e.build(ctx, text); err != nil {
		return err
	}
	if e.store == nil {
		return nil
	}
	err := e.store.Save(checkpoint.Snapshot{
		Index:        e.index,
		Sections:     e.sections,
		OriginalText: e.originalText,
		Embedder:     e.embedder.Name(),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Printf("checkpoint saved to %s", e.store.IndexPath())
	return nil
}

// ProcessText indexes text in memory only, without touching the checkpoint.
func (e *Engine) ProcessText(ctx context.Context, text string) error {
	return e.build(ctx, text)
}

// build replaces the engine state as a unit. Zero sections leave the engine
// unbuilt; any other failure keeps the previous state.
func (e *Engine) build(ctx context.Context, text string) error {
	sections := e.chunker.Split(text)
	if len(sections) == 0 {
		e.install(nil, nil, nil, "")
		log.Printf("warning: no sections created")
		return ErrNoSections
	}

	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Content
	}
	vectors, err := e.encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	idx, err := flat.Build(vectors)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	lex, err := lexical.Build(sections)
	if err != nil {
		return fmt.Errorf("build keyword index: %w", err)
	}
	e.install(idx, lex, sections, text)
	log.Printf("index built: %d sections, dimension %d, embedder %s", idx.Len(), idx.Dimension(), e.embedder.Name())
	return nil
}

func (e *Engine) install(idx *flat.Index, lex *lexical.Index, sections []domain.Section, text string) {
	if e.lexical != nil {
		_ = e.lexical.Close()
	}
	e.index, e.lexical, e.sections, e.originalText = idx, lex, sections, text
}

// encode embeds texts in batches so progress can be reported.
func (e *Engine) encode(ctx context.Context, texts []string) ([][]float32, error) {
	if e.progress != nil {
		e.progress.Start(len(texts))
		defer e.progress.Finish()
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += encodeBatchSize {
		end := start + encodeBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		rows, err := e.embedder.Encode(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(rows) != end-start {
			return nil, fmt.Errorf("embedder %s returned %d rows for %d texts", e.embedder.Name(), len(rows), end-start)
		}
		out = append(out, rows...)
		if e.progress != nil {
			e.progress.Add(end - start)
		}
	}
	return out, nil
}

// LoadCheckpoint restores the last persisted build. A missing or unreadable
// checkpoint returns false and leaves the engine unchanged.
func (e *Engine) LoadCheckpoint() bool {
	if e.store == nil {
		return false
	}
	snap, err := e.store.Load()
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			log.Printf("no checkpoint at %s", e.store.IndexPath())
		} else {
			log.Printf("checkpoint unusable, rebuild required: %v", err)
		}
		return false
	}
	lex, err := lexical.Build(snap.Sections)
	if err != nil {
		log.Printf("checkpoint unusable, rebuild required: %v", err)
		return false
	}
	if snap.Embedder != "" && snap.Embedder != e.embedder.Name() {
		log.Printf("warning: checkpoint was built with %s embeddings, querying with %s", snap.Embedder, e.embedder.Name())
	}
	e.install(snap.Index, lex, snap.Sections, snap.OriginalText)
	log.Printf("loaded checkpoint: %d sections", len(snap.Sections))
	return true
}

// Search returns up to k sections most similar to query.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.Hit, error) {
	if e.index == nil {
		return nil, ErrIndexNotReady
	}
	if k <= 0 || e.index.Len() == 0 {
		return []domain.Hit{}, nil
	}
	rows, err := e.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("embedder %s returned %d rows for one query", e.embedder.Name(), len(rows))
	}
	vec := rows[0]
	// A zero vector means the embedder substituted a placeholder.
	if vectorstore.IsZero(vec) && e.lexical != nil {
		return e.lexicalSearch(query, k)
	}
	if len(vec) != e.index.Dimension() {
		log.Printf("warning: query dimension %d does not match index dimension %d", len(vec), e.index.Dimension())
	}
	neighbors := e.index.Search(vec, k)
	hits := make([]domain.Hit, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Row < 0 || n.Row >= len(e.sections) {
			continue
		}
		hits = append(hits, domain.Hit{Section: e.sections[n.Row], Score: n.Score})
	}
	return hits, nil
}

func (e *Engine) lexicalSearch(query string, k int) ([]domain.Hit, error) {
	found, err := e.lexical.Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]domain.Hit, 0, len(found))
	for _, f := range found {
		if f.Row < 0 || f.Row >= len(e.sections) {
			continue
		}
		hits = append(hits, domain.Hit{Section: e.sections[f.Row], Score: float32(f.Score)})
	}
	return hits, nil
}
