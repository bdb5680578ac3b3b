package checkpoint

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"termsearch/internal/domain"
	"termsearch/internal/vectorstore/flat"
)

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	idx, err := flat.Build([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	text := "**T**\nfirst line\nsecond line"
	return Snapshot{
		Index: idx,
		Sections: []domain.Section{
			{SectionID: 0, Title: "T", Content: "first line", StartIdx: 6, EndIdx: 16},
			{SectionID: 1, Title: "T", Content: "second line", StartIdx: 17, EndIdx: 28},
		},
		OriginalText: text,
		Embedder:     "fake",
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	snap := testSnapshot(t)
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Sections, snap.Sections) {
		t.Fatalf("sections differ: %+v vs %+v", got.Sections, snap.Sections)
	}
	if got.OriginalText != snap.OriginalText || got.Embedder != "fake" {
		t.Fatalf("metadata differs: %+v", got)
	}
	if got.Index.Len() != 2 || got.Index.Dimension() != 3 {
		t.Fatalf("index shape %dx%d", got.Index.Len(), got.Index.Dimension())
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected creation time")
	}
}

func TestSave_OverwritesPreviousCheckpoint(t *testing.T) {
	store := NewStore(t.TempDir(), "terms")
	if err := store.Save(testSnapshot(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	idx, _ := flat.Build([][]float32{{1, 1}})
	next := Snapshot{
		Index:        idx,
		Sections:     []domain.Section{{SectionID: 0, Title: "Introduction", Content: "only", StartIdx: 0, EndIdx: 4}},
		OriginalText: "only",
	}
	if err := store.Save(next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Sections) != 1 || got.OriginalText != "only" || got.Index.Dimension() != 2 {
		t.Fatalf("stale checkpoint data: %+v", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Exists() {
		t.Fatalf("Exists() on empty dir")
	}
}

func TestLoad_MissingMetadata(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if err := store.Save(testSnapshot(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(store.MetaPath()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_MisalignedArtifacts(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if err := store.Save(testSnapshot(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// replace the index with one that has a different row count
	other, _ := flat.Build([][]float32{{1, 0, 0}})
	if err := other.Save(store.IndexPath()); err != nil {
		t.Fatalf("Save index: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestLoad_CorruptIndex(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if err := store.Save(testSnapshot(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(store.IndexPath(), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, flat.ErrBadFormat) {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestSave_RejectsMisalignedSnapshot(t *testing.T) {
	snap := testSnapshot(t)
	snap.Sections = snap.Sections[:1]
	if err := NewStore(t.TempDir(), "").Save(snap); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}
