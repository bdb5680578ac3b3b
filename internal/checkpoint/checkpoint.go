package checkpoint

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"termsearch/internal/domain"
	"termsearch/internal/vectorstore/flat"
)

//go:embed schema.sql
var schema string

var (
	// ErrNotFound means one or both checkpoint artifacts are missing.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrMismatch means the index and metadata artifacts do not describe the same build.
	ErrMismatch = errors.New("checkpoint artifacts do not match")
)

// Snapshot is everything a built engine needs to resume without re-embedding.
type Snapshot struct {
	Index        *flat.Index
	Sections     []domain.Section
	OriginalText string
	Embedder     string
	CreatedAt    time.Time
}

// Store reads and writes the paired checkpoint artifacts:
// {dir}/{name}.index holds the vectors, {dir}/{name}.db the sections and source text.
type Store struct {
	dir  string
	name string
}

func NewStore(dir, name string) *Store {
	if name == "" {
		name = "terms_search"
	}
	return &Store{dir: dir, name: name}
}

func (s *Store) IndexPath() string { return filepath.Join(s.dir, s.name+".index") }

func (s *Store) MetaPath() string { return filepath.Join(s.dir, s.name+".db") }

// Exists reports whether both artifacts are present.
func (s *Store) Exists() bool {
	for _, p := range []string{s.IndexPath(), s.MetaPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Save writes the index artifact, then the metadata artifact in one transaction.
func (s *Store) Save(snap Snapshot) error {
	if snap.Index == nil {
		return errors.New("checkpoint: nil index")
	}
	if snap.Index.Len() != len(snap.Sections) {
		return fmt.Errorf("index has %d rows for %d sections: %w", snap.Index.Len(), len(snap.Sections), ErrMismatch)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	if err := snap.Index.Save(s.IndexPath()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sections", "checkpoint"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO sections (section_id, title, content, start_idx, end_idx) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()
	for _, sec := range snap.Sections {
		if _, err := stmt.Exec(sec.SectionID, sec.Title, sec.Content, sec.StartIdx, sec.EndIdx); err != nil {
			return fmt.Errorf("failed to insert section %d: %w", sec.SectionID, err)
		}
	}

	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	meta := map[string]string{
		"original_text": snap.OriginalText,
		"embedder":      snap.Embedder,
		"dimension":     strconv.Itoa(snap.Index.Dimension()),
		"section_count": strconv.Itoa(len(snap.Sections)),
		"created_at":    created.UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO checkpoint (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads both artifacts and checks that they are row-aligned.
func (s *Store) Load() (*Snapshot, error) {
	if !s.Exists() {
		return nil, ErrNotFound
	}
	idx, err := flat.Load(s.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := map[string]string{}
	rows, err := db.Query(`SELECT key, value FROM checkpoint`)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	sections, err := readSections(db)
	if err != nil {
		return nil, err
	}

	count, err := strconv.Atoi(meta["section_count"])
	if err != nil || count != len(sections) {
		return nil, fmt.Errorf("metadata lists %q sections, found %d: %w", meta["section_count"], len(sections), ErrMismatch)
	}
	if idx.Len() != len(sections) {
		return nil, fmt.Errorf("index has %d rows for %d sections: %w", idx.Len(), len(sections), ErrMismatch)
	}
	if dim, err := strconv.Atoi(meta["dimension"]); err != nil || (len(sections) > 0 && dim != idx.Dimension()) {
		return nil, fmt.Errorf("metadata dimension %q, index %d: %w", meta["dimension"], idx.Dimension(), ErrMismatch)
	}

	snap := &Snapshot{
		Index:        idx,
		Sections:     sections,
		OriginalText: meta["original_text"],
		Embedder:     meta["embedder"],
	}
	if t, err := time.Parse(time.RFC3339, meta["created_at"]); err == nil {
		snap.CreatedAt = t
	}
	return snap, nil
}

func readSections(db *sql.DB) ([]domain.Section, error) {
	rows, err := db.Query(`SELECT section_id, title, content, start_idx, end_idx FROM sections ORDER BY section_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}
	defer rows.Close()

	var sections []domain.Section
	for rows.Next() {
		var sec domain.Section
		if err := rows.Scan(&sec.SectionID, &sec.Title, &sec.Content, &sec.StartIdx, &sec.EndIdx); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if sec.SectionID != len(sections) {
			return nil, fmt.Errorf("section ids are not dense at %d: %w", sec.SectionID, ErrMismatch)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.MetaPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}
