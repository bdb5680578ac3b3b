package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"
)

// ErrNoDocuments is returned when a pattern resolves to no readable files.
var ErrNoDocuments = errors.New("no documents found")

// Load reads every file matching pattern (doublestar syntax, or a plain path)
// and joins their text with newlines, in lexical path order. PDF files are
// reduced to their plain text.
func Load(pattern string) (string, []string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return "", nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		matches = []string{pattern}
	}
	sort.Strings(matches)

	var (
		parts []string
		files []string
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return "", nil, err
		}
		if info.IsDir() {
			continue
		}
		text, err := ReadFile(m)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, text)
		files = append(files, m)
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("%s: %w", pattern, ErrNoDocuments)
	}
	return strings.Join(parts, "\n"), files, nil
}

// ReadFile returns the text content of a single file.
func ReadFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("read pdf buffer %s: %w", path, err)
	}
	return buf.String(), nil
}
