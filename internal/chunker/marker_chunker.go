package chunker

import (
	"strings"

	"termsearch/internal/domain"
)

const (
	// DefaultDelimiter wraps title marker lines, e.g. "**Terms**".
	DefaultDelimiter = "**"
	// DefaultTitle is used for sections that precede the first marker.
	DefaultTitle = "Introduction"
)

// MarkerChunker splits text line by line. Lines wrapped in the delimiter set
// the title of the lines that follow them.
type MarkerChunker struct {
	delimiter    string
	defaultTitle string
}

func NewMarkerChunker(delimiter, defaultTitle string) *MarkerChunker {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if defaultTitle == "" {
		defaultTitle = DefaultTitle
	}
	return &MarkerChunker{delimiter: delimiter, defaultTitle: defaultTitle}
}

// Split returns one section per non-empty, non-marker line of content.
func (c *MarkerChunker) Split(content string) []domain.Section {
	var sections []domain.Section
	title := c.defaultTitle
	cursor := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		start := indexFrom(content, line, cursor)
		if c.isMarker(trimmed) {
			title = strings.ReplaceAll(trimmed, c.delimiter, "")
			if start >= 0 {
				cursor = start + len(line)
			}
			continue
		}
		if start < 0 {
			continue
		}
		end := start + len(line)
		sections = append(sections, domain.Section{
			SectionID: len(sections),
			Content:   trimmed,
			Title:     title,
			StartIdx:  start,
			EndIdx:    end,
		})
		cursor = end
	}
	return sections
}

func (c *MarkerChunker) isMarker(trimmed string) bool {
	return strings.HasPrefix(trimmed, c.delimiter) && strings.HasSuffix(trimmed, c.delimiter)
}

// indexFrom finds line in content at or after cursor, or returns -1.
func indexFrom(content, line string, cursor int) int {
	if cursor > len(content) {
		return -1
	}
	i := strings.Index(content[cursor:], line)
	if i < 0 {
		return -1
	}
	return cursor + i
}
