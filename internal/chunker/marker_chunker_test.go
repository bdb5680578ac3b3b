package chunker

import (
	"reflect"
	"strings"
	"testing"

	"termsearch/internal/domain"
)

func TestSplit_TitlesAndDuplicateLines(t *testing.T) {
	text := "**Intro**\nHello world\n**Body**\nFoo bar\nFoo bar"
	got := NewMarkerChunker("", "").Split(text)

	want := []domain.Section{
		{SectionID: 0, Title: "Intro", Content: "Hello world", StartIdx: 10, EndIdx: 21},
		{SectionID: 1, Title: "Body", Content: "Foo bar", StartIdx: 31, EndIdx: 38},
		{SectionID: 2, Title: "Body", Content: "Foo bar", StartIdx: 39, EndIdx: 46},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split() = %+v, want %+v", got, want)
	}
	if got[2].StartIdx <= got[1].EndIdx-1 {
		t.Fatalf("duplicate line resolved to an earlier span: %+v", got[2])
	}
}

func TestSplit_SpansReproduceUntrimmedLines(t *testing.T) {
	text := "  leading space\n\n**Terms**\n\tTabbed line  \r\nplain\n   \nplain\n"
	sections := NewMarkerChunker("", "").Split(text)
	if len(sections) != 4 {
		t.Fatalf("expected 4 sections, got %d: %+v", len(sections), sections)
	}
	for i, s := range sections {
		if s.SectionID != i {
			t.Fatalf("section %d has id %d", i, s.SectionID)
		}
		raw := text[s.StartIdx:s.EndIdx]
		if strings.TrimSpace(raw) != s.Content {
			t.Fatalf("span %q does not match content %q", raw, s.Content)
		}
		if strings.Contains(raw, "\n") {
			t.Fatalf("span %q crosses a line boundary", raw)
		}
		if i > 0 && s.StartIdx <= sections[i-1].StartIdx {
			t.Fatalf("sections out of order at %d", i)
		}
	}
	if sections[0].Title != DefaultTitle {
		t.Fatalf("expected default title, got %q", sections[0].Title)
	}
	if sections[1].Title != "Terms" || sections[1].Content != "Tabbed line" {
		t.Fatalf("unexpected section 1: %+v", sections[1])
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := "**A**\none\ntwo\n**B**\none\n"
	c := NewMarkerChunker("", "")
	first := c.Split(text)
	for i := 0; i < 3; i++ {
		if again := c.Split(text); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestSplit_EmptyAndMarkerOnly(t *testing.T) {
	c := NewMarkerChunker("", "")
	for _, text := range []string{"", "\n\n  \n", "**Only**\n**Markers**", "**"} {
		if got := c.Split(text); len(got) != 0 {
			t.Fatalf("Split(%q) = %+v, want none", text, got)
		}
	}
}

func TestSplit_CustomDelimiterAndDefaultTitle(t *testing.T) {
	c := NewMarkerChunker("==", "Preamble")
	got := c.Split("first\n==Part ==One==\nsecond")
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(got))
	}
	if got[0].Title != "Preamble" {
		t.Fatalf("expected Preamble, got %q", got[0].Title)
	}
	if got[1].Title != "Part One" {
		t.Fatalf("expected delimiters stripped from title, got %q", got[1].Title)
	}
}
