package progress

import (
	"bytes"
	"testing"
)

func TestNew_Disabled(t *testing.T) {
	if r := New(false, "encoding"); r != nil {
		t.Fatalf("expected nil reporter when disabled, got %T", r)
	}
}

func TestBar_WritesProgress(t *testing.T) {
	var buf bytes.Buffer
	b := &Bar{out: &buf, desc: "encoding"}
	b.Start(4)
	b.Add(2)
	b.Add(2)
	b.Finish()
	if buf.Len() == 0 {
		t.Fatalf("expected progress output")
	}
}

func TestBar_ZeroTotalIsNoop(t *testing.T) {
	var buf bytes.Buffer
	b := &Bar{out: &buf}
	b.Start(0)
	b.Add(1)
	b.Finish()
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
