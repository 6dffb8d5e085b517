package chunker

import (
	"strings"
	"testing"
)

func TestChunkRejectsOverlapNotLessThanMax(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := c.Chunk("hello world", 10, 10); err == nil {
		t.Fatal("expected error when overlap >= max_tokens")
	}
}

func TestChunkEmptyText(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	spans, err := c.Chunk("   ", 800, 120)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("Chunk() = %d spans, want 0", len(spans))
	}
}

func TestChunkCoversWholeText(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 100)
	spans, err := c.Chunk(text, 40, 8)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans for long text, got %d", len(spans))
	}
	if spans[0].StartTok != 0 {
		t.Fatalf("first span StartTok = %d, want 0", spans[0].StartTok)
	}
	last := spans[len(spans)-1]
	totalTokens := c.CountTokens(text)
	if last.EndTok != totalTokens {
		t.Fatalf("last span EndTok = %d, want %d (full coverage)", last.EndTok, totalTokens)
	}
	// Property P8: every span start strictly advances.
	for i := 1; i < len(spans); i++ {
		if spans[i].StartTok <= spans[i-1].StartTok {
			t.Fatalf("span %d does not advance: %d <= %d", i, spans[i].StartTok, spans[i-1].StartTok)
		}
	}
}

func TestChunkSmallTextSingleSpan(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	spans, err := c.Chunk("a short document.", 800, 120)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("Chunk() = %d spans, want 1", len(spans))
	}
}
