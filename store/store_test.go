package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

const testDim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), testDim)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertFragmentNormalizesEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertFragment(ctx, "hello", map[string]string{"type": "text"}, []float32{3, 0, 0, 0})
	if err != nil {
		t.Fatalf("InsertFragment() error: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertFragment() returned id 0")
	}

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	s.mu.RLock()
	entry := s.index[0]
	s.mu.RUnlock()

	norm := 0.0
	for _, v := range entry.Embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("embedding norm = %v, want ~1 (P1)", norm)
	}
}

func TestInsertFragmentRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{K: 10, Threshold: Threshold(0)})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	sizeBefore := len(before)

	_, err = s.InsertFragment(ctx, "x", nil, []float32{0.1, 0.2, 0.3})
	if err == nil {
		t.Fatal("expected InsertFragment to fail on dimension mismatch (P2)")
	}

	after, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{K: 10, Threshold: Threshold(0)})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	if len(after) != sizeBefore {
		t.Fatalf("store size changed after failed insert: %d -> %d (P3)", sizeBefore, len(after))
	}
}

func TestTopKOrderingAndThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 1, 0, 0},
	}
	for i, v := range vectors {
		if _, err := s.InsertFragment(ctx, "doc", map[string]string{"type": "text"}, v); err != nil {
			t.Fatalf("InsertFragment(%d) error: %v", i, err)
		}
	}

	results, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{K: 5, Threshold: Threshold(0.5)})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not non-increasing (P4): %v", results)
		}
	}
	for _, r := range results {
		if r.Similarity < 0.5 {
			t.Fatalf("result below threshold (P6): %+v", r)
		}
	}
}

func TestTopKFilterSoundness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	types := []string{"pdf", "table_row", "image_caption"}
	for _, ty := range types {
		if _, err := s.InsertFragment(ctx, ty+" content", map[string]string{"type": ty}, []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("InsertFragment(%s) error: %v", ty, err)
		}
	}

	results, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{
		K: 10, Threshold: Threshold(0), Types: map[string]bool{"table_row": true},
	})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("TopK() returned %d results, want 1", len(results))
	}
	for _, r := range results {
		if r.Metadata["type"] != "table_row" {
			t.Fatalf("result metadata type = %q, want table_row (P5)", r.Metadata["type"])
		}
	}
}

func TestTopKThresholdBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// cos(theta) just under and just over 0.7 relative to (1,0,0,0).
	under := float32(math.Cos(0.7954)) // ~0.6999
	over := float32(math.Cos(0.7951))  // ~0.7002
	sinUnder := float32(math.Sin(0.7954))
	sinOver := float32(math.Sin(0.7951))

	if _, err := s.InsertFragment(ctx, "under", nil, []float32{under, sinUnder, 0, 0}); err != nil {
		t.Fatalf("InsertFragment(under) error: %v", err)
	}
	if _, err := s.InsertFragment(ctx, "over", nil, []float32{over, sinOver, 0, 0}); err != nil {
		t.Fatalf("InsertFragment(over) error: %v", err)
	}

	results, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{K: 5, Threshold: Threshold(0.7)})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	if len(results) != 1 || results[0].Content != "over" {
		t.Fatalf("TopK() = %+v, want exactly the over-threshold fragment", results)
	}
}

// TestTopKExplicitZeroThresholdDisablesFiltering guards against silently
// treating Threshold: Threshold(0) as "unset" — spec.md §8 scenario 4
// calls top_k with a literal threshold of 0, expecting no filtering, and
// a fragment whose similarity is well below DefaultThreshold must still
// be returned.
func TestTopKExplicitZeroThresholdDisablesFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Orthogonal to the query vector: similarity 0, far below
	// DefaultThreshold (0.7).
	if _, err := s.InsertFragment(ctx, "orthogonal", map[string]string{"type": "table_row"}, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("InsertFragment() error: %v", err)
	}

	results, err := s.TopK(ctx, []float32{1, 0, 0, 0}, SearchOptions{
		K: 10, Threshold: Threshold(0), Types: map[string]bool{"table_row": true},
	})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("TopK() with explicit zero threshold returned %d results, want 1 (low-similarity fragment must not be filtered)", len(results))
	}
}

func TestInsertAssetNormalizesCaptionEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertAsset(ctx, Asset{
		SHA256: "abc", Filepath: "f.png", Type: "image",
		CaptionText: "a cat", CaptionEmb: []float32{0, 2, 0, 0},
	})
	if err != nil {
		t.Fatalf("InsertAsset() error: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertAsset() returned id 0")
	}
}
