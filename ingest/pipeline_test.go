package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yeojin-kim/docrag/chunker"
	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/parser"
	"github.com/yeojin-kim/docrag/store"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "ok"}, nil
}
func (f *fakeEmbedder) Stream(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "ok"}, nil
}
func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[i%f.dim] = 1
		out[i] = v
	}
	return out, nil
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dim := 8
	st, err := store.New(filepath.Join(t.TempDir(), "t.db"), dim)
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ck, err := chunker.New()
	if err != nil {
		t.Fatalf("chunker.New() error: %v", err)
	}

	return New(st, &fakeEmbedder{dim: dim}, parser.NewRegistry(), ck, Options{
		UploadsDir:       filepath.Join(t.TempDir(), "uploads"),
		EnableTableIndex: true,
		MaxTableRowsEmb:  10,
		MaxCaptionPages:  20,
	})
}

func TestIngestTxtFile(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.Ingest(ctx, []byte("RAG는 검색 증강 생성 기법이다."), "a.txt", "text/plain")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Chunks != 1 {
		t.Fatalf("Ingest() chunks = %d, want 1", res.Chunks)
	}
	if res.Tables != 0 {
		t.Fatalf("Ingest() tables = %d, want 0", res.Tables)
	}

	results, err := p.Store.TopK(ctx, []float32{1, 0, 0, 0, 0, 0, 0, 0}, store.SearchOptions{K: 5, Threshold: store.Threshold(0)})
	if err != nil {
		t.Fatalf("TopK() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("TopK() = %d results, want 1", len(results))
	}
	if results[0].Metadata["sha256"] != res.SHA256 {
		t.Fatalf("fragment sha256 = %q, want %q", results[0].Metadata["sha256"], res.SHA256)
	}
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Ingest(context.Background(), nil, "a.txt", "text/plain"); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestIngestRejectsImageOnly(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Ingest(context.Background(), []byte{0xff, 0xd8}, "a.jpg", "image/jpeg"); err == nil {
		t.Fatal("expected error for image-only upload")
	}
}

func TestIngestSkipsRenderingForNonPDF(t *testing.T) {
	p := newTestPipeline(t)
	p.Opts.RenderPages = true

	res, err := p.Ingest(context.Background(), []byte("plain text, no pdf here"), "notes.txt", "text/plain")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Pages != 0 {
		t.Fatalf("Pages = %d, want 0 for a non-PDF upload even with RenderPages set", res.Pages)
	}
}

func TestIngestPersistsOriginalUnderUploadsDir(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Ingest(context.Background(), []byte("hello world"), "notes.txt", "text/plain")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	full := filepath.Join(p.Opts.UploadsDir, res.StoredPath)
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("stat(%s) error: %v", full, err)
	}
}
