package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/store"
)

type fakeProvider struct {
	dim         int
	chatReply   string
	streamReply string
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.chatReply}, nil
}
func (f *fakeProvider) Stream(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.streamReply}, nil
}
func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func newTestCore(t *testing.T, gen *fakeProvider) (*Core, *store.Store) {
	t.Helper()
	dim := 4
	st, err := store.New(filepath.Join(t.TempDir(), "t.db"), dim)
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	emb := &fakeProvider{dim: dim}
	return New(st, emb, gen, DefaultConfig()), st
}

func TestSmalltalkBypassesRetrieval(t *testing.T) {
	core, st := newTestCore(t, &fakeProvider{streamReply: "hi there!"})
	ctx := context.Background()

	if _, err := st.InsertFragment(ctx, "irrelevant", map[string]string{"type": "text"}, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("InsertFragment() error: %v", err)
	}

	ans, err := core.Answer(ctx, "안녕", nil, Params{})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if ans.RAGMode != "smalltalk" {
		t.Fatalf("RAGMode = %q, want smalltalk (P11)", ans.RAGMode)
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("Sources = %v, want empty for smalltalk", ans.Sources)
	}
}

func TestLowConfidenceRoutesGeneral(t *testing.T) {
	core, st := newTestCore(t, &fakeProvider{streamReply: "I don't know specifics."})
	ctx := context.Background()

	// Orthogonal fragment: its cosine similarity to the query embedding (e1)
	// is 0, below RetrieveMin, so the union is empty and the gate fails (P10).
	if _, err := st.InsertFragment(ctx, "unrelated", map[string]string{"type": "text"}, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("InsertFragment() error: %v", err)
	}

	ans, err := core.Answer(ctx, "what is the revenue figure?", nil, Params{})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if ans.RAGMode == "rag-plain" || ans.RAGMode == "rag-table" {
		t.Fatalf("RAGMode = %q, want general/smalltalk under low confidence (P10)", ans.RAGMode)
	}
}

func TestHighConfidenceRoutesDocumentMode(t *testing.T) {
	core, st := newTestCore(t, &fakeProvider{chatReply: "plain", streamReply: "The answer is 42."})
	ctx := context.Background()

	if _, err := st.InsertFragment(ctx, "the answer is 42", map[string]string{
		"type": "pdf", "stored_path": "a.pdf",
	}, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("InsertFragment() error: %v", err)
	}

	ans, err := core.Answer(ctx, "what is the answer?", nil, Params{})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if ans.RAGMode != "rag-plain" {
		t.Fatalf("RAGMode = %q, want rag-plain", ans.RAGMode)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Filename != "a.pdf" {
		t.Fatalf("Sources = %+v, want one source from a.pdf", ans.Sources)
	}
}

func TestTrimContentCollapsesMiddle(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	got := trimContent(string(long))
	if len(got) != firstHalfChars+len("...\n")+lastHalfChars {
		t.Fatalf("trimContent() length = %d", len(got))
	}
}

func TestTrimContentLeavesShortContentAlone(t *testing.T) {
	s := "short content"
	if trimContent(s) != s {
		t.Fatalf("trimContent() modified short content")
	}
}

func TestAnswerWritesQueryLogWithTraceID(t *testing.T) {
	core, st := newTestCore(t, &fakeProvider{streamReply: "hi there!"})
	ctx := context.Background()

	if _, err := core.Answer(ctx, "안녕", nil, Params{}); err != nil {
		t.Fatalf("Answer() error: %v", err)
	}

	var traceID, question string
	row := st.DB().QueryRowContext(ctx, `SELECT trace_id, question FROM query_log ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&traceID, &question); err != nil {
		t.Fatalf("scanning query_log row: %v", err)
	}
	if traceID == "" {
		t.Fatalf("trace_id = %q, want non-empty", traceID)
	}
	if question != "안녕" {
		t.Fatalf("question = %q, want 안녕", question)
	}
}
