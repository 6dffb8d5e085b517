// Package retrieval implements Component C7: embedding the query,
// multi-slice retrieval against the vector store, calibrated confidence
// gating, intent classification, and prompt-regime dispatch.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/store"
)

// Config holds the thresholds and per-slice K values from §6.
type Config struct {
	RetrieveMin float64
	UseAsCtxMin float64
	MinTop3Avg  float64
	TextK       int
	TableK      int
	ImageK      int
	MaxCtxChars int

	MaxNewTokens int
	Temperature  float64
	TopP         float64

	// GeneratorModel is recorded on each query_log row; it has no effect on
	// generation itself (the provider carries its own configured model).
	GeneratorModel string
}

// DefaultConfig mirrors docrag.DefaultConfig's retrieval knobs so the
// package is usable standalone (e.g. in tests).
func DefaultConfig() Config {
	return Config{
		RetrieveMin: 0.35, UseAsCtxMin: 0.60, MinTop3Avg: 0.55,
		TextK: 5, TableK: 10, ImageK: 4, MaxCtxChars: 4000,
		MaxNewTokens: 600, Temperature: 0.2, TopP: 0.9,
	}
}

// Source is one retrieved fragment surfaced to the caller (§6 /query
// response shape).
type Source struct {
	Filename string  `json:"filename"`
	Page     int     `json:"page,omitempty"`
	Type     string  `json:"type"`
	Score    float64 `json:"score"`
}

// Answer is C7's output (§4.7).
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
	RAGMode string   `json:"rag_mode"` // smalltalk | rag-plain | rag-table | general
}

// Params overrides per-query generation settings (§6 /query request).
type Params struct {
	MatchCount   int
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

var textTypes = map[string]bool{"pdf": true, "text": true, "office": true, "hwpx": true, "hwp": true}
var tableTypes = map[string]bool{"table_row": true}
var imageTypes = map[string]bool{"image_caption": true}

// Core is the retrieval-and-routing engine. Embedder and Generator are the
// same llm.Provider interface used throughout, split into two fields so a
// caller can point them at different backends.
type Core struct {
	Store     *store.Store
	Embedder  llm.Provider
	Generator llm.Provider
	Cfg       Config
}

// New constructs a Core with defaults applied for a zero-value Config.
func New(st *store.Store, embedder, generator llm.Provider, cfg Config) *Core {
	if cfg.TextK == 0 {
		cfg = DefaultConfig()
	}
	return &Core{Store: st, Embedder: embedder, Generator: generator, Cfg: cfg}
}

// Answer implements §4.7 end to end: smalltalk shortcut, query embedding,
// three-slice retrieval, the confidence gate, prompt-regime selection and
// context composition, and generation.
func (c *Core) Answer(ctx context.Context, question string, history []llm.Message, params Params) (Answer, error) {
	traceID := uuid.NewString()
	slog.Info("query received", "trace_id", traceID, "question_len", len(question))

	if IsSmalltalk(question) {
		text, err := c.generate(ctx, []llm.Message{{Role: "system", Content: SystemSmalltalk}}, history, question, params)
		if err != nil {
			return Answer{}, err
		}
		ans := Answer{Text: text, RAGMode: "smalltalk"}
		c.logQuery(ctx, traceID, question, ans, 0)
		return ans, nil
	}

	vecs, err := c.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, err
	}
	q := vecs[0]

	k := func(configured int) int {
		if params.MatchCount > 0 {
			return params.MatchCount
		}
		return configured
	}

	retrieveMin := store.Threshold(c.Cfg.RetrieveMin)

	prose, err := c.Store.TopK(ctx, q, store.SearchOptions{K: k(c.Cfg.TextK), Threshold: retrieveMin, Types: textTypes})
	if err != nil {
		return Answer{}, err
	}
	tableRows, err := c.Store.TopK(ctx, q, store.SearchOptions{K: k(c.Cfg.TableK), Threshold: retrieveMin, Types: tableTypes})
	if err != nil {
		return Answer{}, err
	}
	images, err := c.Store.TopK(ctx, q, store.SearchOptions{K: k(c.Cfg.ImageK), Threshold: retrieveMin, Types: imageTypes})
	if err != nil {
		return Answer{}, err
	}

	union := append(append(append([]store.SearchResult{}, prose...), tableRows...), images...)
	maxSim, top3Avg := confidenceStats(union)

	if maxSim < c.Cfg.UseAsCtxMin && top3Avg < c.Cfg.MinTop3Avg {
		text, err := c.generate(ctx, []llm.Message{{Role: "system", Content: SystemGeneral}}, history, question, params)
		if err != nil {
			return Answer{}, err
		}
		ans := Answer{Text: text, RAGMode: "general"}
		c.logQuery(ctx, traceID, question, ans, maxSim)
		return ans, nil
	}

	subIntent, err := c.classify(ctx, question)
	if err != nil {
		subIntent = "plain"
	}

	system := SystemPlain
	ragMode := "rag-plain"
	if subIntent == "table" {
		system = SystemTable
		ragMode = "rag-table"
	}

	ctxText, sources := composeContext(union, c.Cfg.MaxCtxChars)

	messages := []llm.Message{{Role: "system", Content: system}}
	if ctxText != "" {
		messages = append(messages, llm.Message{Role: "system", Content: "Context:\n" + ctxText})
	}

	text, err := c.generate(ctx, messages, history, question, params)
	if err != nil {
		return Answer{}, err
	}
	if text == "" || isRefusal(text) {
		sources = nil
	}

	ans := Answer{Text: text, Sources: sources, RAGMode: ragMode}
	c.logQuery(ctx, traceID, question, ans, maxSim)
	return ans, nil
}

// logQuery records the query audit row, logging (not failing the request)
// on a write error.
func (c *Core) logQuery(ctx context.Context, traceID, question string, ans Answer, maxSim float64) {
	if c.Store == nil {
		return
	}
	if err := c.Store.LogQuery(ctx, traceID, question, ans.Text, maxSim, ans.Sources, ans.RAGMode, c.Cfg.GeneratorModel, 0); err != nil {
		slog.Warn("query_log insert failed", "trace_id", traceID, "error", err)
	}
}

// confidenceStats computes maxSim and top3Avg over the union of retrieval
// slices, per §4.7 step C: top3Avg is the mean of the three largest
// similarities across the union, 0 if fewer than three are present.
func confidenceStats(results []store.SearchResult) (maxSim, top3Avg float64) {
	if len(results) == 0 {
		return 0, 0
	}
	sims := make([]float64, len(results))
	for i, r := range results {
		sims[i] = r.Similarity
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))
	maxSim = sims[0]
	if len(sims) < 3 {
		return maxSim, 0
	}
	top3Avg = (sims[0] + sims[1] + sims[2]) / 3
	return maxSim, top3Avg
}

const (
	firstHalfChars = 800
	lastHalfChars  = 800
	trimThreshold  = firstHalfChars + lastHalfChars
)

// trimContent collapses the middle of content exceeding 1,600 chars to
// "first 800 + ... + last 800" (§4.7 step E).
func trimContent(content string) string {
	r := []rune(content)
	if len(r) <= trimThreshold {
		return content
	}
	return string(r[:firstHalfChars]) + "...\n" + string(r[len(r)-lastHalfChars:])
}

// composeContext iterates fragments in retrieval-ranked order, trims each,
// accumulates up to maxChars, and formats each as a <document> tag while
// building the parallel sources list.
func composeContext(results []store.SearchResult, maxChars int) (string, []Source) {
	var ctxText string
	var sources []Source
	used := 0
	for _, r := range results {
		trimmed := trimContent(r.Content)
		tag := formatDocument(r, trimmed)
		n := utf8.RuneCountInString(tag)
		if used+n > maxChars {
			break
		}
		used += n
		ctxText += tag
		sources = append(sources, Source{
			Filename: filename(r.Metadata),
			Page:     pageOf(r.Metadata),
			Type:     r.Metadata["type"],
			Score:    r.Similarity,
		})
	}
	return ctxText, sources
}

func formatDocument(r store.SearchResult, trimmed string) string {
	return fmt.Sprintf(`<document source="%s" page="%d" type="%s">%s</document>`,
		filename(r.Metadata), pageOf(r.Metadata), r.Metadata["type"], trimmed)
}

func filename(meta map[string]string) string {
	if fp := meta["stored_path"]; fp != "" {
		return filepath.Base(fp)
	}
	return meta["filepath"]
}

func pageOf(meta map[string]string) int {
	n, _ := strconv.Atoi(meta["page"])
	return n
}

// generate caps history to the 50 most recent turns, applies per-query
// overrides over Cfg defaults, and invokes the generation client.
func (c *Core) generate(ctx context.Context, systemMsgs, history []llm.Message, question string, params Params) (string, error) {
	const maxHistory = 50
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := append([]llm.Message{}, systemMsgs...)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: question})

	maxTokens := c.Cfg.MaxNewTokens
	if params.MaxNewTokens > 0 {
		maxTokens = params.MaxNewTokens
	}
	temp := c.Cfg.Temperature
	if params.Temperature > 0 {
		temp = params.Temperature
	}
	topP := c.Cfg.TopP
	if params.TopP > 0 {
		topP = params.TopP
	}

	resp, err := c.Generator.Stream(ctx, llm.ChatRequest{
		Messages: messages, MaxTokens: maxTokens, Temperature: temp, TopP: topP,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func isRefusal(text string) bool {
	switch text {
	case "모릅니다.", "모르겠습니다.", "I don't know.":
		return true
	}
	return false
}
