package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/yeojin-kim/docrag"
	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/retrieval"
)

// maxUploadBytes is the multipart body cap named in §6 (/upload: 413 above
// 100MB).
const maxUploadBytes = 100 << 20

// maxQuestionChars bounds /query's question field (§6: 413 above 8,000
// chars).
const maxQuestionChars = 8000

type handler struct {
	engine docrag.Engine
	cfg    docrag.Config
}

func newHandler(e docrag.Engine, cfg docrag.Config) *handler {
	return &handler{engine: e, cfg: cfg}
}

// POST /upload: multipart form field "file", returns the ingestion summary
// (§6).
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds 100MB limit")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field 'file'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading upload")
		slog.Error("reading upload", "error", err)
		return
	}

	result, err := h.engine.Ingest(ctx, data, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"chunks":               result.Chunks,
		"stored":               result.Stored,
		"tables":               result.Tables,
		"pages":                result.Pages,
		"image_caption_chunks": result.ImageCaptionChunks,
	})
}

// queryRequest is the shared /query and /query/{question} request shape
// (§6).
type queryRequest struct {
	Question     string        `json:"question"`
	MatchCount   int           `json:"match_count,omitempty"`
	History      []llm.Message `json:"history,omitempty"`
	MaxNewTokens int           `json:"max_new_tokens,omitempty"`
	Temperature  float64       `json:"temperature,omitempty"`
	TopP         float64       `json:"top_p,omitempty"`
}

// POST /query: JSON body per queryRequest.
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.answer(w, r, req)
}

// GET /query/{question}: path-encoded question, no history or overrides.
func (h *handler) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("question")
	question, err := url.PathUnescape(raw)
	if err != nil {
		question = raw
	}
	h.answer(w, r, queryRequest{Question: question})
}

func (h *handler) answer(w http.ResponseWriter, r *http.Request, req queryRequest) {
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionChars {
		writeError(w, http.StatusRequestEntityTooLarge, "question exceeds 8000 characters")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	ans, err := h.engine.Answer(ctx, req.Question, req.History, retrieval.Params{
		MatchCount:   req.MatchCount,
		MaxNewTokens: req.MaxNewTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "answering question failed")
		slog.Error("answer error", "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"mode":     "json",
		"answer":   ans.Text,
		"sources":  ans.Sources,
		"rag_mode": ans.RAGMode,
	})
}

// GET /health reports backend endpoints and the active ingestion/retrieval
// flags, per §6.
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"emb_url":            h.cfg.Embedding.BaseURL,
		"llm_url":            h.cfg.Chat.BaseURL,
		"storage":            h.cfg.DBPath,
		"fast_mode":          h.cfg.FastMode,
		"enable_table_index": h.cfg.EnableTableIndex,
		"render_pages":       h.cfg.RenderPages,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeIngestError maps the root error taxonomy (§7) to the status codes
// named in §6's /upload table: 400 for bad input, 415 for unsupported
// types, 500 for parse/insert failures.
func writeIngestError(w http.ResponseWriter, err error) {
	var inputErr *docrag.InputError
	var unsupportedErr *docrag.UnsupportedTypeError
	var parseErr *docrag.ParseError
	var ingestErr *docrag.IngestError

	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Error())
	case errors.As(err, &unsupportedErr):
		writeError(w, http.StatusUnsupportedMediaType, unsupportedErr.Error())
	case errors.As(err, &parseErr):
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("parsing failed: %s", parseErr.Error()))
		slog.Error("parse error", "error", err)
	case errors.As(err, &ingestErr):
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("ingestion failed: %s", ingestErr.Error()))
		slog.Error("ingest error", "error", err)
	default:
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "error", err)
	}
}
