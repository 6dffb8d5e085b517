// Package docrag is a retrieval-augmented-generation engine for enterprise
// document question answering: it ingests PDF/Office/text/HWP/HWPX
// documents into a normalized-vector index and answers natural-language
// questions by retrieving the closest fragments and grounding a language
// model's answer in them.
package docrag

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeojin-kim/docrag/chunker"
	"github.com/yeojin-kim/docrag/ingest"
	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/parser"
	"github.com/yeojin-kim/docrag/retrieval"
	"github.com/yeojin-kim/docrag/store"
)

// UploadResult is the full ingestion summary (§6 /upload response).
type UploadResult struct {
	Chunks             int    `json:"chunks"`
	Stored             string `json:"stored"`
	Tables             int    `json:"tables"`
	Pages              int    `json:"pages"`
	ImageCaptionChunks int    `json:"image_caption_chunks"`
}

// Engine is the docrag facade: Ingest for uploads, Answer for queries.
type Engine interface {
	Ingest(ctx context.Context, fileBytes []byte, originalName, mime string) (UploadResult, error)
	Answer(ctx context.Context, question string, history []llm.Message, params retrieval.Params) (retrieval.Answer, error)
	Store() *store.Store
	Close() error
}

type engine struct {
	cfg      Config
	store    *store.Store
	pipeline *ingest.Pipeline
	core     *retrieval.Core
}

// New wires a complete Engine from Config: the durable store, both LLM
// providers, the parser registry, the chunker, the ingestion pipeline, and
// the retrieval core.
func New(cfg Config) (Engine, error) {
	st, err := store.New(cfg.DBPath, EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("docrag: opening store: %w", err)
	}

	embedder, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("docrag: embedding provider: %w", err)
	}
	generator, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("docrag: generation provider: %w", err)
	}

	ck, err := chunker.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("docrag: chunker: %w", err)
	}

	pipeline := ingest.New(st, embedder, parser.NewRegistry(), ck, ingest.Options{
		UploadsDir:       cfg.UploadsDir,
		ChunkMaxTokens:   cfg.ChunkSizeTokens,
		ChunkOverlap:     cfg.ChunkOverlapTokens,
		MaxChunksEmb:     cfg.MaxChunksEmb,
		FastMode:         cfg.FastMode,
		EnableTableIndex: cfg.EnableTableIndex,
		MaxTableRowsEmb:  cfg.MaxTableRowsEmb,
		MaxCaptionPages:  cfg.MaxCaptionPages,
		RenderPages:      cfg.RenderPages,
		HWP2TxtExe:       cfg.HWP2TxtExe,
	})

	core := retrieval.New(st, embedder, generator, retrieval.Config{
		RetrieveMin: cfg.RetrieveMin, UseAsCtxMin: cfg.UseAsCtxMin, MinTop3Avg: cfg.MinTop3Avg,
		TextK: cfg.TextK, TableK: cfg.TableK, ImageK: cfg.ImageK, MaxCtxChars: cfg.MaxCtxChars,
		MaxNewTokens: cfg.MaxNewTokens, Temperature: cfg.Temperature, TopP: cfg.TopP,
		GeneratorModel: cfg.Chat.Model,
	})

	return &engine{cfg: cfg, store: st, pipeline: pipeline, core: core}, nil
}

func (e *engine) Ingest(ctx context.Context, fileBytes []byte, originalName, mime string) (UploadResult, error) {
	res, err := e.pipeline.Ingest(ctx, fileBytes, originalName, mime)
	if err != nil {
		return UploadResult{}, wrapIngestErr(err)
	}
	return UploadResult{
		Chunks: res.Chunks, Stored: res.StoredPath, Tables: res.Tables,
		Pages: res.Pages, ImageCaptionChunks: res.ImageCaptionChunks,
	}, nil
}

func (e *engine) Answer(ctx context.Context, question string, history []llm.Message, params retrieval.Params) (retrieval.Answer, error) {
	return e.core.Answer(ctx, question, history, params)
}

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) Close() error { return e.store.Close() }

// wrapIngestErr translates the ingest package's local error types into the
// root taxonomy (§7) so callers only need to know about one set of
// exported error types.
func wrapIngestErr(err error) error {
	switch e := err.(type) {
	case *ingest.InputError:
		return &InputError{Reason: e.Reason()}
	case *ingest.ParseError:
		return &ParseError{Path: e.Path(), Err: e.Unwrap()}
	case *ingest.UnsupportedTypeError:
		return &UnsupportedTypeError{Ext: e.Ext()}
	case *ingest.IngestError:
		inner := e.Unwrap()
		var se *store.InsertError
		if errors.As(inner, &se) {
			inner = &InsertError{Stage: se.Stage, Err: se.Err}
		}
		return &IngestError{Stage: e.Stage(), Err: inner}
	default:
		return err
	}
}
