// Package ingest implements Component C6: orchestrating the parser bridge,
// chunker, embedding client, and vector store for one uploaded file, with
// bounded concurrency and atomic per-fragment commits.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeojin-kim/docrag/chunker"
	"github.com/yeojin-kim/docrag/llm"
	"github.com/yeojin-kim/docrag/parser"
	"github.com/yeojin-kim/docrag/store"
	"github.com/yeojin-kim/docrag/textutil"
)

// Options configures the pipeline's knobs, mirroring the §6 configuration
// keys that affect ingestion.
type Options struct {
	UploadsDir string

	ChunkMaxTokens int
	ChunkOverlap   int
	MaxChunksEmb   int
	FastMode       bool

	EnableTableIndex bool
	MaxTableRowsEmb  int
	MaxCaptionPages  int
	RenderPages      bool

	HWP2TxtExe string

	// Concurrency bounds the number of fragment inserts that run in
	// parallel for one ingestion (§4.6, §5: default 8).
	Concurrency int
}

// Result is the per-upload summary returned to the HTTP surface (§6).
type Result struct {
	Chunks             int
	Tables             int
	Pages              int
	ImageCaptionChunks int
	StoredPath         string
	SHA256             string
}

// Pipeline wires the parser registry, chunker, embedding provider, and
// vector store together for one file at a time.
type Pipeline struct {
	Store    *store.Store
	Embedder llm.Provider
	Parsers  *parser.Registry
	Chunker  *chunker.Chunker
	Opts     Options
}

// New constructs a Pipeline, applying default knobs where the caller left
// zero values.
func New(st *store.Store, embedder llm.Provider, parsers *parser.Registry, ck *chunker.Chunker, opts Options) *Pipeline {
	if opts.ChunkMaxTokens <= 0 {
		opts.ChunkMaxTokens = chunker.DefaultMaxTokens
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = chunker.DefaultOverlap
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Pipeline{Store: st, Embedder: embedder, Parsers: parsers, Chunker: ck, Opts: opts}
}

var safeNamePattern = regexp.MustCompile(`[^\w.\-가-힣]`)

func safeName(name string) string {
	s := safeNamePattern.ReplaceAllString(name, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "file"
	}
	return s
}

// Ingest runs the full orchestration for one uploaded file: persist the
// original, dispatch to the right extractor, index tables and pictures
// (when enabled), chunk and embed prose, and atomically commit every
// fragment. A failure in any fragment insert aborts the remaining inserts
// for this ingestion and surfaces IngestError; fragments already committed
// remain indexed (§4.6, §5).
func (p *Pipeline) Ingest(ctx context.Context, fileBytes []byte, originalName, mime string) (Result, error) {
	traceID := uuid.NewString()
	slog.Info("ingest started", "trace_id", traceID, "filename", originalName, "bytes", len(fileBytes))

	if len(fileBytes) == 0 {
		return Result{}, &inputError{"empty file"}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if ext == "" {
		return Result{}, &inputError{"missing file extension"}
	}
	if isImageExt(ext) {
		return Result{}, &inputError{"image-only upload is out of scope"}
	}

	sum := sha256.Sum256(fileBytes)
	sha := hex.EncodeToString(sum[:])
	storedPath, absPath, err := p.persistOriginal(fileBytes, originalName, sha)
	if err != nil {
		return Result{}, &ingestError{"persist", err}
	}

	res := Result{StoredPath: storedPath, SHA256: sha}

	text, tables, pictures, numPages, err := p.extract(ctx, absPath, ext)
	if err != nil {
		return res, err
	}
	text = textutil.CleanText(text)

	fragType := fragmentTypeForExt(ext)

	if p.Opts.RenderPages && ext == "pdf" && numPages > 0 {
		// Best-effort substage (§4.6 step 3, §5 error policy): a rendering
		// failure is logged and ingestion continues.
		n, err := p.renderPages(absPath, sha)
		if err != nil {
			slog.Warn("page rendering failed", "trace_id", traceID, "path", absPath, "error", err)
		} else {
			res.Pages = n
		}
	}

	if p.Opts.EnableTableIndex && len(tables) > 0 {
		n, rowFrags, err := p.indexTables(ctx, tables, sha, storedPath)
		if err != nil {
			return res, err
		}
		res.Tables = n
		res.Chunks += rowFrags
	}

	if len(pictures) > 0 {
		n, err := p.indexImages(ctx, pictures, sha, storedPath)
		if err != nil {
			return res, err
		}
		res.ImageCaptionChunks = n
	}

	chunkCount, err := p.indexProse(ctx, text, fragType, sha, storedPath)
	if err != nil {
		return res, err
	}
	res.Chunks += chunkCount

	slog.Info("ingest finished", "trace_id", traceID, "stored", storedPath,
		"chunks", res.Chunks, "tables", res.Tables, "image_caption_chunks", res.ImageCaptionChunks)
	return res, nil
}

func (p *Pipeline) extract(ctx context.Context, absPath, ext string) (string, []parser.Table, []parser.Picture, int, error) {
	switch ext {
	case "pdf", "docx", "xlsx", "pptx", "doc", "xls", "ppt":
		pr, err := p.Parsers.Get(ext)
		if err != nil {
			return "", nil, nil, 0, &inputError{fmt.Sprintf("unsupported extension: %s", ext)}
		}
		result, err := pr.Parse(ctx, absPath)
		if err != nil {
			return "", nil, nil, 0, &parseError{absPath, err}
		}
		return result.Text, result.Tables, result.Pictures, result.NumPages, nil
	case "txt", "md":
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return "", nil, nil, 0, &parseError{absPath, err}
		}
		return textutil.DecodeText(raw), nil, nil, 0, nil
	case "hwpx":
		hr, err := textutil.ExtractHWPX(absPath)
		if err != nil {
			return "", nil, nil, 0, &parseError{absPath, err}
		}
		var tables []parser.Table
		for i := 0; i < hr.TableCount; i++ {
			tables = append(tables, parser.Table{Source: "hwpx"})
		}
		return hr.Text, tables, nil, 0, nil
	case "hwp":
		if p.Opts.HWP2TxtExe == "" {
			return "", nil, nil, 0, &unsupportedTypeError{ext}
		}
		out, err := exec.CommandContext(ctx, p.Opts.HWP2TxtExe, absPath).Output()
		if err != nil {
			return "", nil, nil, 0, &parseError{absPath, err}
		}
		return textutil.DecodeText(out), nil, nil, 0, nil
	default:
		return "", nil, nil, 0, &inputError{fmt.Sprintf("unsupported extension: %s", ext)}
	}
}

func fragmentTypeForExt(ext string) string {
	switch ext {
	case "pdf":
		return "pdf"
	case "docx", "pptx", "xlsx", "doc", "xls", "ppt":
		return "office"
	case "hwp":
		return "hwp"
	case "hwpx":
		return "hwpx"
	default:
		return "text"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case "png", "jpg", "jpeg", "gif", "bmp", "webp":
		return true
	}
	return false
}

func (p *Pipeline) persistOriginal(data []byte, originalName, sha string) (rel, abs string, err error) {
	now := time.Now().UTC()
	datePart := filepath.Join(strconv.Itoa(now.Year()), fmt.Sprintf("%02d", now.Month()), fmt.Sprintf("%02d", now.Day()))
	fname := fmt.Sprintf("%s_%d_%s", sha[:8], now.UnixMilli(), safeName(originalName))
	rel = filepath.Join(datePart, fname)
	abs = filepath.Join(p.Opts.UploadsDir, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", "", err
	}
	return rel, abs, nil
}

// fanOutInserts runs insert() for each item in items with a bounded
// concurrency cap, aborting the remaining inserts on the first error
// (§4.6's concurrency model). Items already committed by the time of the
// failure remain indexed.
func fanOutInserts(ctx context.Context, concurrency int, n int, insert func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < n; i++ {
		select {
		case <-cctx.Done():
			break
		default:
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if cctx.Err() != nil {
				return
			}
			if err := insert(cctx, i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}
