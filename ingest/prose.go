package ingest

import (
	"context"
)

// indexProse implements §4.6 step 6: chunk the cleaned text, apply the
// FAST_MODE/MAX_CHUNKS_EMB caps, batch-embed every chunk in one request,
// and fan out the fragment inserts with a bounded concurrency cap.
func (p *Pipeline) indexProse(ctx context.Context, text, fragType, sha, storedPath string) (int, error) {
	if text == "" {
		return 0, nil
	}

	spans, err := p.Chunker.Chunk(text, p.Opts.ChunkMaxTokens, p.Opts.ChunkOverlap)
	if err != nil {
		return 0, &ingestError{"chunk", err}
	}
	if len(spans) == 0 {
		return 0, nil
	}

	if p.Opts.FastMode && len(spans) > 24 {
		spans = spans[:24]
	} else if p.Opts.MaxChunksEmb > 0 && len(spans) > p.Opts.MaxChunksEmb {
		spans = spans[:p.Opts.MaxChunksEmb]
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	vecs, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, &ingestError{"prose_embed", err}
	}
	if len(vecs) != len(texts) {
		return 0, &ingestError{"prose_embed", errShape}
	}

	err = fanOutInserts(ctx, p.Opts.Concurrency, len(spans), func(ctx context.Context, i int) error {
		_, ierr := p.Store.InsertFragment(ctx, spans[i].Text, map[string]string{
			"type": fragType, "sha256": sha, "stored_path": storedPath,
			"chunk_index": itoa(i), "startTok": itoa(spans[i].StartTok), "endTok": itoa(spans[i].EndTok),
		}, vecs[i])
		return ierr
	})
	if err != nil {
		return 0, &ingestError{"prose_fragment_insert", err}
	}
	return len(spans), nil
}

var errShape = shapeErr{}

type shapeErr struct{}

func (shapeErr) Error() string { return "embedding response cardinality does not match request" }
