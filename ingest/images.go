package ingest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/yeojin-kim/docrag/parser"
	"github.com/yeojin-kim/docrag/store"
)

// indexImages implements §4.6 step 5: move each picture into the uploads
// tree, optionally caption-embed it (same gating as tables), insert the
// Asset, and — whenever a caption embedding was computed — mirror it into
// a type=image_caption fragment so the caption participates in retrieval
// (invariant I4; the mirroring Open Question is resolved as "always" per
// SPEC_FULL.md). Returns the number of caption fragments inserted.
func (p *Pipeline) indexImages(ctx context.Context, pictures []parser.Picture, sha, storedPath string) (int, error) {
	mirrored := 0
	for i, pic := range pictures {
		imageURL := p.moveImage(pic.ImagePath, sha, i)

		var captionEmb []float32
		if pic.Caption != "" && !p.Opts.FastMode && (p.Opts.MaxCaptionPages == 0 || pic.Page <= p.Opts.MaxCaptionPages) {
			vecs, err := p.Embedder.Embed(ctx, []string{pic.Caption})
			if err != nil {
				return mirrored, &ingestError{"image_caption_embed", err}
			}
			captionEmb = vecs[0]
		}

		assetID, err := p.Store.InsertAsset(ctx, store.Asset{
			SHA256: sha, Filepath: storedPath, Page: pic.Page, Type: "image",
			ImageURL: imageURL, CaptionText: pic.Caption, CaptionEmb: captionEmb,
			Meta: map[string]string{"index": itoa(i)},
		})
		if err != nil {
			return mirrored, &ingestError{"image_asset_insert", err}
		}

		if captionEmb != nil {
			if _, err := p.Store.InsertFragment(ctx, pic.Caption, map[string]string{
				"type": "image_caption", "sha256": sha, "stored_path": storedPath,
				"asset_id": itoa64(assetID), "page": itoa(pic.Page),
			}, captionEmb); err != nil {
				return mirrored, &ingestError{"image_caption_fragment_insert", err}
			}
			mirrored++
		}
	}
	return mirrored, nil
}

// moveImage relocates a parser-produced temp image into
// uploads/{date-derived}/{sha}/pictures/{name}.jpg and returns its
// relative URL. Image relocation is best-effort: a failure here does not
// abort the ingestion, only skips the image's URL.
func (p *Pipeline) moveImage(tmpPath, sha string, index int) string {
	if tmpPath == "" {
		return ""
	}
	now := time.Now().UTC()
	destDir := filepath.Join(p.Opts.UploadsDir, now.Format("2006"), now.Format("01"), now.Format("02"), sha, "pictures")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ""
	}
	dest := filepath.Join(destDir, itoa(index)+".jpg")
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return ""
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return ""
	}
	return dest
}
