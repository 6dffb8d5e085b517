package ingest

import (
	"context"
	"strconv"

	"github.com/yeojin-kim/docrag/parser"
	"github.com/yeojin-kim/docrag/store"
	"github.com/yeojin-kim/docrag/textutil"
)

// indexTables implements §4.6 step 4: normalize each table via Algorithm T,
// optionally caption-embed it, insert the Asset + TableBody, mirror the
// caption embedding into a type=image_caption fragment (invariant I4, same
// as indexImages), then row-sentence-embed and fragment-insert up to
// MaxTableRowsEmb rows. Returns the table count and the number of row
// fragments inserted.
func (p *Pipeline) indexTables(ctx context.Context, tables []parser.Table, sha, storedPath string) (int, int, error) {
	totalRowFrags := 0
	for i, t := range tables {
		nt := textutil.NormalizeTable(textutil.TableSource{
			HTML:        t.HTML,
			Header:      t.Header,
			Rows:        t.Rows,
			PreviewRows: t.PreviewRows,
		})

		var captionEmb []float32
		if t.Caption != "" && !p.Opts.FastMode && (p.Opts.MaxCaptionPages == 0 || t.Page <= p.Opts.MaxCaptionPages) {
			vecs, err := p.Embedder.Embed(ctx, []string{t.Caption})
			if err != nil {
				return 0, totalRowFrags, &ingestError{"table_caption_embed", err}
			}
			captionEmb = vecs[0]
		}

		assetID, err := p.Store.InsertAsset(ctx, store.Asset{
			SHA256: sha, Filepath: storedPath, Page: t.Page, Type: "table",
			CaptionText: t.Caption, CaptionEmb: captionEmb,
			Meta: map[string]string{"index": itoa(i)},
		})
		if err != nil {
			return 0, totalRowFrags, &ingestError{"table_asset_insert", err}
		}

		if err := p.Store.InsertTableBody(ctx, store.TableBody{
			AssetID: assetID, NRows: nt.NRows, NCols: nt.NCols,
			TSV: nt.TSV, MD: nt.MD, HTML: nt.HTML,
		}); err != nil {
			return 0, totalRowFrags, &ingestError{"table_body_insert", err}
		}

		if captionEmb != nil {
			if _, err := p.Store.InsertFragment(ctx, t.Caption, map[string]string{
				"type": "image_caption", "sha256": sha, "stored_path": storedPath,
				"asset_id": itoa64(assetID), "page": itoa(t.Page),
			}, captionEmb); err != nil {
				return 0, totalRowFrags, &ingestError{"table_caption_fragment_insert", err}
			}
		}

		maxRows := p.Opts.MaxTableRowsEmb
		if p.Opts.FastMode {
			maxRows = 0
		}
		rows := nt.Rows
		if maxRows > 0 && len(rows) > maxRows {
			rows = rows[:maxRows]
		} else if maxRows == 0 {
			rows = nil
		}
		if len(rows) == 0 {
			continue
		}

		sentences := make([]string, len(rows))
		for j, row := range rows {
			sentences[j] = textutil.RowSentence(t.Caption, nt.Header, row)
		}
		vecs, err := p.Embedder.Embed(ctx, sentences)
		if err != nil {
			return 0, totalRowFrags, &ingestError{"table_row_embed", err}
		}

		err = fanOutInserts(ctx, p.Opts.Concurrency, len(rows), func(ctx context.Context, j int) error {
			_, err := p.Store.InsertFragment(ctx, sentences[j], map[string]string{
				"type": "table_row", "sha256": sha, "stored_path": storedPath,
				"asset_id": itoa64(assetID), "row_index": itoa(j), "page": itoa(t.Page),
			}, vecs[j])
			return err
		})
		if err != nil {
			return 0, totalRowFrags, &ingestError{"table_row_insert", err}
		}
		totalRowFrags += len(rows)
	}
	return len(tables), totalRowFrags, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
