package ingest

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// renderPages implements §4.6 step 3: rasterize each page of a PDF at a
// fixed DPI and store the images under uploads/{sha}/pages/. It is a
// best-effort substage — callers log and continue on error rather than
// failing the ingestion (§5).
func (p *Pipeline) renderPages(absPath, sha string) (int, error) {
	doc, err := fitz.New(absPath)
	if err != nil {
		return 0, fmt.Errorf("opening pdf for rendering: %w", err)
	}
	defer doc.Close()

	dir := filepath.Join(p.Opts.UploadsDir, sha, "pages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating pages dir: %w", err)
	}

	n := doc.NumPage()
	rendered := 0
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, renderDPI)
		if err != nil {
			continue
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("page-%03d.png", i+1)))
		if err != nil {
			continue
		}
		err = png.Encode(f, img)
		f.Close()
		if err != nil {
			continue
		}
		rendered++
	}
	return rendered, nil
}

// renderDPI is the fixed rasterization resolution named in §4.6 step 3.
const renderDPI = 150.0
