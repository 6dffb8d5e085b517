// Package parser extracts {text, tables, pictures} from binary source
// documents. Extraction is done with native Go libraries (ledongthuc/pdf,
// excelize, mscfb) rather than by shelling out to an external tool; the
// Parser interface is the boundary that stands in for what would otherwise
// be a subprocess bridge. See DESIGN.md for the rationale.
package parser

import "context"

// Picture is an image extracted from a source document.
type Picture struct {
	Page      int
	Caption   string
	ImagePath string // path to a temp file holding the image bytes
	Source    string // parser that produced it, e.g. "pdf", "docx"
}

// Table is a table extracted from a source document, in one of several
// equally valid shapes depending on what the source parser could recover.
// Usually only one of HTML, (Header+Rows), or PreviewRows is populated;
// textutil.NormalizeTable reconciles whichever is present.
type Table struct {
	Page        int
	Caption     string
	HTML        string
	Header      []string
	Rows        [][]string
	PreviewRows [][]string
	NRows       int
	NCols       int
	ImagePath   string
	Source      string
}

// Result is what a Parser produces from one document file.
type Result struct {
	Text     string // UTF-8 prose; may be empty
	Tables   []Table
	Pictures []Picture
	Engine   string // "native:pdf", "native:docx", "native:xlsx", "native:pptx", "native:legacy"
	NumPages int    // source page count, when the format has one (pdf); 0 otherwise
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*Result, error)
	SupportedFormats() []string
}
