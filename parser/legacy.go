package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// LegacyParser handles pre-2007 binary Office formats (doc/xls/ppt) by
// walking their OLE compound-file structure and scraping printable text runs
// out of the relevant streams. This is a best-effort extraction: the binary
// formats interleave text with piece tables and formatting records that a
// full parser would need a complete binary-format implementation to resolve
// correctly, so what we recover is unstructured prose with no page/table
// boundaries.
type LegacyParser struct{}

func (p *LegacyParser) SupportedFormats() []string { return []string{"doc", "xls", "ppt"} }

var legacyStreamNames = map[string]bool{
	"worddocument":      true,
	"powerpoint document": true,
	"workbook":          true,
	"book":              true,
}

func (p *LegacyParser) Parse(ctx context.Context, path string) (*Result, error) {
	f, err := openCFB(path)
	if err != nil {
		return nil, fmt.Errorf("opening legacy Office file: %w", err)
	}

	var text strings.Builder
	for entry, err := f.Next(); err == nil; entry, err = f.Next() {
		name := strings.ToLower(entry.Name)
		if !legacyStreamNames[name] {
			continue
		}

		buf := make([]byte, entry.Size)
		n, _ := f.Read(buf)
		buf = buf[:n]

		if run := scrapeUTF16Text(buf); run != "" {
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString(run)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("no recoverable text found in legacy Office file")
	}

	return &Result{
		Text:   text.String(),
		Engine: "native:legacy",
	}, nil
}

// scrapeUTF16Text scans a binary stream for runs of printable UTF-16LE
// characters at least minRunLen long and joins them with newlines. Legacy
// Word/PowerPoint/Excel streams store most user text as UTF-16LE, so long
// printable runs are a reasonable (if lossy) proxy for prose content.
func scrapeUTF16Text(buf []byte) string {
	const minRunLen = 8

	var out strings.Builder
	var run []uint16

	flush := func() {
		if len(run) < minRunLen {
			run = run[:0]
			return
		}
		decoded := utf16.Decode(run)
		if out.Len() > 0 {
			out.WriteRune('\n')
		}
		out.WriteString(strings.TrimSpace(string(decoded)))
		run = run[:0]
	}

	for i := 0; i+1 < len(buf); i += 2 {
		u := uint16(buf[i]) | uint16(buf[i+1])<<8
		r := rune(u)
		if u == 0 || unicode.IsControl(r) {
			if u == uint16('\n') || u == uint16('\r') {
				// treat as a soft break inside the run, not a terminator
				run = append(run, u)
				continue
			}
			flush()
			continue
		}
		if unicode.IsPrint(r) {
			run = append(run, u)
		} else {
			flush()
		}
	}
	flush()

	return out.String()
}

func openCFB(path string) (*mscfb.Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return mscfb.New(file)
}
