// Package textutil implements Component C8: Unicode/ligature cleanup,
// number normalization, row-to-sentence synthesis, and table-metadata
// normalization (Algorithm T), plus the HWPX traversal used by the
// ingestion pipeline for text extraction without the parser bridge.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

var ligatures = map[rune]string{
	'ﬀ': "ff",
	'ﬁ': "fi",
	'ﬂ': "fl",
	'ﬃ': "ffi",
	'ﬄ': "ffl",
	'‘': "'",
	'’': "'",
	'“': "\"",
	'”': "\"",
	'–': "-",
	'—': "-",
	' ': " ",
}

// CleanText normalizes ligatures and smart punctuation, collapses runs of
// whitespace (preserving paragraph breaks), and trims the result. It is
// applied to every document's extracted prose before chunking.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := ligatures[r]; ok {
			b.WriteString(rep)
			continue
		}
		if r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	s = strings.Join(lines, "\n")

	// Collapse runs of two or more blank lines to a single paragraph break.
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

func collapseSpaces(line string) string {
	return strings.TrimRight(spaceRun.ReplaceAllString(line, " "), " ")
}

// numberPattern captures a leading signed/decimal/grouped numeral and a
// trailing unit or percent sign, e.g. "1,234.5kg" -> ("1,234.5", "kg").
var numberPattern = regexp.MustCompile(`^([\d.,+-]+)\s*([A-Za-z%]*)$`)

// NormalizedCell is the per-row-cell sidecar described in §4.5: a cell is
// parsed into an optional numeric value, an optional unit, and the raw
// source text.
type NormalizedCell struct {
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
	Raw   string   `json:"raw"`
}

// NormalizeCell parses one table cell against numberPattern, stripping
// thousands separators before parsing the numeral.
func NormalizeCell(raw string) NormalizedCell {
	trimmed := strings.TrimSpace(raw)
	nc := NormalizedCell{Raw: raw}
	m := numberPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nc
	}
	numeric := strings.ReplaceAll(m[1], ",", "")
	if v, err := strconv.ParseFloat(numeric, 64); err == nil {
		nc.Value = &v
		nc.Unit = m[2]
	}
	return nc
}

// RowSentence deterministically renders a table row as the content string
// of a type=table_row fragment (spec §4.5, invariant I5 / property P9):
// "Table: {caption} | H1=v1; H2=v2; ..."
func RowSentence(caption string, headers []string, row []string) string {
	var pairs []string
	for i, cell := range row {
		h := columnHeader(headers, i)
		pairs = append(pairs, h+"="+strings.TrimSpace(cell))
	}
	return "Table: " + caption + " | " + strings.Join(pairs, "; ")
}

func columnHeader(headers []string, i int) string {
	if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
		return strings.TrimSpace(headers[i])
	}
	return syntheticHeader(i)
}

func syntheticHeader(i int) string {
	return "col_" + strconv.Itoa(i+1)
}
