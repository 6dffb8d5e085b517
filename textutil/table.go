package textutil

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// NormalizedTable is the reconciled shape Algorithm T produces from
// whatever a table extractor could recover: raw HTML, header+rows, or
// preview rows only.
type NormalizedTable struct {
	Header []string
	Rows   [][]string
	TSV    string
	MD     string
	HTML   string
	NRows  int
	NCols  int
}

// TableSource is the subset of parser.Table that Algorithm T needs. It is
// declared locally so textutil does not import the parser package.
type TableSource struct {
	HTML        string
	TextAsHTML  string
	Header      []string
	Rows        [][]string
	PreviewRows [][]string
}

const markdownRowCap = 30

// NormalizeTable implements Algorithm T (§4.6 step 4.1): prefer HTML if
// present, else explicit header/rows, else preview rows, synthesizing
// whatever is missing and deriving TSV/Markdown/HTML in every case.
func NormalizeTable(t TableSource) NormalizedTable {
	switch {
	case t.HTML != "":
		return fromHTML(t.HTML)
	case t.TextAsHTML != "":
		return fromHTML(t.TextAsHTML)
	case len(t.Header) > 0 || len(t.Rows) > 0:
		header := t.Header
		if len(header) == 0 && len(t.Rows) > 0 {
			header = syntheticHeaders(len(t.Rows[0]))
		}
		return build(header, t.Rows)
	case len(t.PreviewRows) > 0:
		header := t.PreviewRows[0]
		rows := t.PreviewRows[1:]
		return build(header, rows)
	default:
		return NormalizedTable{}
	}
}

func syntheticHeaders(n int) []string {
	h := make([]string, n)
	for i := range h {
		h[i] = syntheticHeader(i)
	}
	return h
}

func build(header []string, rows [][]string) NormalizedTable {
	nt := NormalizedTable{
		Header: header,
		Rows:   rows,
		NRows:  len(rows),
		NCols:  len(header),
	}
	nt.TSV = toTSV(header, rows)
	nt.MD = toMarkdown(header, rows)
	nt.HTML = toHTML(header, rows)
	return nt
}

func toTSV(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, "\t"))
	for _, r := range rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(r, "\t"))
	}
	return b.String()
}

func toMarkdown(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	limit := len(rows)
	if limit > markdownRowCap {
		limit = markdownRowCap
	}
	for _, r := range rows[:limit] {
		b.WriteString("| " + strings.Join(r, " | ") + " |\n")
	}
	if len(rows) > markdownRowCap {
		fmt.Fprintf(&b, "\n_truncated, %d more rows_\n", len(rows)-markdownRowCap)
	}
	return b.String()
}

func toHTML(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table><tr>")
	for _, h := range header {
		b.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	b.WriteString("</tr>")
	for _, r := range rows {
		b.WriteString("<tr>")
		for _, c := range r {
			b.WriteString("<td>" + html.EscapeString(c) + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

// fromHTML parses raw table HTML: the first <tr> becomes the header, the
// remainder become data rows.
func fromHTML(raw string) NormalizedTable {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return NormalizedTable{}
	}
	var trs [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			if len(cells) > 0 {
				trs = append(trs, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(trs) == 0 {
		return NormalizedTable{}
	}
	return build(trs[0], trs[1:])
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
