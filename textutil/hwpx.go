package textutil

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

// HWPXResult is what ExtractHWPX recovers: concatenated prose plus a
// minimal {type: "table"} stub per detected table element, per spec
// §4.6 step 2.
type HWPXResult struct {
	Text       string
	TableCount int
}

// hwpxNode mirrors just enough of the HWPX section schema to walk text
// runs and detect table elements without a full schema-aware decoder.
type hwpxNode struct {
	XMLName xml.Name
	Content []byte     `xml:",innerxml"`
	Nodes   []hwpxNode `xml:",any"`
}

// ExtractHWPX opens path as a ZIP archive, enumerates Contents/section*.xml
// in order, and traverses each section's XML tree, concatenating text runs
// and counting table elements.
func ExtractHWPX(path string) (HWPXResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return HWPXResult{}, err
	}
	defer zr.Close()

	var sections []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "Contents/section") && strings.HasSuffix(f.Name, ".xml") {
			sections = append(sections, f)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })

	var b strings.Builder
	tableCount := 0
	for _, f := range sections {
		rc, err := f.Open()
		if err != nil {
			return HWPXResult{}, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return HWPXResult{}, err
		}
		var root hwpxNode
		if err := xml.Unmarshal(data, &root); err != nil {
			continue
		}
		walkHWPX(root, &b, &tableCount)
		b.WriteString("\n")
	}
	return HWPXResult{Text: strings.TrimSpace(b.String()), TableCount: tableCount}, nil
}

func walkHWPX(n hwpxNode, b *strings.Builder, tableCount *int) {
	if strings.EqualFold(localName(n.XMLName.Local), "t") {
		b.WriteString(decodeEntities(string(n.Content)))
		b.WriteString(" ")
	}
	if strings.Contains(strings.ToLower(n.XMLName.Local), "tbl") {
		*tableCount++
	}
	for _, c := range n.Nodes {
		walkHWPX(c, b, tableCount)
	}
}

func localName(s string) string {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func decodeEntities(s string) string {
	replacer := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", "\"", "&apos;", "'")
	return replacer.Replace(s)
}
