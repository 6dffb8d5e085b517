package textutil

import "testing"

func TestCleanTextCollapsesWhitespaceAndLigatures(t *testing.T) {
	in := "The ﬁrst  line.\r\n\n\n\nSecond line.  "
	got := CleanText(in)
	want := "The first line.\n\nSecond line."
	if got != want {
		t.Fatalf("CleanText() = %q, want %q", got, want)
	}
}

func TestNormalizeCell(t *testing.T) {
	cases := []struct {
		raw      string
		wantUnit string
		wantNil  bool
	}{
		{"1,234.5kg", "kg", false},
		{"42%", "%", false},
		{"n/a", "", true},
		{"-3.2", "", false},
	}
	for _, c := range cases {
		nc := NormalizeCell(c.raw)
		if c.wantNil && nc.Value != nil {
			t.Errorf("NormalizeCell(%q).Value = %v, want nil", c.raw, *nc.Value)
		}
		if !c.wantNil && nc.Value == nil {
			t.Errorf("NormalizeCell(%q).Value = nil, want non-nil", c.raw)
		}
		if nc.Unit != c.wantUnit {
			t.Errorf("NormalizeCell(%q).Unit = %q, want %q", c.raw, nc.Unit, c.wantUnit)
		}
	}
}

func TestRowSentenceDeterministic(t *testing.T) {
	headers := []string{"Name", "Score"}
	row := []string{"Alice", "92"}
	a := RowSentence("Quiz results", headers, row)
	b := RowSentence("Quiz results", headers, row)
	if a != b {
		t.Fatalf("RowSentence not deterministic: %q vs %q", a, b)
	}
	want := "Table: Quiz results | Name=Alice; Score=92"
	if a != want {
		t.Fatalf("RowSentence() = %q, want %q", a, want)
	}
}

func TestRowSentenceSyntheticHeader(t *testing.T) {
	got := RowSentence("", nil, []string{"x", "y"})
	want := "Table:  | col_1=x; col_2=y"
	if got != want {
		t.Fatalf("RowSentence() = %q, want %q", got, want)
	}
}

func TestNormalizeTableFromHTML(t *testing.T) {
	nt := NormalizeTable(TableSource{HTML: "<table><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr></table>"})
	if nt.NRows != 1 || nt.NCols != 2 {
		t.Fatalf("NormalizeTable() = %+v", nt)
	}
	if nt.Header[0] != "A" || nt.Rows[0][1] != "2" {
		t.Fatalf("NormalizeTable() header/rows mismatch: %+v", nt)
	}
}

func TestNormalizeTableFromRowsSynthesizesHeader(t *testing.T) {
	nt := NormalizeTable(TableSource{Rows: [][]string{{"a", "b"}, {"c", "d"}}})
	if len(nt.Header) != 2 || nt.Header[0] != "col_1" {
		t.Fatalf("NormalizeTable() header = %v", nt.Header)
	}
}
