package tablehash

import (
	"fmt"
	"strings"
	"testing"
)

const page1 = `<table class="infraTable">
<tr><th>Processo</th><th>Tipo</th></tr>
<tr><td>23001.000001/2026-01</td><td>Parecer</td></tr>
<tr><td>23001.000002/2026-02</td><td>Despacho</td></tr>
</table>`

const page2 = `<table class="infraTable">
<tr><th>Processo</th><th>Tipo</th></tr>
<tr><td>23001.000051/2026-51</td><td>Ofício</td></tr>
<tr><td>23001.000052/2026-52</td><td>Nota Técnica</td></tr>
</table>`

func TestDigest_SameRowsDifferentMarkup(t *testing.T) {
	reformatted := `<table class="infraTable" style="width:100%"><tr><th>Processo</th><th>Tipo</th></tr>` +
		`<tr class="infraTrClara"><td><a href="#">23001.000001/2026-01</a></td><td>  Parecer </td></tr>` +
		`<tr><td>23001.000002/2026-02</td><td>Despacho</td></tr></table>`

	if Digest(page1) != Digest(reformatted) {
		t.Error("same cell text should hash identically regardless of markup")
	}
}

func TestDigest_NextPageDiffers(t *testing.T) {
	if Digest(page1) == Digest(page2) {
		t.Error("different pages should not share a digest")
	}
}

// queuePage renders rows that differ only in the process number, the way
// consecutive pages of a homogeneous queue look.
func queuePage(first int) string {
	var b strings.Builder
	b.WriteString(`<table class="infraTable"><tr><th>Processo</th><th>Tipo</th><th>Situação</th><th>Unidade</th></tr>`)
	for i := first; i < first+20; i++ {
		fmt.Fprintf(&b, `<tr><td>23001.%06d/2026-11</td><td>Processo Administrativo</td><td>Em tramitação</td><td>SEAD</td></tr>`, i)
	}
	b.WriteString(`</table>`)
	return b.String()
}

func TestDigest_PagesSharingMostCellsDiffer(t *testing.T) {
	seen := map[uint64]int{}
	for page := 0; page < 5; page++ {
		d := Digest(queuePage(page * 20))
		if prev, ok := seen[d]; ok {
			t.Fatalf("page %d has the same digest as page %d", page, prev)
		}
		seen[d] = page
	}
}

func TestDigest_SingleCellChangeDiffers(t *testing.T) {
	a := queuePage(0)
	b := strings.Replace(a, "23001.000019/2026-11", "23001.000099/2026-11", 1)
	if Digest(a) == Digest(b) {
		t.Error("changing one cell should change the digest")
	}
}

func TestDigest_ColumnMatters(t *testing.T) {
	a := `<table><tr><td>Parecer</td><td>x</td></tr></table>`
	b := `<table><tr><td>x</td><td>Parecer</td></tr></table>`
	if Digest(a) == Digest(b) {
		t.Error("swapping columns should change the digest")
	}
}

func TestDigest_RowOrderMatters(t *testing.T) {
	a := `<table><tr><td>A</td></tr><tr><td>B</td></tr></table>`
	b := `<table><tr><td>B</td></tr><tr><td>A</td></tr></table>`
	if Digest(a) == Digest(b) {
		t.Error("reordering rows should change the digest")
	}
}

func TestDigest_Empty(t *testing.T) {
	if d := Digest(`<table></table>`); d != 0 {
		t.Errorf("table without cells should produce 0, got %d", d)
	}
}

func TestCellTokens(t *testing.T) {
	got := cellTokens(`<table><tr><td> A  b </td><td></td><td>C</td></tr><tr><td>D</td></tr></table>`)
	want := []string{"1:A b", "3:C", "1:D"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
