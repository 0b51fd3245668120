package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/models"
)

// tableSession serves a fixed table snapshot.
type tableSession struct {
	*fakeConsole
	html string
	err  error
}

func (s *tableSession) OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	return s.html, s.err
}

func newScanner(t *testing.T, s browser.Session, mode string) *PageScanner {
	t.Helper()
	m, err := NewTermMatcher(mode)
	require.NoError(t, err)
	sc, err := NewPageScanner(s, DefaultSelectors(), m, time.Second, quietLogger())
	require.NoError(t, err)
	return sc
}

const scanTable = `<table class="infraTable"><tbody>
<tr><th></th><th>Processo</th><th>Tipo</th><th>Atribuição</th></tr>
<tr><td><div class="infraCheckboxDiv"><input type="checkbox" id="chkA"></div></td><td>0001/2024</td><td>Ofício</td><td></td></tr>
<tr><td><div class="infraCheckboxDiv"><input type="checkbox" id="chkB"></div></td><td>Ofício</td><td>Ofício</td><td></td></tr>
<tr><td><div class="infraCheckboxDiv"><input type="checkbox" id="chkC"></div></td><td>0003/2024</td><td>Ofício</td><td><a class="ancoraSigla">ana.souza</a></td></tr>
<tr><td><div class="infraCheckboxDiv"><input type="checkbox"></div></td><td>0004/2024</td><td>Ofício</td><td></td></tr>
<tr><td><div class="infraCheckboxDiv"><input type="checkbox" id="chk:5"></div></td><td>0005/2024</td><td>Ofício Circular</td><td></td></tr>
</tbody></table>`

func TestScan_ExactMatch(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), html: scanTable}
	rows, err := newScanner(t, s, TermMatchExact).Scan(context.Background(), "Ofício", nil)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "#chkA", rows[0].Control)
	assert.Equal(t, "0001/2024 Ofício", rows[0].RawText)
	assert.Equal(t, "#chkB", rows[1].Control, "row matching in two cells appears once")
	for _, r := range rows {
		assert.False(t, r.HasExistingAssignment)
	}
}

func TestParse_MarksAssignedRows(t *testing.T) {
	sc := newScanner(t, &tableSession{fakeConsole: newFakeConsole(nil)}, TermMatchExact)
	rows, err := sc.parse(scanTable, "Ofício")
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, "#chkC", rows[2].Control)
	assert.True(t, rows[2].HasExistingAssignment)
	assert.Equal(t, "0003/2024 Ofício ana.souza", rows[2].RawText)
	assert.Empty(t, rows[3].Control, "row without checkbox id has no control")
	for _, i := range []int{0, 1, 3} {
		assert.False(t, rows[i].HasExistingAssignment, "row %d", i)
	}
}

func TestScan_ContainsMatchAndEscapedID(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), html: scanTable}
	rows, err := newScanner(t, s, TermMatchContains).Scan(context.Background(), "Circular", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `[id="chk:5"]`, rows[0].Control)
}

func TestScan_SkipsSelectedRows(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), html: scanTable}
	rows, err := newScanner(t, s, TermMatchExact).Scan(context.Background(), "Ofício", map[string]bool{"#chkA": true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "#chkB", rows[0].Control)
}

func TestScan_NoMatches(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), html: scanTable}
	rows, err := newScanner(t, s, TermMatchExact).Scan(context.Background(), "Despacho", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScan_PersistentlyStaleTableYieldsNothing(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), err: browser.ErrStaleElement}
	rows, err := newScanner(t, s, TermMatchExact).Scan(context.Background(), "Ofício", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScan_MissingTableIsStructural(t *testing.T) {
	s := &tableSession{fakeConsole: newFakeConsole(nil), err: browser.ErrElementNotFound}
	_, err := newScanner(t, s, TermMatchExact).Scan(context.Background(), "Ofício", nil)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeStructural))
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestIDSelector(t *testing.T) {
	assert.Equal(t, "#chkInfraItem12", idSelector("chkInfraItem12"))
	assert.Equal(t, `[id="12"]`, idSelector("12"))
	assert.Equal(t, `[id="a.b"]`, idSelector("a.b"))
}
