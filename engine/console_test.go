package engine

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/retry"
)

// fakeRow is one work-queue row. Assigned holds the handler the row is
// assigned to, empty when unassigned.
type fakeRow struct {
	ID       string
	Cells    []string
	Assigned string
}

const (
	viewBlank     = "blank"
	viewLogin     = "login"
	viewLanding   = "landing"
	viewQueue     = "queue"
	viewDialog    = "dialog"
	viewLoggedOut = "logged-out"
)

// fakeConsole is an in-memory SEI console implementing browser.Session.
type fakeConsole struct {
	mu sync.Mutex

	sel   Selectors
	pages [][]*fakeRow
	page  int
	view  string

	checked  map[string]bool
	alerts   []string
	handlers []string
	chosen   string

	// behaviour knobs
	loginAlert   string
	saveFailures int
	failSaveOn   map[int]bool
	brokenPages  map[int]bool
	staleReads   int
	stuckNext    bool
	uncheckable  map[string]bool
	noLogout     bool

	// renumberOnSave re-sorts the page after a commit, assigned rows first,
	// and renames row ids by position like the SEI checkboxes.
	renumberOnSave bool

	// observations
	loginClicks int
	nextClicks  int
	scans       int
	commits     []string
	logouts     int
	closed      int
}

func newFakeConsole(handlers []string, pages ...[]*fakeRow) *fakeConsole {
	return &fakeConsole{
		sel:      DefaultSelectors(),
		pages:    pages,
		view:     viewBlank,
		checked:  make(map[string]bool),
		handlers: handlers,
	}
}

func row(id string, cells ...string) *fakeRow {
	return &fakeRow{ID: id, Cells: cells}
}

func assignedRow(id, handler string, cells ...string) *fakeRow {
	return &fakeRow{ID: id, Cells: cells, Assigned: handler}
}

// assignments maps row IDs to their handler across all pages.
func (c *fakeConsole) assignments() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for _, rows := range c.pages {
		for _, r := range rows {
			if r.Assigned != "" {
				out[r.ID] = r.Assigned
			}
		}
	}
	return out
}

func (c *fakeConsole) checkedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, on := range c.checked {
		if on {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (c *fakeConsole) hasNext() bool {
	return c.stuckNext || c.page < len(c.pages)-1
}

func (c *fakeConsole) tableVisible() bool {
	return c.view == viewQueue && !c.brokenPages[c.page+1]
}

func (c *fakeConsole) currentRows() []*fakeRow {
	if c.page < len(c.pages) {
		return c.pages[c.page]
	}
	return nil
}

func (c *fakeConsole) rowByControl(selector string) *fakeRow {
	for _, r := range c.currentRows() {
		if "#"+r.ID == selector {
			return r
		}
	}
	return nil
}

func (c *fakeConsole) renderTable() string {
	var b strings.Builder
	b.WriteString(`<table class="infraTable"><tbody><tr><th></th><th>Processo</th></tr>`)
	for _, r := range c.currentRows() {
		b.WriteString(`<tr><td><div class="infraCheckboxDiv">`)
		fmt.Fprintf(&b, `<input type="checkbox" id="%s">`, r.ID)
		b.WriteString(`</div></td>`)
		for _, cell := range r.Cells {
			fmt.Fprintf(&b, `<td>%s</td>`, html.EscapeString(cell))
		}
		if r.Assigned != "" {
			fmt.Fprintf(&b, `<td><a class="ancoraSigla">%s</a></td>`, html.EscapeString(r.Assigned))
		} else {
			b.WriteString(`<td></td>`)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func notFound(selector string) error {
	return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
}

// --- browser.Session ---

func (c *fakeConsole) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = viewLogin
	return nil
}

func (c *fakeConsole) Back(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == viewDialog {
		c.view = viewQueue
	}
	return nil
}

func (c *fakeConsole) WaitReady(ctx context.Context) error {
	return ctx.Err()
}

func (c *fakeConsole) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch selector {
	case c.sel.Table:
		if c.tableVisible() {
			return nil
		}
	case c.sel.HandlerSelect:
		if c.view == viewDialog {
			return nil
		}
	}
	return notFound(selector)
}

func (c *fakeConsole) Exists(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch selector {
	case c.sel.Table:
		return c.tableVisible(), nil
	case c.sel.NextPage:
		return c.view == viewQueue && c.hasNext(), nil
	case c.sel.Logout:
		return !c.noLogout && (c.view == viewQueue || c.view == viewDialog || c.view == viewLanding), nil
	}
	return false, nil
}

func (c *fakeConsole) Click(ctx context.Context, selector string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch selector {
	case c.sel.LoginButton:
		if c.view != viewLogin {
			return notFound(selector)
		}
		c.loginClicks++
		if c.loginAlert != "" {
			c.alerts = append(c.alerts, c.loginAlert)
			return nil
		}
		c.view = viewLanding
	case c.sel.ProcessControl, c.sel.DetailedView:
		if c.view != viewLanding && c.view != viewQueue {
			return notFound(selector)
		}
		c.view = viewLanding
	case c.sel.SortByHandler:
		if c.view != viewLanding {
			return notFound(selector)
		}
		c.view = viewQueue
	case c.sel.AssignCommand:
		if c.view != viewQueue {
			return notFound(selector)
		}
		if len(c.checkedLocked()) == 0 {
			c.alerts = append(c.alerts, "Nenhum processo selecionado.")
			return nil
		}
		c.view = viewDialog
		c.chosen = ""
	case c.sel.SaveButton:
		if c.view != viewDialog {
			return notFound(selector)
		}
		if c.failSaveOn[c.page+1] {
			return errors.New("save button detached")
		}
		if c.saveFailures > 0 {
			c.saveFailures--
			return errors.New("save button detached")
		}
		for _, r := range c.checkedLocked() {
			r.Assigned = c.chosen
		}
		c.commits = append(c.commits, c.chosen)
		c.checked = make(map[string]bool)
		c.view = viewQueue
		if c.renumberOnSave {
			c.renumberLocked()
		}
	case c.sel.NextPage:
		if c.view != viewQueue || !c.hasNext() {
			return notFound(selector)
		}
		c.nextClicks++
		if c.page < len(c.pages)-1 {
			c.page++
			c.checked = make(map[string]bool)
		}
	case c.sel.Logout:
		c.logouts++
		c.view = viewLoggedOut
	default:
		return notFound(selector)
	}
	return nil
}

func (c *fakeConsole) renumberLocked() {
	rows := c.currentRows()
	slices.SortStableFunc(rows, func(a, b *fakeRow) int {
		switch {
		case a.Assigned != "" && b.Assigned == "":
			return -1
		case a.Assigned == "" && b.Assigned != "":
			return 1
		}
		return 0
	})
	for i, r := range rows {
		r.ID = fmt.Sprintf("item%d", i)
	}
}

func (c *fakeConsole) checkedLocked() []*fakeRow {
	var rows []*fakeRow
	for _, r := range c.currentRows() {
		if c.checked[r.ID] {
			rows = append(rows, r)
		}
	}
	return rows
}

func (c *fakeConsole) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != viewLogin {
		return notFound(selector)
	}
	return nil
}

func (c *fakeConsole) OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if selector != c.sel.Table || !c.tableVisible() {
		return "", notFound(selector)
	}
	c.scans++
	if c.staleReads > 0 {
		c.staleReads--
		return "", browser.ErrStaleElement
	}
	return c.renderTable(), nil
}

func (c *fakeConsole) SetChecked(ctx context.Context, selector string, checked bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != viewQueue {
		return false, notFound(selector)
	}
	r := c.rowByControl(selector)
	if r == nil {
		return false, notFound(selector)
	}
	if c.uncheckable[r.ID] {
		return c.checked[r.ID], nil
	}
	c.checked[r.ID] = checked
	return checked, nil
}

func (c *fakeConsole) Options(ctx context.Context, selector string, timeout time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if selector != c.sel.HandlerSelect || c.view != viewDialog {
		return nil, notFound(selector)
	}
	return slices.Clone(c.handlers), nil
}

func (c *fakeConsole) SelectOption(ctx context.Context, selector, label string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != viewDialog || !slices.Contains(c.handlers, label) {
		return notFound(selector)
	}
	c.chosen = label
	return nil
}

func (c *fakeConsole) TryAlert(ctx context.Context, within time.Duration) (browser.Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.alerts) == 0 {
		return browser.Alert{}, false
	}
	text := c.alerts[0]
	c.alerts = c.alerts[1:]
	return browser.Alert{Text: text}, true
}

func (c *fakeConsole) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

var _ browser.Session = (*fakeConsole)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPolicies keeps retry budgets but drops the delays.
func fastPolicies(o Options) Options {
	o.LoginPolicy = retry.Policy{Name: "login", MaxAttempts: 3}
	o.PagePolicy = retry.Policy{Name: "page", MaxAttempts: 2}
	o.AssignPolicy = retry.Policy{Name: "assign", MaxAttempts: 2}
	return o
}
