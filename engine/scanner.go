package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/models"
)

// staleScans bounds how often one term's scan is repeated when the table
// re-renders underneath it.
const staleScans = 3

var plainID = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// PageScanner finds the rows of the current page whose cells match a term.
type PageScanner struct {
	session  browser.Session
	sel      Selectors
	match    TermMatcher
	wait     time.Duration
	logger   *slog.Logger
	marker   cascadia.Selector
	checkbox cascadia.Selector
}

// NewPageScanner compiles the row selectors once.
func NewPageScanner(session browser.Session, sel Selectors, match TermMatcher, wait time.Duration, logger *slog.Logger) (*PageScanner, error) {
	marker, err := cascadia.Compile(sel.AssignedMarker)
	if err != nil {
		return nil, models.ConfigError("invalid assigned-marker selector %q: %v", sel.AssignedMarker, err)
	}
	checkbox, err := cascadia.Compile(sel.RowCheckbox)
	if err != nil {
		return nil, models.ConfigError("invalid row-checkbox selector %q: %v", sel.RowCheckbox, err)
	}
	return &PageScanner{
		session:  session,
		sel:      sel,
		match:    match,
		wait:     wait,
		logger:   logger.With("component", "scanner"),
		marker:   marker,
		checkbox: checkbox,
	}, nil
}

// Scan returns the unassigned rows with a cell matching term, each row at
// most once, in document order. Rows whose control is in selected were
// already taken by the current batch and are skipped.
//
// A table that keeps re-rendering yields an empty result rather than an
// error; a table that is missing is an error.
func (s *PageScanner) Scan(ctx context.Context, term string, selected map[string]bool) ([]models.RowCandidate, error) {
	var lastErr error
	for attempt := 1; attempt <= staleScans; attempt++ {
		tableHTML, err := s.session.OuterHTML(ctx, s.sel.Table, s.wait)
		if err != nil {
			if errors.Is(err, browser.ErrStaleElement) {
				s.logger.Debug("table went stale, rescanning", "term", term, "attempt", attempt)
				lastErr = err
				continue
			}
			return nil, models.NewAssignError(models.ErrCodeStructural, "work-queue table unavailable", err)
		}
		matches, err := s.parse(tableHTML, term)
		if err != nil {
			return nil, err
		}

		var rows []models.RowCandidate
		for _, r := range matches {
			switch {
			case r.HasExistingAssignment:
				s.logger.Debug("row already assigned, skipped", "term", term, "row", r.RawText)
			case r.Control == "":
				s.logger.Warn("matching row has no addressable checkbox", "term", term, "row", r.RawText)
			case selected[r.Control]:
			default:
				rows = append(rows, r)
			}
		}
		return rows, nil
	}

	s.logger.Warn("table kept re-rendering, term skipped on this page", "term", term, "error", lastErr)
	return nil, nil
}

// parse returns every row with a cell matching term, assigned or not.
func (s *PageScanner) parse(tableHTML, term string) ([]models.RowCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, models.NewAssignError(models.ErrCodeStructural, "parse work-queue table", err)
	}

	var rows []models.RowCandidate
	seen := make(map[*html.Node]bool)
	doc.Find("td").Each(func(_ int, cell *goquery.Selection) {
		if !s.match(cell.Text(), term) {
			return
		}
		row := cell.Closest("tr")
		if row.Length() == 0 {
			return
		}
		node := row.Get(0)
		if seen[node] {
			return
		}
		seen[node] = true

		candidate := models.RowCandidate{
			RawText:               rowText(row),
			HasExistingAssignment: row.FindMatcher(s.marker).Length() > 0,
		}
		if id, ok := row.FindMatcher(s.checkbox).First().Attr("id"); ok && id != "" {
			candidate.Control = idSelector(id)
		}
		rows = append(rows, candidate)
	})
	return rows, nil
}

// rowText joins the row's non-empty cell texts with single spaces.
func rowText(row *goquery.Selection) string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		if t := normalizeSpace(cell.Text()); t != "" {
			cells = append(cells, t)
		}
	})
	return strings.Join(cells, " ")
}

// idSelector builds a CSS selector addressing the element with id.
func idSelector(id string) string {
	if plainID.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf("[id=%q]", id)
}
