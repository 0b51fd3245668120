package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/retry"
	"github.com/use-agent/seiassign/tablehash"
)

// Cursor is the traversal position. PageIndex is 1-based.
type Cursor struct {
	PageIndex  int
	IsLastPage bool
}

// PageFunc processes the page the browser is on.
type PageFunc func(ctx context.Context, page int) error

// PaginationController walks the work queue page by page.
type PaginationController struct {
	session      browser.Session
	sel          Selectors
	wait         time.Duration
	lastPageWait time.Duration
	maxPages     int
	pageRetries  int
	policy       retry.Policy
	logger       *slog.Logger
	metrics      *metrics.Recorder

	cursor Cursor
}

// PaginationOptions bound a traversal.
type PaginationOptions struct {
	Wait         time.Duration
	LastPageWait time.Duration

	// MaxPages caps the pages visited; 0 means no cap.
	MaxPages int

	// PageRetries is the number of extra rounds a failing page after the
	// first gets before it is skipped.
	PageRetries int

	// Policy wraps each page's processing.
	Policy retry.Policy
}

// NewPaginationController creates a PaginationController.
func NewPaginationController(session browser.Session, sel Selectors, opts PaginationOptions, logger *slog.Logger, rec *metrics.Recorder) *PaginationController {
	return &PaginationController{
		session:      session,
		sel:          sel,
		wait:         opts.Wait,
		lastPageWait: opts.LastPageWait,
		maxPages:     opts.MaxPages,
		pageRetries:  opts.PageRetries,
		policy:       opts.Policy,
		logger:       logger.With("component", "pagination"),
		metrics:      rec,
	}
}

// Cursor returns the current traversal position.
func (p *PaginationController) Cursor() Cursor {
	return p.cursor
}

// Traverse runs process on every page, starting from the one the browser
// is on. It stops after the page without a next-page control, after
// MaxPages pages, or when advancing does not change the table.
//
// A first page that cannot be processed aborts with a STRUCTURAL error. A
// later page is retried up to PageRetries more rounds and then skipped.
func (p *PaginationController) Traverse(ctx context.Context, process PageFunc) error {
	p.cursor = Cursor{PageIndex: 1}
	rounds := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := p.cursor.PageIndex

		p.logger.Info("processing page", "page", page)
		err := retry.Run(ctx, p.policy, p.logger.With("page", page), func(ctx context.Context) error {
			return process(ctx, page)
		})

		switch {
		case err == nil:
			p.metrics.PageProcessed()
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		case page == 1:
			return models.NewAssignError(models.ErrCodeStructural, "first page could not be processed", err)
		case rounds < p.pageRetries:
			rounds++
			p.logger.Warn("page failed, processing it again", "page", page, "round", rounds, "error", err)
			continue
		default:
			p.logger.Error("page failed repeatedly, skipping it", "page", page, "error", err)
		}
		rounds = 0

		if p.maxPages > 0 && page >= p.maxPages {
			p.logger.Info("page cap reached", "page", page)
			p.cursor.IsLastPage = true
			return nil
		}

		last, err := p.isLastPage(ctx)
		if err != nil {
			return models.NewAssignError(models.ErrCodeTransientUI, fmt.Sprintf("next-page check on page %d", page), err)
		}
		if last {
			p.logger.Info("last page reached", "page", page)
			p.cursor.IsLastPage = true
			return nil
		}

		moved, err := p.advance(ctx)
		if err != nil {
			return models.NewAssignError(models.ErrCodeTransientUI, fmt.Sprintf("could not advance past page %d", page), err)
		}
		if !moved {
			p.logger.Warn("next page shows the same table, stopping", "page", page)
			p.cursor.IsLastPage = true
			return nil
		}
		p.cursor.PageIndex++
	}
}

// isLastPage reports whether the next-page control is absent.
func (p *PaginationController) isLastPage(ctx context.Context) (bool, error) {
	found, err := p.session.Exists(ctx, p.sel.NextPage, p.lastPageWait)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// advance clicks the next-page control and reports whether the table
// content changed. Only a cell-for-cell identical table counts as unchanged.
func (p *PaginationController) advance(ctx context.Context) (bool, error) {
	before := p.tableDigest(ctx)

	if err := p.session.Click(ctx, p.sel.NextPage, p.wait); err != nil {
		return false, err
	}
	if err := p.session.WaitReady(ctx); err != nil {
		return false, err
	}
	if err := p.session.WaitVisible(ctx, p.sel.Table, p.wait); err != nil {
		return false, err
	}

	after := p.tableDigest(ctx)
	if before != 0 && before == after {
		return false, nil
	}
	return true, nil
}

// tableDigest returns 0 when the table cannot be read.
func (p *PaginationController) tableDigest(ctx context.Context) uint64 {
	tableHTML, err := p.session.OuterHTML(ctx, p.sel.Table, p.wait)
	if err != nil {
		p.logger.Debug("table digest unavailable", "error", err)
		return 0
	}
	return tablehash.Digest(tableHTML)
}
