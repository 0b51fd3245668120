// Package engine drives the SEI work queue: it signs in, walks every page,
// selects rows whose cells match configured terms and assigns them to the
// configured handlers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/retry"
	"github.com/use-agent/seiassign/tally"
)

// logoutTimeout bounds the logout that runs after the run context may
// already be cancelled.
const logoutTimeout = 30 * time.Second

// Options configure a Runner. Zero values take the defaults noted.
type Options struct {
	Rules     []models.TermRule
	Selectors Selectors // default: DefaultSelectors()

	TermMatch    string // default: "exact"
	HandlerMatch string // default: "exact"

	WaitTimeout  time.Duration // default: 10s
	LastPageWait time.Duration // default: 10s
	AlertWait    time.Duration // default: 2s

	MaxPages    int
	PageRetries int

	LoginPolicy  retry.Policy // default: 3 attempts, 2s apart
	PagePolicy   retry.Policy // default: 2 attempts, 1s apart
	AssignPolicy retry.Policy // default: 2 attempts, 1s apart
}

// DefaultLoginPolicy, DefaultPagePolicy and DefaultAssignPolicy are the
// retry budgets used when Options leaves a policy empty.
var (
	DefaultLoginPolicy  = retry.Policy{Name: "login", MaxAttempts: 3, Delay: 2 * time.Second}
	DefaultPagePolicy   = retry.Policy{Name: "page", MaxAttempts: 2, Delay: time.Second}
	DefaultAssignPolicy = retry.Policy{Name: "assign", MaxAttempts: 2, Delay: time.Second}
)

func (o *Options) applyDefaults() {
	if o.Selectors == (Selectors{}) {
		o.Selectors = DefaultSelectors()
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	if o.LastPageWait <= 0 {
		o.LastPageWait = 10 * time.Second
	}
	if o.AlertWait <= 0 {
		o.AlertWait = 2 * time.Second
	}
	if o.LoginPolicy.MaxAttempts == 0 {
		o.LoginPolicy = DefaultLoginPolicy
	}
	if o.PagePolicy.MaxAttempts == 0 {
		o.PagePolicy = DefaultPagePolicy
	}
	if o.AssignPolicy.MaxAttempts == 0 {
		o.AssignPolicy = DefaultAssignPolicy
	}
}

// Runner executes one assignment run over one browser session. A Runner is
// single-use: the session is closed when Run returns.
type Runner struct {
	session  browser.Session
	creds    Credentials
	opts     Options
	groups   []models.HandlerGroup
	logger   *slog.Logger
	metrics  *metrics.Recorder
	progress *tally.Progress

	auth       *AuthSession
	scanner    *PageScanner
	selector   *SelectionExecutor
	dispatcher *AssignmentDispatcher
	pager      *PaginationController

	run *tally.Counters
}

// NewRunner wires the components of a run. rec and progress may be nil.
func NewRunner(session browser.Session, creds Credentials, opts Options, logger *slog.Logger, rec *metrics.Recorder, progress *tally.Progress) (*Runner, error) {
	if len(opts.Rules) == 0 {
		return nil, models.ConfigError("no term rules configured")
	}
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = tally.NewProgress()
	}
	for _, p := range []*retry.Policy{&opts.LoginPolicy, &opts.PagePolicy, &opts.AssignPolicy} {
		if p.OnRetry == nil && rec != nil {
			p.OnRetry = rec.Retry
		}
	}

	termMatch, err := NewTermMatcher(opts.TermMatch)
	if err != nil {
		return nil, models.ConfigError("%v", err)
	}
	handlerMatch, err := NewHandlerMatcher(opts.HandlerMatch)
	if err != nil {
		return nil, models.ConfigError("%v", err)
	}
	scanner, err := NewPageScanner(session, opts.Selectors, termMatch, opts.WaitTimeout, logger)
	if err != nil {
		return nil, err
	}

	return &Runner{
		session:    session,
		creds:      creds,
		opts:       opts,
		groups:     models.GroupByHandler(opts.Rules),
		logger:     logger,
		metrics:    rec,
		progress:   progress,
		auth:       NewAuthSession(session, opts.Selectors, opts.WaitTimeout, opts.AlertWait, opts.LoginPolicy, logger),
		scanner:    scanner,
		selector:   NewSelectionExecutor(session, logger),
		dispatcher: NewAssignmentDispatcher(session, opts.Selectors, handlerMatch, opts.WaitTimeout, opts.AssignPolicy, logger, rec),
		pager: NewPaginationController(session, opts.Selectors, PaginationOptions{
			Wait:         opts.WaitTimeout,
			LastPageWait: opts.LastPageWait,
			MaxPages:     opts.MaxPages,
			PageRetries:  opts.PageRetries,
			Policy:       opts.PagePolicy,
		}, logger, rec),
		run: tally.New(opts.Rules),
	}, nil
}

// Run signs in, processes every page and signs out. The returned summary
// is never nil and holds the counts committed before any failure; the
// browser session is closed on every path. A panic is reported as an
// UNEXPECTED error.
func (r *Runner) Run(ctx context.Context) (summary *models.Summary, err error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	summary = &models.Summary{RunID: runID, StartedAt: time.Now()}
	r.progress.Start(runID)
	logger.Info("run started", "rules", len(r.opts.Rules), "handlers", len(r.groups))

	defer func() {
		if p := recover(); p != nil {
			err = models.NewAssignError(models.ErrCodeUnexpected, fmt.Sprintf("panic: %v", p), nil)
			logger.Error("unexpected failure", "panic", p, "stack", string(debug.Stack()))
		}

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		r.auth.Logout(lctx)
		cancel()

		summary.FinishedAt = time.Now()
		summary.Pages = r.pager.Cursor().PageIndex
		summary.Entries = r.run.Entries()
		if err != nil {
			summary.Error = models.DetailOf(err)
			r.metrics.RunFinished("failed")
			logger.Error("run failed", "error", err, "assigned", summary.Total())
		} else {
			r.metrics.RunFinished("ok")
			logger.Info("run finished", "pages", summary.Pages, "assigned", summary.Total())
		}
		r.progress.Finish(summary)
	}()

	if err := r.auth.Login(ctx, r.creds); err != nil {
		return summary, err
	}
	return summary, r.pager.Traverse(ctx, r.processPage)
}

// processPage runs every handler batch against the current page.
func (r *Runner) processPage(ctx context.Context, page int) error {
	r.progress.Page(page, r.run)
	if err := r.session.WaitVisible(ctx, r.opts.Selectors.Table, r.opts.WaitTimeout); err != nil {
		return models.NewAssignError(models.ErrCodeStructural, "work-queue table not visible", err)
	}

	pageCounts := tally.New(r.opts.Rules)
	for _, g := range r.groups {
		if err := r.processBatch(ctx, page, g, pageCounts); err != nil {
			return err
		}
	}

	r.logger.Info("page processed", "page", page, "assigned", pageCounts.Total())
	r.progress.Page(page, r.run)
	return nil
}

// processBatch selects every row matching the group's terms and commits
// them to the group's handler in one assignment. Counts are merged only
// after the console accepted the commit.
//
// Checkbox ids are positional: a commit re-renders the table and the same
// id may then address another row. selected therefore lives for one batch
// only; rows committed earlier are recognised by the assignment marker.
func (r *Runner) processBatch(ctx context.Context, page int, g models.HandlerGroup, pageCounts *tally.Counters) error {
	batch := tally.New(r.opts.Rules)
	selected := make(map[string]bool)
	var rows []models.RowCandidate

	for _, term := range g.Terms {
		candidates, err := r.scanner.Scan(ctx, term, selected)
		if err != nil {
			return err
		}
		n := 0
		for _, c := range candidates {
			if !r.selector.Select(ctx, c) {
				continue
			}
			selected[c.Control] = true
			rows = append(rows, c)
			batch.Add(tally.Key{Handler: g.Handler, Term: term}, 1)
			n++
		}
		r.logger.Debug("term scanned", "page", page, "term", term, "matched", len(candidates), "selected", n)
	}
	if len(rows) == 0 {
		return nil
	}

	ok, err := r.dispatcher.Assign(ctx, g.Handler, func(ctx context.Context) error {
		return r.selector.Reselect(ctx, rows)
	})
	if err != nil || !ok {
		r.selector.Release(ctx, rows)
		if err != nil {
			return err
		}
		r.logger.Warn("batch not committed, handler unavailable", "page", page, "handler", g.Handler, "rows", len(rows))
		return nil
	}

	pageCounts.Merge(batch)
	r.run.Merge(batch)
	for _, e := range batch.Entries() {
		r.metrics.Assigned(e.Handler, e.Term, e.Count)
	}
	r.logger.Info("batch assigned", "page", page, "handler", g.Handler, "rows", len(rows))
	return nil
}
