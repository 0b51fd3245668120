package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/retry"
)

// Commit outcomes reported to metrics.
const (
	commitOK       = "ok"
	commitNotFound = "handler_not_found"
	commitFailed   = "failed"
)

// AssignmentDispatcher commits the currently selected rows to a handler
// through the console's assignment dialog.
type AssignmentDispatcher struct {
	session browser.Session
	sel     Selectors
	match   HandlerMatcher
	wait    time.Duration
	policy  retry.Policy
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewAssignmentDispatcher creates an AssignmentDispatcher.
func NewAssignmentDispatcher(session browser.Session, sel Selectors, match HandlerMatcher, wait time.Duration, policy retry.Policy, logger *slog.Logger, rec *metrics.Recorder) *AssignmentDispatcher {
	return &AssignmentDispatcher{
		session: session,
		sel:     sel,
		match:   match,
		wait:    wait,
		policy:  policy,
		logger:  logger.With("component", "dispatcher"),
		metrics: rec,
	}
}

// Assign opens the assignment dialog, picks handler and saves.
//
// It returns (true, nil) once the console accepted the assignment and
// (false, nil) when no dialog option matches handler; the browser is then
// back on the work queue and nothing was committed. Any other failure
// reloads the work queue, calls restore to put the selection back, and
// retries; an exhausted budget returns a TRANSIENT_UI error.
func (d *AssignmentDispatcher) Assign(ctx context.Context, handler string, restore func(ctx context.Context) error) (bool, error) {
	var (
		attempt  int
		notFound bool
	)
	err := retry.Run(ctx, d.policy, d.logger, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && restore != nil {
			if err := restore(ctx); err != nil {
				return err
			}
		}

		ok, err := d.commit(ctx, handler)
		if err != nil {
			d.logger.Warn("assignment attempt failed, reloading work queue", "handler", handler, "attempt", attempt, "error", err)
			d.reload(ctx)
			return err
		}
		notFound = !ok
		return nil
	})

	switch {
	case err != nil:
		d.metrics.Commit(handler, commitFailed)
		return false, models.NewAssignError(models.ErrCodeTransientUI, "assignment to "+handler+" failed", err)
	case notFound:
		d.metrics.Commit(handler, commitNotFound)
		return false, nil
	default:
		d.metrics.Commit(handler, commitOK)
		return true, nil
	}
}

func (d *AssignmentDispatcher) commit(ctx context.Context, handler string) (bool, error) {
	s := d.session

	if err := s.Click(ctx, d.sel.AssignCommand, d.wait); err != nil {
		return false, err
	}
	if err := s.WaitReady(ctx); err != nil {
		return false, err
	}
	if alert, ok := s.TryAlert(ctx, 0); ok {
		return false, models.NewAssignError(models.ErrCodeTransientUI, "console refused assignment: "+alert.Text, nil)
	}

	options, err := s.Options(ctx, d.sel.HandlerSelect, d.wait)
	if err != nil {
		return false, err
	}
	label, ok := d.match(options, handler)
	if !ok {
		d.logger.Warn("handler not found in assignment dialog", "handler", handler, "options", len(options))
		if err := s.Back(ctx); err != nil {
			d.logger.Warn("could not return to work queue", "error", err)
		}
		return false, nil
	}

	if err := s.SelectOption(ctx, d.sel.HandlerSelect, label, d.wait); err != nil {
		return false, err
	}
	if err := s.Click(ctx, d.sel.SaveButton, d.wait); err != nil {
		return false, err
	}
	if err := s.WaitReady(ctx); err != nil {
		return false, err
	}
	if alert, ok := s.TryAlert(ctx, 0); ok {
		return false, models.NewAssignError(models.ErrCodeTransientUI, "console rejected assignment: "+alert.Text, nil)
	}
	if err := s.WaitVisible(ctx, d.sel.Table, d.wait); err != nil {
		return false, err
	}

	d.logger.Info("assignment committed", "handler", handler, "option", label)
	return true, nil
}

// reload returns the browser to the work queue after a failed attempt.
func (d *AssignmentDispatcher) reload(ctx context.Context) {
	if _, ok := d.session.TryAlert(ctx, 0); ok {
		d.logger.Debug("pending alert dismissed before reload")
	}
	if ok, _ := d.session.Exists(ctx, d.sel.Table, 0); ok {
		return
	}
	if err := d.session.Back(ctx); err != nil {
		d.logger.Warn("reload of work queue failed", "error", err)
		return
	}
	if err := d.session.WaitVisible(ctx, d.sel.Table, d.wait); err != nil {
		d.logger.Warn("work queue not visible after reload", "error", err)
	}
}
