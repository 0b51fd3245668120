package engine

import (
	"context"
	"log/slog"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/models"
)

// SelectionExecutor toggles row checkboxes.
type SelectionExecutor struct {
	session browser.Session
	logger  *slog.Logger
}

// NewSelectionExecutor creates a SelectionExecutor.
func NewSelectionExecutor(session browser.Session, logger *slog.Logger) *SelectionExecutor {
	return &SelectionExecutor{session: session, logger: logger.With("component", "selection")}
}

// Select checks the row's checkbox and reports whether it is verified as
// checked afterwards. Failures are logged and reported as false; they never
// abort the page.
func (x *SelectionExecutor) Select(ctx context.Context, row models.RowCandidate) bool {
	checked, err := x.session.SetChecked(ctx, row.Control, true)
	if err != nil {
		x.logger.Warn("row selection failed", "control", row.Control, "row", row.RawText, "error", err)
		return false
	}
	if err := x.session.WaitReady(ctx); err != nil {
		x.logger.Debug("page not ready after selection", "control", row.Control, "error", err)
	}
	if !checked {
		x.logger.Warn("row checkbox did not stay checked", "control", row.Control, "row", row.RawText)
		return false
	}
	return true
}

// Reselect checks every row again. Rows already checked are left alone.
// It returns the first row that could not be verified as checked.
func (x *SelectionExecutor) Reselect(ctx context.Context, rows []models.RowCandidate) error {
	for _, row := range rows {
		checked, err := x.session.SetChecked(ctx, row.Control, true)
		if err != nil {
			return models.NewAssignError(models.ErrCodeTransientUI, "reselect "+row.Control, err)
		}
		if !checked {
			return models.NewAssignError(models.ErrCodeTransientUI, "reselect "+row.Control+": checkbox did not stay checked", nil)
		}
	}
	return nil
}

// Release unchecks rows after a batch that was not committed, so they are
// neither submitted with a later handler's batch nor lost for it.
func (x *SelectionExecutor) Release(ctx context.Context, rows []models.RowCandidate) {
	for _, row := range rows {
		if _, err := x.session.SetChecked(ctx, row.Control, false); err != nil {
			x.logger.Debug("row release failed", "control", row.Control, "error", err)
		}
	}
}
