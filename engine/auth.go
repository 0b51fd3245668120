package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/retry"
)

// SessionState is the lifecycle of the console session.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Credentials authenticate against the console.
type Credentials struct {
	URL      string
	Username string
	Password string
}

// AuthSession owns the browser session: it logs in, opens the work queue and
// is the only component allowed to end the session.
type AuthSession struct {
	session   browser.Session
	sel       Selectors
	wait      time.Duration
	alertWait time.Duration
	policy    retry.Policy
	logger    *slog.Logger
	state     SessionState
}

// NewAuthSession creates an AuthSession in the Unauthenticated state.
func NewAuthSession(session browser.Session, sel Selectors, wait, alertWait time.Duration, policy retry.Policy, logger *slog.Logger) *AuthSession {
	return &AuthSession{
		session:   session,
		sel:       sel,
		wait:      wait,
		alertWait: alertWait,
		policy:    policy,
		logger:    logger.With("component", "auth"),
	}
}

// State returns the current lifecycle state.
func (a *AuthSession) State() SessionState {
	return a.state
}

// Login signs in and leaves the browser on the detailed work-queue view,
// sorted by handler. A dialog after submitting credentials is a rejection;
// it is retried like any other failure and reported as AUTH_REJECTED once
// the budget is spent.
func (a *AuthSession) Login(ctx context.Context, creds Credentials) error {
	if a.state == Closed {
		return models.NewAssignError(models.ErrCodeUnexpected, "login on a closed session", nil)
	}

	err := retry.Run(ctx, a.policy, a.logger, func(ctx context.Context) error {
		return a.login(ctx, creds)
	})
	if err != nil {
		a.logger.Error("login failed", "user", creds.Username, "error", err)
		return err
	}

	a.state = Authenticated
	a.logger.Info("login succeeded", "user", creds.Username)
	return nil
}

func (a *AuthSession) login(ctx context.Context, creds Credentials) error {
	s := a.session

	if err := s.Navigate(ctx, creds.URL); err != nil {
		return err
	}
	if err := s.Fill(ctx, a.sel.UsernameInput, creds.Username, a.wait); err != nil {
		return err
	}
	if err := s.Fill(ctx, a.sel.PasswordInput, creds.Password, a.wait); err != nil {
		return err
	}
	if err := s.Click(ctx, a.sel.LoginButton, a.wait); err != nil {
		return err
	}

	if alert, ok := s.TryAlert(ctx, a.alertWait); ok {
		a.logger.Warn("login rejected by console", "alert", alert.Text)
		return models.NewAssignError(models.ErrCodeAuthRejected, "login rejected: "+alert.Text, nil)
	}
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	// Open the queue in detailed view, sorted by handler so assigned rows
	// carry their marker in a known column.
	for _, step := range []string{a.sel.ProcessControl, a.sel.DetailedView, a.sel.SortByHandler} {
		if err := s.Click(ctx, step, a.wait); err != nil {
			return err
		}
		if err := s.WaitReady(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Logout ends the console session and releases the browser. It never fails:
// a missing logout control means the session already ended, and the browser
// is closed on every path. Calling it again is a no-op.
func (a *AuthSession) Logout(ctx context.Context) {
	if a.state == Closed {
		return
	}

	defer func() {
		if alert, ok := a.session.TryAlert(ctx, 0); ok {
			a.logger.Info("alert dismissed during logout", "alert", alert.Text)
		}
		if err := a.session.Close(); err != nil {
			a.logger.Error("failed to close browser", "error", err)
		} else {
			a.logger.Info("browser session closed")
		}
		a.state = Closed
	}()

	found, err := a.session.Exists(ctx, a.sel.Logout, a.wait)
	switch {
	case err != nil:
		a.logger.Error("logout failed", "error", err)
	case !found:
		a.logger.Warn("logout control not found, user possibly already logged out")
	default:
		if err := a.session.Click(ctx, a.sel.Logout, a.wait); err != nil {
			a.logger.Error("logout failed", "error", err)
			return
		}
		if err := a.session.WaitReady(ctx); err != nil {
			a.logger.Debug("page not ready after logout", "error", err)
		}
		a.logger.Info("logout succeeded")
	}
}
