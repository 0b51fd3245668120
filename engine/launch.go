package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/seiassign/browser"
	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/tally"
)

// OptionsFrom builds run options from configuration.
func OptionsFrom(cfg config.EngineConfig, rules []models.TermRule) Options {
	return Options{
		Rules:        rules,
		TermMatch:    cfg.TermMatch,
		HandlerMatch: cfg.HandlerMatch,
		WaitTimeout:  cfg.WaitTimeout,
		LastPageWait: cfg.LastPageWait,
		MaxPages:     cfg.MaxPages,
		PageRetries:  cfg.PageRetries,
	}
}

// RunOnce launches a browser and performs one run with it. The summary is
// never nil, also when the browser cannot be started.
func RunOnce(ctx context.Context, cfg *config.Config, rules []models.TermRule, logger *slog.Logger, rec *metrics.Recorder, progress *tally.Progress) (*models.Summary, error) {
	if progress == nil {
		progress = tally.NewProgress()
	}

	failed := func(err error) (*models.Summary, error) {
		now := time.Now()
		s := &models.Summary{
			StartedAt:  now,
			FinishedAt: now,
			Entries:    tally.New(rules).Entries(),
			Error:      models.DetailOf(err),
		}
		rec.RunFinished("failed")
		progress.Finish(s)
		return s, err
	}

	// The browser outlives a cancelled ctx so the run can still log out.
	session, err := browser.Launch(context.WithoutCancel(ctx), cfg.Browser, cfg.Engine.WaitTimeout, logger)
	if err != nil {
		logger.Error("failed to launch browser", "error", err)
		return failed(err)
	}

	creds := Credentials{URL: cfg.Console.URL, Username: cfg.Console.Username, Password: cfg.Console.Password}
	runner, err := NewRunner(session, creds, OptionsFrom(cfg.Engine, rules), logger, rec, progress)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			logger.Error("failed to close browser", "error", cerr)
		}
		return failed(err)
	}
	return runner.Run(ctx)
}
