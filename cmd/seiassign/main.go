// Package main provides the seiassign binary: it signs in to the SEI
// console, assigns every work-queue row matching a configured term to that
// term's handler and prints how many rows went to each.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/seiassign/api"
	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/engine"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/report"
	"github.com/use-agent/seiassign/tally"
	"github.com/use-agent/seiassign/webhook"
)

const appName = "seiassign"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	termsFile string
	envFile   string
	logLevel  string
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Assign SEI work-queue rows to handlers by term",
		Long: `seiassign signs in to the SEI document console, walks every page of the
process work queue and assigns each unassigned row whose cells match a
configured term to the handler configured for that term.

Credentials come from SEI_URL, SEI_USERNAME and SEI_PASSWORD (or a .env file).
The term file maps each term to {"attribute": "<handler>"}.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.PersistentFlags().StringVar(&f.termsFile, "terms", "", "Term file path (default $SEIASSIGN_TERMS_FILE or termos_acoes.json)")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(validateCmd(&f))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, models.Version)
		},
	})

	return cmd
}

func validateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and the term file without starting a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rules, err := loadConfig(*f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "console: %s (user %s)\n", cfg.Console.URL, cfg.Console.Username)
			fmt.Fprintf(out, "matching: terms %s, handlers %s\n\n", cfg.Engine.TermMatch, cfg.Engine.HandlerMatch)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TERM\tHANDLER")
			for _, r := range rules {
				fmt.Fprintf(tw, "%s\t%s\n", r.Term, r.Handler)
			}
			return tw.Flush()
		},
	}
}

// loadConfig reads the dotenv file, the environment and the term file, and
// validates them.
func loadConfig(f flags) (*config.Config, []models.TermRule, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, nil, models.NewAssignError(models.ErrCodeConfig, "load env file", err)
	}
	cfg := config.Load()
	if f.termsFile != "" {
		cfg.TermsFile = f.termsFile
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	rules, err := config.LoadTerms(cfg.TermsFile)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, rules, nil
}

// run performs one assignment run. Failures are logged and reported in the
// summary; they do not change the exit status.
func run(ctx context.Context, f flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, rules, cfgErr := loadConfig(f)
	logCfg := config.LogConfig{Level: "info", Format: "text"}
	if cfg != nil {
		logCfg = cfg.Log
	}
	logger, closeLog, err := newLogger(logCfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file unavailable, logging to stderr only: %v\n", err)
	}
	defer closeLog()

	if cfgErr != nil {
		logger.Error("configuration invalid, nothing to do", "error", cfgErr)
		return nil
	}
	logger.Info("seiassign starting",
		"version", models.Version,
		"rules", len(rules),
		"term_match", cfg.Engine.TermMatch,
		"handler_match", cfg.Engine.HandlerMatch,
	)

	rec := metrics.New()
	progress := tally.NewProgress()

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	var g errgroup.Group
	if cfg.Status.Addr != "" {
		router := api.NewRouter(srvCtx, cfg.Status, progress, rec, logger, time.Now())
		g.Go(func() error {
			if err := api.Serve(srvCtx, cfg.Status.Addr, router, logger); err != nil {
				logger.Error("status server stopped", "error", err)
			}
			return nil
		})
	}

	var summary *models.Summary
	g.Go(func() error {
		defer stopServer()
		var runErr error
		summary, runErr = engine.RunOnce(ctx, cfg, rules, logger, rec, progress)
		if runErr != nil {
			logger.Error("run ended with error", "error", runErr, "code", summary.Error.Code)
		}
		return nil
	})
	_ = g.Wait()

	if err := report.Write(os.Stdout, summary, cfg.Report.Locale); err != nil {
		logger.Error("failed to print summary", "error", err)
	}

	if cfg.Webhook.URL != "" {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 45*time.Second)
		defer cancel()
		if err := webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret, logger).Notify(wctx, webhook.NewRunEvent(summary)); err != nil {
			logger.Error("run notification not delivered", "error", err)
		}
	}

	logger.Info("seiassign stopped", "assigned", summary.Total())
	return nil
}

// newLogger builds the process logger. Records go to stderr and are
// appended to cfg.File when it is set. The returned func closes the file.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	out := stderr
	closeFn := func() {}
	var openErr error
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = err
		} else {
			out = io.MultiWriter(file, stderr)
			closeFn = func() { _ = file.Close() }
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn, openErr
}
