// Package main provides an MCP server over stdio that lets an agent check
// the configuration and trigger assignment runs.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/engine"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/report"
	"github.com/use-agent/seiassign/tally"
	"github.com/use-agent/seiassign/webhook"
)

// runner serialises runs: the console session is single-user.
type runner struct {
	mu       sync.Mutex
	logger   *slog.Logger
	metrics  *metrics.Recorder
	progress *tally.Progress
}

func main() {
	if err := config.LoadDotEnv(envOr("SEIASSIGN_ENV_FILE", ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "env file: %v\n", err)
		os.Exit(1)
	}
	logger, closeLog := newLogger(config.Load().Log)
	defer closeLog()

	rn := &runner{
		logger:   logger,
		metrics:  metrics.New(),
		progress: tally.NewProgress(),
	}

	s := server.NewMCPServer(
		"seiassign",
		models.Version,
		server.WithToolCapabilities(false),
	)

	validateTool := mcp.NewTool("validate_terms",
		mcp.WithDescription("Load the SEI console configuration and the term file and list the term → handler rules. Does not start a browser."),
		mcp.WithString("terms_file",
			mcp.Description("Path of the term file (default: $SEIASSIGN_TERMS_FILE or termos_acoes.json)"),
		),
	)
	s.AddTool(validateTool, handleValidate())

	runTool := mcp.NewTool("run_assignment",
		mcp.WithDescription("Sign in to the SEI console, assign every unassigned work-queue row matching a configured term to its handler and return the per-handler counts. Only one run executes at a time."),
		mcp.WithString("terms_file",
			mcp.Description("Path of the term file (default: $SEIASSIGN_TERMS_FILE or termos_acoes.json)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of work-queue pages to visit (default: configured value, 0 = all)"),
		),
	)
	s.AddTool(runTool, rn.handleRun())

	statusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Report the state and live counters of the current or last run."),
	)
	s.AddTool(statusTool, rn.handleStatus())

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(termsFile string) (*config.Config, []models.TermRule, error) {
	cfg := config.Load()
	if termsFile != "" {
		cfg.TermsFile = termsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	rules, err := config.LoadTerms(cfg.TermsFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rules, nil
}

func handleValidate() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg, rules, err := loadConfig(request.GetString("terms_file", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Console: %s (user %s)\n", cfg.Console.URL, cfg.Console.Username)
		fmt.Fprintf(&b, "Term matching: %s, handler matching: %s\n", cfg.Engine.TermMatch, cfg.Engine.HandlerMatch)
		fmt.Fprintf(&b, "%d rules:\n", len(rules))
		for _, r := range rules {
			fmt.Fprintf(&b, "- '%s' → %s\n", r.Term, r.Handler)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func (rn *runner) handleRun() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !rn.mu.TryLock() {
			return mcp.NewToolResultError("a run is already in progress; use run_status to follow it"), nil
		}
		defer rn.mu.Unlock()

		cfg, rules, err := loadConfig(request.GetString("terms_file", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if maxPages := request.GetInt("max_pages", -1); maxPages >= 0 {
			cfg.Engine.MaxPages = maxPages
		}

		summary, runErr := engine.RunOnce(ctx, cfg, rules, rn.logger, rn.metrics, rn.progress)
		if runErr != nil {
			rn.logger.Error("run ended with error", "error", runErr)
		}

		if cfg.Webhook.URL != "" {
			done := webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret, rn.logger).
				NotifyAsync(context.WithoutCancel(ctx), webhook.NewRunEvent(summary))
			go func() {
				if err := <-done; err != nil {
					rn.logger.Error("run notification not delivered", "error", err)
				}
			}()
		}

		var text bytes.Buffer
		if err := report.Write(&text, summary, cfg.Report.Locale); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to render summary: %v", err)), nil
		}
		body, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		text.WriteString("\n")
		text.Write(body)

		if runErr != nil {
			return mcp.NewToolResultError(text.String()), nil
		}
		return mcp.NewToolResultText(text.String()), nil
	}
}

func (rn *runner) handleStatus() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := json.MarshalIndent(rn.progress.Snapshot(), "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// newLogger logs to stderr and the configured file; stdout carries the
// MCP protocol.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Level))

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			out = io.MultiWriter(f, os.Stderr)
			closeFn = func() { _ = f.Close() }
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
