package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/seiassign/models"
)

// Config holds all application configuration.
type Config struct {
	Console ConsoleConfig
	Browser BrowserConfig
	Engine  EngineConfig
	Log     LogConfig
	Status  StatusConfig
	Webhook WebhookConfig
	Report  ReportConfig

	// TermsFile is the path of the term → handler mapping.
	TermsFile string // default: "termos_acoes.json"
}

// ConsoleConfig locates and authenticates against the SEI console.
type ConsoleConfig struct {
	URL      string
	Username string
	Password string
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// ActionsPerSecond paces UI interactions; 0 disables pacing.
	ActionsPerSecond float64 // default: 10

	// ActionBurst is the number of interactions allowed back to back.
	ActionBurst int // default: 5
}

// EngineConfig controls matching, waits and pagination.
type EngineConfig struct {
	// TermMatch is the cell matching strategy: "exact" or "contains".
	TermMatch string // default: "exact"

	// HandlerMatch is the dialog option matching strategy: "exact" or "prefix".
	HandlerMatch string // default: "exact"

	// MaxPages caps the number of pages visited; 0 means no cap.
	MaxPages int // default: 0

	// PageRetries is how many extra rounds a failing page after the first
	// gets before the traversal skips past it.
	PageRetries int // default: 3

	// WaitTimeout bounds every element wait.
	WaitTimeout time.Duration // default: 10s

	// LastPageWait bounds the wait for the next-page control.
	LastPageWait time.Duration // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	// File is appended to, never truncated. Empty logs to stderr only.
	File   string // default: "seiassign.log"
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// StatusConfig controls the optional status HTTP server.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string

	// APIKeys protects /api/v1/summary; empty means open access.
	APIKeys []string

	// RequestsPerSecond is the sustained rate per API key or client IP.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key or client IP.
	Burst int // default: 10
}

// WebhookConfig controls run notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// ReportConfig controls the console summary.
type ReportConfig struct {
	Locale string // "pt-BR" or "en"; default: "pt-BR"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Console: ConsoleConfig{
			URL:      os.Getenv("SEI_URL"),
			Username: firstEnv("SEI_USERNAME", "USERNAME"),
			Password: firstEnv("SEI_PASSWORD", "PASSWORD"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("SEIASSIGN_HEADLESS", true),
			NoSandbox:            envBoolOr("SEIASSIGN_NO_SANDBOX", true),
			BrowserBin:           os.Getenv("SEIASSIGN_BROWSER_BIN"),
			Proxy:                os.Getenv("SEIASSIGN_PROXY"),
			BlockedResourceTypes: envSliceOr("SEIASSIGN_BLOCKED_RESOURCES", []string{"Font", "Media"}),
			ActionsPerSecond:     envFloatOr("SEIASSIGN_ACTIONS_PER_SECOND", 10),
			ActionBurst:          envIntOr("SEIASSIGN_ACTION_BURST", 5),
		},
		Engine: EngineConfig{
			TermMatch:    strings.ToLower(envOr("SEIASSIGN_TERM_MATCH", "exact")),
			HandlerMatch: strings.ToLower(envOr("SEIASSIGN_HANDLER_MATCH", "exact")),
			MaxPages:     envIntOr("SEIASSIGN_MAX_PAGES", 0),
			PageRetries:  envIntOr("SEIASSIGN_PAGE_RETRIES", 3),
			WaitTimeout:  envDurationOr("SEIASSIGN_WAIT_TIMEOUT", 10*time.Second),
			LastPageWait: envDurationOr("SEIASSIGN_LAST_PAGE_WAIT", 10*time.Second),
		},
		Log: LogConfig{
			File:   envOr("SEIASSIGN_LOG_FILE", "seiassign.log"),
			Level:  envOr("SEIASSIGN_LOG_LEVEL", "info"),
			Format: envOr("SEIASSIGN_LOG_FORMAT", "text"),
		},
		Status: StatusConfig{
			Addr:              os.Getenv("SEIASSIGN_STATUS_ADDR"),
			APIKeys:           envSliceOr("SEIASSIGN_STATUS_KEYS", nil),
			RequestsPerSecond: envFloatOr("SEIASSIGN_STATUS_RPS", 5),
			Burst:             envIntOr("SEIASSIGN_STATUS_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("SEIASSIGN_WEBHOOK_URL"),
			Secret: os.Getenv("SEIASSIGN_WEBHOOK_SECRET"),
		},
		Report: ReportConfig{
			Locale: envOr("SEIASSIGN_LOCALE", "pt-BR"),
		},
		TermsFile: envOr("SEIASSIGN_TERMS_FILE", "termos_acoes.json"),
	}
}

// Validate checks the inputs a run cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Console.URL) == "" {
		return models.ConfigError("SEI_URL is missing or empty")
	}
	if strings.TrimSpace(c.Console.Username) == "" {
		return models.ConfigError("SEI_USERNAME is missing or empty")
	}
	if c.Console.Password == "" {
		return models.ConfigError("SEI_PASSWORD is missing or empty")
	}
	switch c.Engine.TermMatch {
	case "exact", "contains":
	default:
		return models.ConfigError("SEIASSIGN_TERM_MATCH must be exact or contains, got %q", c.Engine.TermMatch)
	}
	switch c.Engine.HandlerMatch {
	case "exact", "prefix":
	default:
		return models.ConfigError("SEIASSIGN_HANDLER_MATCH must be exact or prefix, got %q", c.Engine.HandlerMatch)
	}
	if c.Engine.MaxPages < 0 {
		return models.ConfigError("SEIASSIGN_MAX_PAGES must not be negative")
	}
	if c.Engine.PageRetries < 0 {
		return models.ConfigError("SEIASSIGN_PAGE_RETRIES must not be negative")
	}
	if c.Engine.WaitTimeout <= 0 || c.Engine.LastPageWait <= 0 {
		return models.ConfigError("wait timeouts must be positive")
	}
	return nil
}

// --- helper functions ---

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
