package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/models"
	"github.com/ysmood/gson"
	"golang.org/x/time/rate"
)

// readyTimeout bounds WaitReady.
const readyTimeout = 10 * time.Second

// userAgents is rotated per launch.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// RodSession is a Session backed by a dedicated Chromium launched through
// go-rod. It is not safe for concurrent use.
type RodSession struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	router      *rod.HijackRouter
	limiter     *rate.Limiter
	waitTimeout time.Duration
	logger      *slog.Logger

	alerts     chan string
	stopEvents context.CancelFunc
	closeOnce  sync.Once
}

var _ Session = (*RodSession)(nil)

// Launch starts a browser, opens one tab and prepares it for the console:
// automation markers removed, stealth script installed, blocked resource
// types hijacked and dialogs auto-accepted into the alert queue.
func Launch(ctx context.Context, cfg config.BrowserConfig, waitTimeout time.Duration, logger *slog.Logger) (*RodSession, error) {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Anti-automation flags ────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("start-maximized"))
	l.Set(flags.Flag("user-agent"), userAgents[rand.IntN(len(userAgents))])

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAssignError(models.ErrCodeUnexpected, "failed to launch browser", err)
	}
	logger.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewAssignError(models.ErrCodeUnexpected, "failed to connect to browser", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewAssignError(models.ErrCodeUnexpected, "failed to open tab", err)
	}

	// Stealth must be installed before the first navigation.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	s := &RodSession{
		launcher:    l,
		browser:     b,
		page:        page,
		router:      setupHijack(page, cfg.BlockedResourceTypes),
		limiter:     newLimiter(cfg.ActionsPerSecond, cfg.ActionBurst),
		waitTimeout: waitTimeout,
		logger:      logger,
		alerts:      make(chan string, 8),
	}

	evCtx, cancel := context.WithCancel(context.Background())
	s.stopEvents = cancel
	go page.Context(evCtx).EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		s.onDialog(e)
	})()

	return s, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// onDialog accepts every dialog immediately so that the action that raised
// it does not block, and queues its text for TryAlert.
func (s *RodSession) onDialog(e *proto.PageJavascriptDialogOpening) {
	select {
	case s.alerts <- e.Message:
	default:
		s.logger.Warn("alert queue full, dropping dialog", "text", e.Message)
	}
	if err := (proto.PageHandleJavaScriptDialog{Accept: true}).Call(s.page); err != nil {
		s.logger.Warn("failed to accept dialog", "error", err)
	}
}

func (s *RodSession) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return categorizeError(err, "navigation failed")
	}
	return s.WaitReady(ctx)
}

func (s *RodSession) Back(ctx context.Context) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Context(ctx).NavigateBack(); err != nil {
		return categorizeError(err, "history back failed")
	}
	return s.WaitReady(ctx)
}

func (s *RodSession) WaitReady(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	err := s.page.Context(tctx).Wait(rod.Eval(`() => document.readyState === 'complete'`))
	if err != nil {
		return categorizeError(err, "document did not become ready")
	}
	return nil
}

// element waits up to timeout for selector and returns it bound to ctx.
func (s *RodSession) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := s.page.Context(tctx).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, categorizeError(err, "element lookup failed")
	}
	return el.Context(ctx), nil
}

func (s *RodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := el.Context(tctx).WaitVisible(); err != nil {
		return categorizeError(err, "element did not become visible: "+selector)
	}
	return nil
}

func (s *RodSession) Exists(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		has, _, err := s.page.Context(ctx).Has(selector)
		if err != nil {
			return false, categorizeError(err, "element lookup failed")
		}
		return has, nil
	}
	_, err := s.element(ctx, selector, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrElementNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *RodSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := el.Context(tctx).WaitVisible(); err != nil {
		return categorizeError(err, "element not clickable: "+selector)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return categorizeError(err, "click failed: "+selector)
	}
	return nil
}

func (s *RodSession) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`() => { this.value = '' }`); err != nil {
		return categorizeError(err, "clear failed: "+selector)
	}
	if err := el.Input(value); err != nil {
		return categorizeError(err, "input failed: "+selector)
	}
	return nil
}

func (s *RodSession) OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", categorizeError(err, "read html failed: "+selector)
	}
	return html, nil
}

// setCheckedJS clicks the checkbox so page handlers observe the change and
// falls back to a direct mutation plus change event if the click did not
// stick.
const setCheckedJS = `(want) => {
	if (this.checked !== want) this.click();
	if (this.checked !== want) {
		this.checked = want;
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}
	return this.checked;
}`

func (s *RodSession) SetChecked(ctx context.Context, selector string, checked bool) (bool, error) {
	if err := s.pace(ctx); err != nil {
		return false, err
	}
	el, err := s.element(ctx, selector, s.waitTimeout)
	if err != nil {
		return false, err
	}
	if err := el.ScrollIntoView(); err != nil {
		return false, categorizeError(err, "scroll failed: "+selector)
	}
	res, err := el.Eval(setCheckedJS, checked)
	if err != nil {
		return false, categorizeError(err, "toggle failed: "+selector)
	}
	return res.Value.Bool(), nil
}

func (s *RodSession) Options(ctx context.Context, selector string, timeout time.Duration) ([]string, error) {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}
	res, err := el.Eval(`() => Array.from(this.options).map(o => o.text.trim())`)
	if err != nil {
		return nil, categorizeError(err, "read options failed: "+selector)
	}
	return jsonStrings(res.Value), nil
}

const selectOptionJS = `(label) => {
	const opt = Array.from(this.options).find(o => o.text.trim() === label);
	if (!opt) return false;
	opt.selected = true;
	this.value = opt.value;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

func (s *RodSession) SelectOption(ctx context.Context, selector, label string, timeout time.Duration) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	res, err := el.Eval(selectOptionJS, label)
	if err != nil {
		return categorizeError(err, "select option failed: "+selector)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: option %q in %s", ErrElementNotFound, label, selector)
	}
	return nil
}

func (s *RodSession) TryAlert(ctx context.Context, within time.Duration) (Alert, bool) {
	select {
	case text := <-s.alerts:
		return Alert{Text: text}, true
	default:
	}
	if within <= 0 {
		return Alert{}, false
	}

	timer := time.NewTimer(within)
	defer timer.Stop()
	select {
	case text := <-s.alerts:
		return Alert{Text: text}, true
	case <-timer.C:
		return Alert{}, false
	case <-ctx.Done():
		return Alert{}, false
	}
}

// Close stops the event listener and the hijack router, closes the browser
// and kills the process. Safe to call more than once.
func (s *RodSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopEvents()
		if s.router != nil {
			_ = s.router.Stop()
		}
		err = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.logger.Info("browser closed")
	})
	return err
}

// jsonStrings converts a JS array value to a Go string slice.
func jsonStrings(v gson.JSON) []string {
	arr := v.Arr()
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, item.Str())
	}
	return out
}

// staleMarkers are CDP error fragments raised when a node was detached or its
// execution context replaced by a re-render.
var staleMarkers = []string{
	"Could not find node with given id",
	"does not belong to the document",
	"Cannot find context with specified id",
	"Node is detached from document",
}

// categorizeError wraps raw rod errors into typed AssignErrors so the engine
// can tell transient UI faults apart.
func categorizeError(err error, msg string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	text := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(text, m) {
			return models.NewAssignError(models.ErrCodeTransientUI, msg, fmt.Errorf("%w: %v", ErrStaleElement, err))
		}
	}
	return models.NewAssignError(models.ErrCodeTransientUI, msg, err)
}
