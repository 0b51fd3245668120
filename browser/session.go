// Package browser defines the browser capability the assignment engine
// drives, and a go-rod implementation of it.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing before
	// its wait expires.
	ErrElementNotFound = errors.New("element not found")

	// ErrStaleElement indicates that an element was detached by a re-render
	// between lookup and use.
	ErrStaleElement = errors.New("element is stale or detached from the document")
)

// Alert is a JavaScript dialog raised by the page.
type Alert struct {
	Text string
}

// Session is a single, sequentially used browser tab. Every method blocks
// until its wait condition resolves or the timeout (or ctx) expires.
type Session interface {
	// Navigate loads url.
	Navigate(ctx context.Context, url string) error

	// Back goes one entry back in history and waits for the document.
	Back(ctx context.Context) error

	// WaitReady waits until document.readyState is complete.
	WaitReady(ctx context.Context) error

	// WaitVisible waits for selector to be present and visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether selector appears within timeout. Absence is a
	// normal result, not an error.
	Exists(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// Click waits for selector to be interactable and clicks it.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Fill replaces the value of the input matched by selector.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error

	// OuterHTML returns the outer HTML of the first match of selector.
	OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// SetChecked scrolls the checkbox into view, sets its checked state and
	// dispatches click/change events when the state changed. It returns the
	// state read back from the element.
	SetChecked(ctx context.Context, selector string, checked bool) (bool, error)

	// Options lists the trimmed labels of a <select>.
	Options(ctx context.Context, selector string, timeout time.Duration) ([]string, error)

	// SelectOption selects the option whose trimmed label equals label.
	SelectOption(ctx context.Context, selector, label string, timeout time.Duration) error

	// TryAlert waits up to within for a dialog. A dialog found is accepted
	// and returned with ok set.
	TryAlert(ctx context.Context, within time.Duration) (alert Alert, ok bool)

	// Close releases the tab and the browser behind it.
	Close() error
}
