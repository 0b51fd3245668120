package engine

import (
	"fmt"
	"strings"
)

// Term matching strategies.
const (
	TermMatchExact    = "exact"
	TermMatchContains = "contains"
)

// Handler matching strategies.
const (
	HandlerMatchExact  = "exact"
	HandlerMatchPrefix = "prefix"
)

// TermMatcher decides whether a table cell's text matches a term.
type TermMatcher func(cellText, term string) bool

// HandlerMatcher picks the dialog option for a handler. It returns the
// chosen label and whether one was found.
type HandlerMatcher func(options []string, handler string) (string, bool)

// NewTermMatcher returns the strategy named by mode.
func NewTermMatcher(mode string) (TermMatcher, error) {
	switch mode {
	case TermMatchExact, "":
		return func(cellText, term string) bool {
			return normalizeSpace(cellText) == normalizeSpace(term)
		}, nil
	case TermMatchContains:
		return func(cellText, term string) bool {
			t := normalizeSpace(term)
			return t != "" && strings.Contains(normalizeSpace(cellText), t)
		}, nil
	default:
		return nil, fmt.Errorf("unknown term match strategy %q", mode)
	}
}

// NewHandlerMatcher returns the strategy named by mode.
func NewHandlerMatcher(mode string) (HandlerMatcher, error) {
	switch mode {
	case HandlerMatchExact, "":
		return func(options []string, handler string) (string, bool) {
			want := normalizeSpace(handler)
			for _, opt := range options {
				if normalizeSpace(opt) == want {
					return opt, true
				}
			}
			return "", false
		}, nil
	case HandlerMatchPrefix:
		return func(options []string, handler string) (string, bool) {
			want := strings.ToLower(normalizeSpace(handler))
			if want == "" {
				return "", false
			}
			for _, opt := range options {
				if strings.HasPrefix(strings.ToLower(normalizeSpace(opt)), want) {
					return opt, true
				}
			}
			return "", false
		}, nil
	default:
		return nil, fmt.Errorf("unknown handler match strategy %q", mode)
	}
}

// normalizeSpace trims s and collapses inner whitespace runs, including
// non-breaking spaces, to one space.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
