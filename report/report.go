// Package report renders the run summary printed at the end of a run.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/use-agent/seiassign/models"
)

// Supported locales.
const (
	LocalePTBR = "pt-BR"
	LocaleEN   = "en"
)

var (
	ptWeekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
	ptMonths   = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
)

// Normalize maps a locale name to a supported locale, defaulting to pt-BR.
func Normalize(locale string) string {
	l := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if l == "en" || strings.HasPrefix(l, "en-") {
		return LocaleEN
	}
	return LocalePTBR
}

// Header returns the timestamp banner that opens a summary.
func Header(t time.Time, locale string) string {
	var stamp string
	switch Normalize(locale) {
	case LocaleEN:
		stamp = t.Format("Monday, January 2, 2006 at 15:04:05")
	default:
		stamp = fmt.Sprintf("%s, %d de %s de %d, às %s",
			ptWeekdays[t.Weekday()], t.Day(), ptMonths[t.Month()-1], t.Year(), t.Format("15:04:05"))
	}
	return "==== " + stamp + " ===="
}

// Line formats one (handler, term) count.
func Line(e models.SummaryEntry, locale string) string {
	if Normalize(locale) == LocaleEN {
		return fmt.Sprintf("- %d assignments for '%s' (%s)", e.Count, e.Term, e.Handler)
	}
	return fmt.Sprintf("- %d atribuições para '%s' (%s)", e.Count, e.Term, e.Handler)
}

// Write prints the summary: the banner stamped with the run's finish time,
// one line per entry and, for a failed run, the error code.
func Write(w io.Writer, s *models.Summary, locale string) error {
	at := s.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	b.WriteString(Header(at, locale))
	b.WriteByte('\n')
	for _, e := range s.Entries {
		b.WriteString(Line(e, locale))
		b.WriteByte('\n')
	}
	if s.Error != nil {
		if Normalize(locale) == LocaleEN {
			fmt.Fprintf(&b, "! run interrupted: %s\n", s.Error.Code)
		} else {
			fmt.Fprintf(&b, "! execução interrompida: %s\n", s.Error.Code)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
