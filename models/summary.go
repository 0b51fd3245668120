package models

import "time"

// SummaryEntry is one (handler, term) line of a run summary.
type SummaryEntry struct {
	Handler string `json:"handler"`
	Term    string `json:"term"`
	Count   int    `json:"count"`
}

// Summary is the auditable result of one assignment run.
type Summary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Pages      int            `json:"pages"`
	Entries    []SummaryEntry `json:"entries"`
	Error      *ErrorDetail   `json:"error,omitempty"`
}

// Total returns the number of rows assigned across all entries.
func (s *Summary) Total() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Count
	}
	return n
}
