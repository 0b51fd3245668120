// Package tally accumulates per-(handler, term) assignment counts.
package tally

import (
	"sort"
	"sync"

	"github.com/use-agent/seiassign/models"
)

// Key identifies one counter cell.
type Key struct {
	Handler string
	Term    string
}

// Counters maps (handler, term) pairs to row counts. The zero value is not
// usable; create with New.
type Counters struct {
	counts map[Key]int
	order  map[Key]int
}

// New creates empty counters. Entries are reported in the order of rules,
// followed by any unknown keys in lexical order.
func New(rules []models.TermRule) *Counters {
	c := &Counters{
		counts: make(map[Key]int),
		order:  make(map[Key]int, len(rules)),
	}
	for i, r := range rules {
		c.order[Key{Handler: r.Handler, Term: r.Term}] = i
	}
	return c
}

// Add increments the counter for k by n. Non-positive n is ignored so
// counters never decrease.
func (c *Counters) Add(k Key, n int) {
	if n <= 0 {
		return
	}
	c.counts[k] += n
}

// Get returns the count for k.
func (c *Counters) Get(k Key) int {
	return c.counts[k]
}

// Merge adds every count of other into c.
func (c *Counters) Merge(other *Counters) {
	if other == nil {
		return
	}
	for k, n := range other.counts {
		c.Add(k, n)
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	clear(c.counts)
}

// Total returns the sum of all counters.
func (c *Counters) Total() int {
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// Clone returns an independent copy of c.
func (c *Counters) Clone() *Counters {
	out := &Counters{
		counts: make(map[Key]int, len(c.counts)),
		order:  c.order,
	}
	for k, v := range c.counts {
		out.counts[k] = v
	}
	return out
}

// Entries lists every configured pair (zero counts included) plus any extra
// non-zero pair, in report order.
func (c *Counters) Entries() []models.SummaryEntry {
	keys := make([]Key, 0, len(c.order)+len(c.counts))
	for k := range c.order {
		keys = append(keys, k)
	}
	for k := range c.counts {
		if _, known := c.order[k]; !known {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iKnown := c.order[keys[i]]
		oj, jKnown := c.order[keys[j]]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown != jKnown:
			return iKnown
		case keys[i].Handler != keys[j].Handler:
			return keys[i].Handler < keys[j].Handler
		default:
			return keys[i].Term < keys[j].Term
		}
	})

	out := make([]models.SummaryEntry, len(keys))
	for i, k := range keys {
		out[i] = models.SummaryEntry{Handler: k.Handler, Term: k.Term, Count: c.counts[k]}
	}
	return out
}

// Run states reported by Progress.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Progress is a concurrency-safe view of a run for readers outside the
// engine goroutine (status API, MCP tool).
type Progress struct {
	mu      sync.RWMutex
	state   string
	runID   string
	page    int
	counts  *Counters
	summary *models.Summary
}

// NewProgress creates a Progress in the idle state.
func NewProgress() *Progress {
	return &Progress{state: StateIdle}
}

// Start marks a new run as running.
func (p *Progress) Start(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateRunning
	p.runID = runID
	p.page = 0
	p.counts = nil
	p.summary = nil
}

// Page records the page currently being processed and a copy of the run
// counters.
func (p *Progress) Page(page int, run *Counters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
	if run != nil {
		p.counts = run.Clone()
	}
}

// Finish stores the final summary.
func (p *Progress) Finish(s *models.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary = s
	if s != nil && s.Error != nil {
		p.state = StateFailed
	} else {
		p.state = StateFinished
	}
}

// Snapshot is a point-in-time copy of a Progress.
type Snapshot struct {
	State   string                `json:"state"`
	RunID   string                `json:"run_id,omitempty"`
	Page    int                   `json:"page"`
	Entries []models.SummaryEntry `json:"entries"`
	Summary *models.Summary       `json:"summary,omitempty"`
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{
		State:   p.state,
		RunID:   p.runID,
		Page:    p.page,
		Summary: p.summary,
	}
	switch {
	case p.summary != nil:
		s.Entries = p.summary.Entries
	case p.counts != nil:
		s.Entries = p.counts.Entries()
	}
	return s
}
