// Package metrics exposes run counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the collectors of one process. All methods are safe on a
// nil *Recorder, which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	assignedRows   *prometheus.CounterVec
	commits        *prometheus.CounterVec
	retries        *prometheus.CounterVec
	pagesProcessed prometheus.Counter
	runs           *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		assignedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seiassign",
			Name:      "assigned_rows_total",
			Help:      "Rows selected and committed to a handler.",
		}, []string{"handler", "term"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seiassign",
			Name:      "assignment_commits_total",
			Help:      "Assignment dialog commits by outcome.",
		}, []string{"handler", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seiassign",
			Name:      "retries_total",
			Help:      "Failed attempts that were retried, by operation.",
		}, []string{"operation"}),
		pagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seiassign",
			Name:      "pages_processed_total",
			Help:      "Work-queue pages fully processed.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seiassign",
			Name:      "runs_total",
			Help:      "Completed runs by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.assignedRows, r.commits, r.retries, r.pagesProcessed, r.runs)
	return r
}

// Registry returns the registry for HTTP exposition.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Assigned records n committed rows for (handler, term).
func (r *Recorder) Assigned(handler, term string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.assignedRows.WithLabelValues(handler, term).Add(float64(n))
}

// Commit records one assignment commit outcome: "ok", "handler_not_found"
// or "failed".
func (r *Recorder) Commit(handler, outcome string) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(handler, outcome).Inc()
}

// Retry records a retried attempt. Its signature matches retry.Policy.OnRetry.
func (r *Recorder) Retry(operation string, _ int, _ error) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(operation).Inc()
}

// PageProcessed records one processed page.
func (r *Recorder) PageProcessed() {
	if r == nil {
		return
	}
	r.pagesProcessed.Inc()
}

// RunFinished records a run outcome: "ok" or "failed".
func (r *Recorder) RunFinished(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}
