package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/tally"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, keys []string, progress *tally.Progress, rec *metrics.Recorder) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.StatusConfig{APIKeys: keys, RequestsPerSecond: 100, Burst: 100}
	return NewRouter(ctx, cfg, progress, rec, quietLogger(), time.Now())
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	progress := tally.NewProgress()
	h := newTestRouter(t, []string{"k1"}, progress, nil)

	w := get(h, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, tally.StateIdle, body.Run)

	progress.Start("r1")
	progress.Finish(&models.Summary{RunID: "r1", Error: &models.ErrorDetail{Code: models.ErrCodeStructural}})
	w = get(h, "/api/v1/health")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestSummary_RequiresKey(t *testing.T) {
	h := newTestRouter(t, []string{"k1"}, tally.NewProgress(), nil)

	w := get(h, "/api/v1/summary")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeUnauthorized)

	w = get(h, "/api/v1/summary", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(h, "/api/v1/summary", "Authorization", "Bearer k1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSummary_ReportsLiveCounters(t *testing.T) {
	rules := []models.TermRule{{Term: "Parecer", Handler: "alice"}}
	run := tally.New(rules)
	run.Add(tally.Key{Handler: "alice", Term: "Parecer"}, 2)

	progress := tally.NewProgress()
	progress.Start("r1")
	progress.Page(3, run)
	h := newTestRouter(t, nil, progress, nil)

	w := get(h, "/api/v1/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var snap tally.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, tally.StateRunning, snap.State)
	assert.Equal(t, "r1", snap.RunID)
	assert.Equal(t, 3, snap.Page)
	assert.Equal(t, []models.SummaryEntry{{Handler: "alice", Term: "Parecer", Count: 2}}, snap.Entries)
}

func TestSummary_RateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.StatusConfig{RequestsPerSecond: 0.001, Burst: 1}
	h := NewRouter(ctx, cfg, tally.NewProgress(), nil, quietLogger(), time.Now())

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/summary").Code)
	w := get(h, "/api/v1/summary")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeRateLimited)
}

func TestMetrics(t *testing.T) {
	rec := metrics.New()
	rec.Assigned("alice", "Parecer", 2)
	h := newTestRouter(t, []string{"k1"}, tally.NewProgress(), rec)

	w := get(h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `seiassign_assigned_rows_total{handler="alice",term="Parecer"} 2`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, newTestRouter(t, nil, tally.NewProgress(), nil), quietLogger())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "healthy")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
