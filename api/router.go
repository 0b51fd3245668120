// Package api serves the read-only status API of a running bot.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/seiassign/api/handler"
	"github.com/use-agent/seiassign/api/middleware"
	"github.com/use-agent/seiassign/config"
	"github.com/use-agent/seiassign/metrics"
	"github.com/use-agent/seiassign/tally"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestLog
//	API:     Auth (if keys are set) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
// ctx bounds the rate limiter's cleanup goroutine.
func NewRouter(ctx context.Context, cfg config.StatusConfig, progress *tally.Progress, rec *metrics.Recorder, logger *slog.Logger, startTime time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLog(logger))

	if reg := rec.Registry(); reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(progress, startTime))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.APIKeys, logger))
	protected.Use(middleware.RateLimit(ctx, cfg.RequestsPerSecond, cfg.Burst))
	protected.GET("/summary", handler.Summary(progress))

	return r
}

// Serve listens on addr until ctx is done, then gives in-flight requests
// 5 seconds to complete.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server forced shutdown", "error", err)
		return err
	}
	logger.Info("status server drained gracefully")
	return <-errCh
}
