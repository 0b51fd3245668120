package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/tally"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" once the last run failed.
func Health(progress *tally.Progress, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := progress.Snapshot()

		status := "healthy"
		if snap.State == tally.StateFailed {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Run:     snap.State,
			Version: models.Version,
		})
	}
}
