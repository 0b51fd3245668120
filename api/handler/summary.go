package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/seiassign/models"
	"github.com/use-agent/seiassign/tally"
)

// Summary returns a handler for GET /api/v1/summary: the live counters of
// the current run, or the final summary once it ended.
func Summary(progress *tally.Progress) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := progress.Snapshot()
		if snap.Entries == nil {
			snap.Entries = []models.SummaryEntry{}
		}
		c.JSON(http.StatusOK, snap)
	}
}
