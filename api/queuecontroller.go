package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"newsbrief/orchestrator"
)

// RegisterQueueRoutes registers pending-queue endpoints.
func RegisterQueueRoutes(r *gin.Engine, app *orchestrator.App) {
	g := r.Group("/api/queue")
	g.GET("/pending", handlePendingRecords(app))
	g.POST("/process", handleProcessQueue(app))
}

func limitParam(c *gin.Context, fallback int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// handlePendingRecords lists Pending records, newest published first.
func handlePendingRecords(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := app.PendingRecords(c.Request.Context(), limitParam(c, app.BatchSize()))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
	}
}

// handleProcessQueue drains pending records through the research loop.
// Records that abort stay Pending and are reported by omission.
func handleProcessQueue(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcomes, err := app.ProcessQueue(c.Request.Context(), limitParam(c, app.BatchSize()))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		processed := make([]gin.H, 0, len(outcomes))
		for _, o := range outcomes {
			processed = append(processed, gin.H{
				"record_id":  o.RecordID,
				"iterations": o.Iterations,
				"drafts":     len(o.Drafts),
			})
		}
		c.JSON(http.StatusOK, gin.H{"processed": len(outcomes), "results": processed})
	}
}
