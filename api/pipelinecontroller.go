package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsbrief/orchestrator"
	"newsbrief/types"
)

// RegisterPipelineRoutes registers pipeline endpoints.
func RegisterPipelineRoutes(r *gin.Engine, app *orchestrator.App) {
	g := r.Group("/api/pipeline")
	g.POST("/run", handleRunPipeline(app))
	g.GET("/report", handlePipelineReport(app))
}

// handleRunPipeline triggers one fetch + deduplication cycle and returns
// its report. Concurrent runs are rejected; a backing-store failure
// surfaces as 502 with the partial report.
func handleRunPipeline(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := app.RunPipeline(c.Request.Context())
		if errors.Is(err, orchestrator.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, types.ErrStoreUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": report})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// handlePipelineReport returns the report of the most recent run.
func handlePipelineReport(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := app.LastReport()
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pipeline run yet"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
