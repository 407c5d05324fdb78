package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"newsbrief/orchestrator"
)

// RegisterDraftRoutes registers draft lookup endpoints.
func RegisterDraftRoutes(r *gin.Engine, app *orchestrator.App) {
	g := r.Group("/api/drafts")
	g.GET("/:recordId", handleGetDrafts(app))
}

// handleGetDrafts returns every platform draft created for a record.
func handleGetDrafts(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("recordId")
		drafts, err := app.Drafts(c.Request.Context(), recordID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(drafts) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no drafts for record " + recordID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record_id": recordID, "drafts": drafts})
	}
}
