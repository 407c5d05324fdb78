package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"newsbrief/orchestrator"
)

// RegisterAdminRoutes registers administrative endpoints.
func RegisterAdminRoutes(r *gin.Engine, app *orchestrator.App) {
	g := r.Group("/api/admin")
	g.DELETE("/reset", handleReset(app))
}

// RegisterHealthRoutes registers the health probe.
func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

// handleReset clears records, drafts, fingerprints, and the similarity
// index in one operation.
func handleReset(app *orchestrator.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := app.Reset(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset complete"})
	}
}
