package api

import (
	"github.com/gin-gonic/gin"

	"newsbrief/orchestrator"
)

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(app *orchestrator.App) *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	RegisterPipelineRoutes(r, app)
	RegisterQueueRoutes(r, app)
	RegisterDraftRoutes(r, app)
	RegisterAdminRoutes(r, app)
	RegisterHealthRoutes(r)
	return r
}
