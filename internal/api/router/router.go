package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/papertrap/papertrap/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "papertrap",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", jobHandler.GetStatus)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List recently observed jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get one job's outcome
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	return r
}
