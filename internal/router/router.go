package router

import (
	"github.com/gin-gonic/gin"

	"docbench/internal/handler"
	"docbench/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	parseH *handler.ParseHandler,
	healthH *handler.HealthHandler,
	allowedOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(allowedOrigins))

	// Health check
	r.GET("/healthz", healthH.Liveness)

	v1 := r.Group("/api/v1")
	v1.GET("/providers", parseH.Providers)
	v1.POST("/parse", parseH.Parse)
	v1.POST("/parse/export", parseH.Export)

	return r
}
