package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mwork_attachments/internal/handlers"
	"mwork_attachments/internal/logger"
)

// RegisterRoutes registers every HTTP route.
func RegisterRoutes(ginRouter *gin.Engine, appHandlers *handlers.AppHandlers) {
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := ginRouter.Group("/api/v1")
	{
		appHandlers.EntityHandler.RegisterRoutes(api)
		appHandlers.FileHandler.RegisterAPIRoutes(api)
	}

	appHandlers.FileHandler.RegisterRoutes(ginRouter)

	logger.Info("HTTP routes registered", "routes", len(ginRouter.Routes()))
}
