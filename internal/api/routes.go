package api

import (
	"github.com/gin-gonic/gin"

	"github.com/CloudCabinet/Drive-Service/internal/api/handlers"
	"github.com/CloudCabinet/Drive-Service/internal/api/middleware"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

func RegisterRoutes(r *gin.Engine, sessions middleware.SessionResolver) {
	// Enable CORS for preflight requests
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.POST("/auth/login", handlers.Login)

		authed := api.Group("", middleware.RequireSession(sessions))
		{
			authed.POST("/auth/logout", handlers.Logout)

			// Filesystem endpoints
			authed.GET("/files", handlers.ListFiles)             // list one directory level
			authed.POST("/files", handlers.UploadFile)           // upload a file
			authed.GET("/files/download", handlers.DownloadFile) // signed download URL
			authed.POST("/files/copy", handlers.CopyObject)      // copy file or tree
			authed.DELETE("/files", handlers.DeleteObject)       // delete file or tree
			authed.POST("/folders", handlers.CreateFolder)       // create folder marker

			authed.GET("/activity", handlers.GetActivity)
			authed.GET("/stats", handlers.GetStats)
			authed.POST("/admin/reconcile", handlers.Reconcile)
		}
	}
}
