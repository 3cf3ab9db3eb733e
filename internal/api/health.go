package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func healthHandler(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   ServiceName,
			"version":   Version,
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	}
}

func rootHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "Reporting Service",
			"version": Version,
			"endpoints": gin.H{
				"templates":   "/templates",
				"reports":     "/reports",
				"schedules":   "/schedules",
				"exports":     "/exports",
				"metrics":     "/metrics",
				"access_logs": "/access-logs",
				"health":      "/health",
			},
		})
	}
}
