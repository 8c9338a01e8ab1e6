package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyMiddleware guards organizer management endpoints with a static
// API key passed in the X-Admin-API-Key header.
func AdminKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-API-Key") != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid admin API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
