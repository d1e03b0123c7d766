package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Paths that don't require an API key.
var exemptPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// APIKeyAuth checks the X-API-Key header against the configured key.
// When no key is configured, enforcement is skipped (dev mode).
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || exemptPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if c.GetHeader("X-API-Key") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing or invalid API key"})
			return
		}

		c.Next()
	}
}
