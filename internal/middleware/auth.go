package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth gates a route group behind the administrative bearer token.
// The check is a single boolean gate evaluated before any pipeline work;
// there is no finer-grained permission model here. An empty configured
// token leaves the gate open, which config validation only permits in
// development.
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "UNAUTHORIZED",
					"message":    "Missing or malformed Authorization header",
					"request_id": GetRequestID(c),
				},
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			if log := GetLogger(c); log != nil {
				log.Warn("Admin token rejected", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":       "FORBIDDEN",
					"message":    "Administrative access required",
					"request_id": GetRequestID(c),
				},
			})
			return
		}

		c.Next()
	}
}
