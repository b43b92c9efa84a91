package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is used for context keys to avoid collisions
type ContextKey string

// ClaimsKey is the gin context key the verified claims are stored under.
const ClaimsKey ContextKey = "auth_claims"

// Middleware guards gin routes with bearer-token authentication.
type Middleware struct {
	service *Service
	enabled bool
}

func NewMiddleware(service *Service, enabled bool) *Middleware {
	return &Middleware{service: service, enabled: enabled}
}

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		claims, err := m.service.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Invalid credentials",
			})
			c.Abort()
			return
		}
		c.Set(string(ClaimsKey), claims)
		c.Next()
	}
}

// ClaimsFrom extracts the verified claims set by GinAuth, if any.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(string(ClaimsKey))
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
