package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/auth"
)

// AuthMiddleware validates JWT tokens and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		// Check if Authorization header exists and has Bearer format
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respondMessage(c, http.StatusUnauthorized, "authorization header required")
			c.Abort()
			return
		}

		userID, claims, err := auth.Authenticate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			respondMessage(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		// Set user ID (as UUID), username and role in context
		c.Set("userID", userID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}
