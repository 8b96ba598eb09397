package middleware

import (
	"net/http"
	"strings"

	"pocketsync/internal/service"

	"github.com/gin-gonic/gin"
)

// OwnerKey is the gin context key holding the authenticated owner id.
const OwnerKey = "owner_id"

// JWT authenticates the request from "Authorization: Bearer <token>" or,
// for clients that cannot set headers, a token query parameter.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); h != "" {
			scheme, value, ok := strings.Cut(h, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				return
			}
			token = strings.TrimSpace(value)
		} else {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		ownerID, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(OwnerKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the owner set by JWT.
func OwnerID(c *gin.Context) (string, bool) {
	v, ok := c.Get(OwnerKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
