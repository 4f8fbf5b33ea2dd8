package auth

import (
	"net/http"
	"strings"

	"crypto-exchange-bot/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminIDKey = "admin_id"

// AdminSet is the configured list of admin ids
type AdminSet map[int64]struct{}

func NewAdminSet(ids []int64) AdminSet {
	set := make(AdminSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is an admin
func (s AdminSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// AuthMiddleware validates the bearer token and rejects tokens of users
// that are no longer admins
func AuthMiddleware(admins AdminSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Expected: Bearer <token>",
			})
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			logger.Log.Debug("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		if !admins.Contains(claims.AdminID) {
			logger.Log.Warn("token of non-admin rejected", zap.Int64("admin_id", claims.AdminID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}

		c.Set(adminIDKey, claims.AdminID)
		c.Next()
	}
}

// GetAdminID retrieves the admin id from the context
func GetAdminID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(adminIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
