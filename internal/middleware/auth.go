package middleware

import (
	"net/http"
	"strings"

	"github.com/cityperks/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and stores the caller identity
// on the request context.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(jwtSecret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID.String())
		c.Set("user_role", claims.Role)
		if claims.BusinessID != nil {
			c.Set("business_id", claims.BusinessID.String())
		}
		if claims.AdminCity != "" {
			c.Set("admin_city", claims.AdminCity)
		}
		c.Next()
	}
}

// BusinessOwnerMiddleware requires a business owner with an attached
// business.
func BusinessOwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists || role != utils.RoleBusinessOwner {
			c.JSON(http.StatusForbidden, gin.H{"error": "business owner access required"})
			c.Abort()
			return
		}
		if _, exists := c.Get("business_id"); !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "no business associated with this account"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CityAdminMiddleware requires a city-scoped admin
func CityAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists || role != utils.RoleCityAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		if _, exists := c.Get("admin_city"); !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin has no assigned city"})
			c.Abort()
			return
		}
		c.Next()
	}
}
