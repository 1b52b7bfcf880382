package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CityHeader carries the tenant city resolved by the upstream gateway
const CityHeader = "X-CityPerks-City"

// TenantMiddleware reads the city resolved upstream. The engine trusts it
// as already validated and never re-derives tenancy from client input.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		city := c.GetHeader(CityHeader)
		if city == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant city not resolved"})
			c.Abort()
			return
		}
		c.Set("city", city)
		c.Next()
	}
}
