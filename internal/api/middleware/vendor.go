package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

// VendorAdminMiddleware returns a Gin middleware that requires vendor admin
// privileges. Must run after AuthMiddleware.
func VendorAdminMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "vendor_admin_middleware").Logger()

	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			log.Debug().Str("path", c.Request.URL.Path).Msg("unauthenticated request to admin endpoint")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if principal.Role != models.UserRoleVendorAdmin {
			log.Warn().
				Str("user_id", principal.ID.String()).
				Str("role", string(principal.Role)).
				Str("path", c.Request.URL.Path).
				Msg("non-admin attempted to access admin endpoint")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "vendor admin privileges required"})
			return
		}

		c.Next()
	}
}

// IsVendorAdmin returns true if the current principal is a vendor admin.
func IsVendorAdmin(c *gin.Context) bool {
	principal := GetPrincipal(c)
	return principal != nil && principal.Role == models.UserRoleVendorAdmin
}
