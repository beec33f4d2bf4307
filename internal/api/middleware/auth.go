// Package middleware provides HTTP middleware for the Sevara API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/auth"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// PrincipalContextKey is the context key for the authenticated principal.
const PrincipalContextKey ContextKey = "principal"

// AuthMiddleware returns a Gin middleware that requires an authenticated
// session principal.
func AuthMiddleware(sessions *auth.SessionStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		principal, err := sessions.GetPrincipal(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(string(PrincipalContextKey), principal)

		log.Debug().
			Str("user_id", principal.ID.String()).
			Str("path", c.Request.URL.Path).
			Msg("authenticated request")

		c.Next()
	}
}

// GetPrincipal retrieves the authenticated principal from the Gin context.
// Returns nil if no principal is authenticated.
func GetPrincipal(c *gin.Context) *auth.Principal {
	val, exists := c.Get(string(PrincipalContextKey))
	if !exists {
		return nil
	}
	principal, ok := val.(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}

// RequirePrincipal is a helper that gets the authenticated principal or
// aborts with 401. Use this in handlers that expect AuthMiddleware to have
// already run.
func RequirePrincipal(c *gin.Context) *auth.Principal {
	principal := GetPrincipal(c)
	if principal == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return principal
}
