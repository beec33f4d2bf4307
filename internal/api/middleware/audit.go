package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sevarahealth/sevara/internal/models"
)

// AuditStore persists audit entries written by the middleware.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditTrail returns a Gin middleware that records rejected agreement
// requests for compliance. Successful transitions are audited inside the
// lifecycle transaction; this middleware covers the denials and failures
// that never reach a transaction.
func AuditTrail(store AuditStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "audit_middleware").Logger()

	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 400 {
			return
		}

		action := actionForRoute(c.Request.Method, c.Request.URL.Path)
		if action == "" {
			return
		}

		orgID, ok := auditOrg(c)
		if !ok {
			return
		}

		result := models.AuditResultFailure
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			result = models.AuditResultDenied
		}

		entry := models.NewAuditLog(orgID, action, "agreement", result).
			WithRequestInfo(c.ClientIP(), c.Request.UserAgent()).
			WithDetails(fmt.Sprintf("rejected with HTTP %d", status))
		if principal := GetPrincipal(c); principal != nil {
			entry.WithUser(principal.ID)
		}

		// Written off the request path; a lost entry must not fail the response
		go func(entry *models.AuditLog) {
			if err := store.CreateAuditLog(context.Background(), entry); err != nil {
				log.Error().Err(err).
					Str("action", string(entry.Action)).
					Str("org_id", entry.OrgID.String()).
					Msg("failed to write audit entry")
			}
		}(entry)
	}
}

// auditOrg resolves the organization an audit entry belongs to: the
// principal's own organization, or the path parameter on admin routes.
func auditOrg(c *gin.Context) (uuid.UUID, bool) {
	if principal := GetPrincipal(c); principal != nil && principal.OrgID != nil {
		return *principal.OrgID, true
	}
	if raw := c.Param("id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// actionForRoute maps agreement endpoints to audit actions. Routes outside
// the agreement surface are not audited here.
func actionForRoute(method, path string) models.AuditAction {
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/baa/sign"):
		return models.AuditActionSign
	case method == http.MethodGet && strings.HasSuffix(path, "/document"):
		return models.AuditActionDownload
	case method == http.MethodGet && (strings.HasSuffix(path, "/baa/status") || strings.HasSuffix(path, "/baa/preview")):
		return models.AuditActionView
	case method == http.MethodPost && strings.HasSuffix(path, "/countersign"):
		return models.AuditActionCountersign
	case method == http.MethodPost && strings.HasSuffix(path, "/void"):
		return models.AuditActionVoid
	case method == http.MethodPost && strings.HasSuffix(path, "/supersede"):
		return models.AuditActionSupersede
	case method == http.MethodGet && strings.HasSuffix(path, "/agreement"):
		return models.AuditActionView
	}
	return ""
}
