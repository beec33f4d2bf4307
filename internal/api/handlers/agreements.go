package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/api/middleware"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
	"github.com/sevarahealth/sevara/internal/metrics"
	"github.com/sevarahealth/sevara/internal/models"
)

// OrgLifecycle is the slice of the lifecycle engine the organization-facing
// handler needs.
type OrgLifecycle interface {
	Status(ctx context.Context, orgID uuid.UUID) (*baa.StatusView, error)
	Preview(ctx context.Context, orgID uuid.UUID, actor baa.Actor) (*models.Agreement, *models.Template, error)
	Sign(ctx context.Context, orgID uuid.UUID, actor baa.Actor, req baa.SignRequest) (*models.Agreement, error)
	Download(ctx context.Context, agreementID uuid.UUID) ([]byte, *models.Agreement, error)
}

// AgreementsHandler handles the organization-facing BAA endpoints.
type AgreementsHandler struct {
	engine  OrgLifecycle
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAgreementsHandler creates a new AgreementsHandler. metrics may be nil.
func NewAgreementsHandler(engine OrgLifecycle, m *metrics.Metrics, logger zerolog.Logger) *AgreementsHandler {
	return &AgreementsHandler{
		engine:  engine,
		metrics: m,
		logger:  logger.With().Str("component", "agreements_handler").Logger(),
	}
}

// RegisterRoutes registers the organization BAA routes on the given router group.
func (h *AgreementsHandler) RegisterRoutes(r *gin.RouterGroup) {
	group := r.Group("/baa")
	{
		group.GET("/status", h.Status)
		group.GET("/preview", h.Preview)
		group.POST("/sign", h.Sign)
		group.GET("/document", h.Document)
	}
}

// requireOrg resolves the caller's organization and checks the action
// against the authorization gate. Returns uuid.Nil after writing the
// response when the caller may not proceed.
func (h *AgreementsHandler) requireOrg(c *gin.Context, action auth.Action) (uuid.UUID, *auth.Principal) {
	principal := middleware.RequirePrincipal(c)
	if principal == nil {
		return uuid.Nil, nil
	}
	if principal.OrgID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no organization context; use the admin endpoints"})
		return uuid.Nil, nil
	}

	orgID := *principal.OrgID
	if err := auth.Authorize(*principal, orgID, action); err != nil {
		respondEngineError(c, h.logger, err)
		return uuid.Nil, nil
	}
	return orgID, principal
}

func actorFrom(c *gin.Context, principal *auth.Principal) baa.Actor {
	return baa.Actor{
		UserID:    principal.ID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *AgreementsHandler) record(action, result string) {
	if h.metrics != nil {
		h.metrics.RecordTransition(action, result)
	}
}

// Status returns the organization's current agreement status.
// GET /api/v1/baa/status
func (h *AgreementsHandler) Status(c *gin.Context) {
	orgID, _ := h.requireOrg(c, auth.ActionView)
	if orgID == uuid.Nil {
		return
	}

	view, err := h.engine.Status(c.Request.Context(), orgID)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PreviewResponse is the response for the agreement preview.
type PreviewResponse struct {
	Agreement *models.Agreement `json:"agreement"`
	Template  *models.Template  `json:"template"`
}

// Preview returns the template text the organization would be signing,
// opening the agreement on first access.
// GET /api/v1/baa/preview
func (h *AgreementsHandler) Preview(c *gin.Context) {
	orgID, principal := h.requireOrg(c, auth.ActionView)
	if orgID == uuid.Nil {
		return
	}

	agreement, tmpl, err := h.engine.Preview(c.Request.Context(), orgID, actorFrom(c, principal))
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{Agreement: agreement, Template: tmpl})
}

// SignRequest is the request body for the organization signature.
type SignRequest struct {
	SignerName  string `json:"signer_name"`
	SignerTitle string `json:"signer_title"`
	SignerEmail string `json:"signer_email"`
	Consent     bool   `json:"consent"`
}

// Sign applies the organization signature to the active agreement.
// POST /api/v1/baa/sign
func (h *AgreementsHandler) Sign(c *gin.Context) {
	orgID, principal := h.requireOrg(c, auth.ActionSign)
	if orgID == uuid.Nil {
		return
	}

	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	agreement, err := h.engine.Sign(c.Request.Context(), orgID, actorFrom(c, principal), baa.SignRequest{
		SignerName:  req.SignerName,
		SignerTitle: req.SignerTitle,
		SignerEmail: req.SignerEmail,
		Consent:     req.Consent,
	})
	if err != nil {
		h.record("sign", "rejected")
		respondEngineError(c, h.logger, err)
		return
	}

	h.record("sign", "success")
	c.JSON(http.StatusOK, agreement)
}

// Document downloads the executed agreement document for the caller's
// organization.
// GET /api/v1/baa/document
func (h *AgreementsHandler) Document(c *gin.Context) {
	orgID, _ := h.requireOrg(c, auth.ActionDownload)
	if orgID == uuid.Nil {
		return
	}

	view, err := h.engine.Status(c.Request.Context(), orgID)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	if view.Agreement == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "the agreement has not been executed",
			"current_status": string(models.AgreementStatusNotStarted),
		})
		return
	}

	data, agreement, err := h.engine.Download(c.Request.Context(), view.Agreement.ID)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.DocumentDownloads.Inc()
	}
	filename := fmt.Sprintf("baa-%s-v%d.txt", agreement.OrgID, agreement.TemplateVersion)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
