package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/api/middleware"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
	"github.com/sevarahealth/sevara/internal/metrics"
	"github.com/sevarahealth/sevara/internal/models"
)

// AdminLifecycle is the slice of the lifecycle engine the vendor admin
// handler needs.
type AdminLifecycle interface {
	List(ctx context.Context, filter models.AgreementFilter) ([]*models.OrgAgreement, int64, error)
	Stats(ctx context.Context) (*models.AgreementStats, error)
	Detail(ctx context.Context, orgID uuid.UUID) (*baa.OrgDetail, error)
	Countersign(ctx context.Context, orgID uuid.UUID, actor baa.Actor, req baa.CountersignRequest) (*models.Agreement, error)
	Void(ctx context.Context, orgID uuid.UUID, actor baa.Actor, reason string) (*models.Agreement, error)
	Supersede(ctx context.Context, orgID uuid.UUID, actor baa.Actor) (*models.Agreement, error)
	Download(ctx context.Context, agreementID uuid.UUID) ([]byte, *models.Agreement, error)
}

// AdminAgreementsHandler handles the vendor admin BAA endpoints.
type AdminAgreementsHandler struct {
	engine  AdminLifecycle
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAdminAgreementsHandler creates a new AdminAgreementsHandler. metrics may be nil.
func NewAdminAgreementsHandler(engine AdminLifecycle, m *metrics.Metrics, logger zerolog.Logger) *AdminAgreementsHandler {
	return &AdminAgreementsHandler{
		engine:  engine,
		metrics: m,
		logger:  logger.With().Str("component", "admin_agreements_handler").Logger(),
	}
}

// RegisterRoutes registers the admin routes on the given router group. The
// group is expected to already enforce the vendor admin role.
func (h *AdminAgreementsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agreements", h.List)
	r.GET("/agreements/stats", h.Stats)

	orgs := r.Group("/organizations/:id")
	{
		orgs.GET("/agreement", h.Detail)
		orgs.GET("/document", h.Document)
		orgs.POST("/countersign", h.Countersign)
		orgs.POST("/void", h.Void)
		orgs.POST("/supersede", h.Supersede)
	}
}

// requireAdmin checks the action against the authorization gate. The role
// middleware already rejects non-admins; the gate stays the single source
// of truth for the decision.
func (h *AdminAgreementsHandler) requireAdmin(c *gin.Context, orgID uuid.UUID, action auth.Action) *auth.Principal {
	principal := middleware.RequirePrincipal(c)
	if principal == nil {
		return nil
	}
	if err := auth.Authorize(*principal, orgID, action); err != nil {
		respondEngineError(c, h.logger, err)
		return nil
	}
	return principal
}

func orgIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminAgreementsHandler) record(action, result string) {
	if h.metrics != nil {
		h.metrics.RecordTransition(action, result)
	}
}

// AgreementListResponse is the response for the cross-tenant listing.
type AgreementListResponse struct {
	Organizations []*models.OrgAgreement `json:"organizations"`
	TotalCount    int64                  `json:"total_count"`
	Page          int                    `json:"page"`
	PerPage       int                    `json:"per_page"`
}

// List returns a page of organizations with their agreement status.
// GET /api/v1/admin/agreements
// Query params: search, status, page, per_page
func (h *AdminAgreementsHandler) List(c *gin.Context) {
	if h.requireAdmin(c, uuid.Nil, auth.ActionListAll) == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	filter := models.AgreementFilter{
		Search:  c.Query("search"),
		Status:  models.AgreementStatus(c.Query("status")),
		Page:    page,
		PerPage: perPage,
	}

	entries, total, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, AgreementListResponse{
		Organizations: entries,
		TotalCount:    total,
		Page:          page,
		PerPage:       perPage,
	})
}

// Stats returns cross-tenant agreement counts by status.
// GET /api/v1/admin/agreements/stats
func (h *AdminAgreementsHandler) Stats(c *gin.Context) {
	if h.requireAdmin(c, uuid.Nil, auth.ActionListAll) == nil {
		return
	}

	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Detail returns one organization's active agreement and version history.
// GET /api/v1/admin/organizations/:id/agreement
func (h *AdminAgreementsHandler) Detail(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	if h.requireAdmin(c, orgID, auth.ActionView) == nil {
		return
	}

	detail, err := h.engine.Detail(c.Request.Context(), orgID)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Document returns the organization's agreement document as plain text.
// GET /api/v1/admin/organizations/:id/document
func (h *AdminAgreementsHandler) Document(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	if h.requireAdmin(c, orgID, auth.ActionDownload) == nil {
		return
	}

	detail, err := h.engine.Detail(c.Request.Context(), orgID)
	if err != nil {
		respondEngineError(c, h.logger, err)
		return
	}
	if detail.Active == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "the agreement has not been executed",
			"current_status": string(models.AgreementStatusNotStarted),
		})
		return
	}

	data, agreement, err := h.engine.Download(c.Request.Context(), detail.Active.ID)
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

// CountersignRequest is the request body for the vendor countersignature.
type CountersignRequest struct {
	SignerName  string `json:"signer_name"`
	SignerTitle string `json:"signer_title"`
}

// Countersign applies the vendor countersignature, executing the agreement.
// POST /api/v1/admin/organizations/:id/countersign
func (h *AdminAgreementsHandler) Countersign(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	principal := h.requireAdmin(c, orgID, auth.ActionCountersign)
	if principal == nil {
		return
	}

	var req CountersignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	agreement, err := h.engine.Countersign(c.Request.Context(), orgID, actorFrom(c, principal), baa.CountersignRequest{
		SignerName:  req.SignerName,
		SignerTitle: req.SignerTitle,
	})
	if err != nil {
		h.record("countersign", "rejected")
		respondEngineError(c, h.logger, err)
		return
	}

	h.record("countersign", "success")
	c.JSON(http.StatusOK, agreement)
}

// VoidRequest is the request body for voiding an agreement.
type VoidRequest struct {
	Reason string `json:"reason"`
}

// Void voids the organization's active agreement.
// POST /api/v1/admin/organizations/:id/void
func (h *AdminAgreementsHandler) Void(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	principal := h.requireAdmin(c, orgID, auth.ActionVoid)
	if principal == nil {
		return
	}

	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	agreement, err := h.engine.Void(c.Request.Context(), orgID, actorFrom(c, principal), req.Reason)
	if err != nil {
		h.record("void", "rejected")
		respondEngineError(c, h.logger, err)
		return
	}

	h.record("void", "success")
	c.JSON(http.StatusOK, agreement)
}

// Supersede replaces the organization's final agreement with a fresh one
// against the newest template version.
// POST /api/v1/admin/organizations/:id/supersede
func (h *AdminAgreementsHandler) Supersede(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	principal := h.requireAdmin(c, orgID, auth.ActionSupersede)
	if principal == nil {
		return
	}

	agreement, err := h.engine.Supersede(c.Request.Context(), orgID, actorFrom(c, principal))
	if err != nil {
		h.record("supersede", "rejected")
		respondEngineError(c, h.logger, err)
		return
	}

	h.record("supersede", "success")
	c.JSON(http.StatusOK, agreement)
}
