// Package baa implements the Business Associate Agreement lifecycle engine:
// the state machine that tracks, per organization, the agreement required
// before the tenant may process protected health information.
package baa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/models"
)

// Store is the persistence contract the engine depends on. Mutations are
// transactional: the status precondition and the write happen atomically,
// and db.ErrConflict signals the loser of a racing transition.
type Store interface {
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetActiveAgreement(ctx context.Context, orgID uuid.UUID) (*models.Agreement, error)
	GetAgreementByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error)
	GetAgreementHistory(ctx context.Context, orgID uuid.UUID) ([]*models.Agreement, error)
	GetLatestTemplate(ctx context.Context) (*models.Template, error)
	GetTemplate(ctx context.Context, version int) (*models.Template, error)
	CreateAgreement(ctx context.Context, a *models.Agreement, audit *models.AuditLog) error
	TransitionAgreement(ctx context.Context, a *models.Agreement, expected models.AgreementStatus, audit *models.AuditLog) error
	SupersedeAgreement(ctx context.Context, old *models.Agreement, expected models.AgreementStatus, replacement *models.Agreement, audit *models.AuditLog) error
	SetAgreementDocumentRef(ctx context.Context, id uuid.UUID, ref string) error
	ListOrgAgreements(ctx context.Context, filter models.AgreementFilter) ([]*models.OrgAgreement, int64, error)
	GetAgreementStats(ctx context.Context) (*models.AgreementStats, error)
}

// DocumentService renders and stores executed agreement documents. It is
// an external collaborator: failures are reported, never allowed to roll
// back or corrupt lifecycle state.
type DocumentService interface {
	RenderAndStore(ctx context.Context, a *models.Agreement, t *models.Template) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Actor identifies the principal performing a transition, for audit capture.
type Actor struct {
	UserID    uuid.UUID
	IP        string
	UserAgent string
}

func (a Actor) auditLog(orgID uuid.UUID, action models.AuditAction, result models.AuditResult) *models.AuditLog {
	return models.NewAuditLog(orgID, action, resourceTypeAgreement, result).
		WithUser(a.UserID).
		WithRequestInfo(a.IP, a.UserAgent)
}

const resourceTypeAgreement = "agreement"

// SignRequest carries the organization signature fields.
type SignRequest struct {
	SignerName  string
	SignerTitle string
	SignerEmail string
	Consent     bool
}

// CountersignRequest carries the vendor countersignature fields.
type CountersignRequest struct {
	SignerName  string
	SignerTitle string
}

// StatusView is the per-organization projection of the current agreement.
type StatusView struct {
	Info      StatusInfo               `json:"info"`
	Agreement *models.Agreement        `json:"agreement,omitempty"`
	Template  *models.TemplateMetadata `json:"template,omitempty"`
}

// OrgDetail combines the active agreement with the full version history.
type OrgDetail struct {
	Organization *models.Organization `json:"organization"`
	Active       *models.Agreement    `json:"active,omitempty"`
	History      []*models.Agreement  `json:"history"`
}

// Engine is the sole mutator of agreement status.
type Engine struct {
	store  Store
	docs   DocumentService
	logger zerolog.Logger
}

// NewEngine creates a new lifecycle engine. docs may be nil, in which case
// document downloads report a dependency failure.
func NewEngine(store Store, docs DocumentService, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		docs:   docs,
		logger: logger.With().Str("component", "baa_engine").Logger(),
	}
}

// Status returns the organization's current agreement status. When no
// active agreement row exists the virtual not_started status is reported;
// no row is created.
func (e *Engine) Status(ctx context.Context, orgID uuid.UUID) (*StatusView, error) {
	if _, err := e.store.GetOrganizationByID(ctx, orgID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	agreement, err := e.store.GetActiveAgreement(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		view := &StatusView{Info: InfoFor(models.AgreementStatusNotStarted)}
		if tmpl, terr := e.store.GetLatestTemplate(ctx); terr == nil {
			meta := tmpl.Metadata()
			view.Template = &meta
		}
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		Info:      InfoFor(agreement.Status),
		Agreement: agreement,
	}
	if tmpl, terr := e.store.GetTemplate(ctx, agreement.TemplateVersion); terr == nil {
		meta := tmpl.Metadata()
		view.Template = &meta
	}
	return view, nil
}

// EnsureStarted returns the organization's active agreement, creating one
// against the latest template version if none exists. Creation is audited
// with the acting principal; a racing creation is resolved by re-reading
// the winner's row.
func (e *Engine) EnsureStarted(ctx context.Context, orgID uuid.UUID, actor Actor) (*models.Agreement, error) {
	if _, err := e.store.GetOrganizationByID(ctx, orgID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	agreement, err := e.store.GetActiveAgreement(ctx, orgID)
	if err == nil {
		return agreement, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	tmpl, err := e.store.GetLatestTemplate(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("no BAA template has been published")
		}
		return nil, err
	}

	agreement = models.NewAgreement(orgID, tmpl.Version)
	audit := actor.auditLog(orgID, models.AuditActionStart, models.AuditResultSuccess).
		WithResource(agreement.ID).
		WithDetails(fmt.Sprintf("agreement created against template v%d", tmpl.Version))

	err = e.store.CreateAgreement(ctx, agreement, audit)
	if errors.Is(err, db.ErrConflict) {
		// Lost the creation race; the winner's row is the active agreement.
		return e.store.GetActiveAgreement(ctx, orgID)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("agreement_id", agreement.ID.String()).
		Int("template_version", tmpl.Version).
		Msg("agreement started")
	return agreement, nil
}

// Preview returns the template text the organization would be signing,
// lazily creating the agreement row on first access.
func (e *Engine) Preview(ctx context.Context, orgID uuid.UUID, actor Actor) (*models.Agreement, *models.Template, error) {
	agreement, err := e.EnsureStarted(ctx, orgID, actor)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := e.store.GetTemplate(ctx, agreement.TemplateVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("load template v%d: %w", agreement.TemplateVersion, err)
	}
	return agreement, tmpl, nil
}

func validateSignRequest(req SignRequest) error {
	if !req.Consent {
		return &ValidationError{Field: "consent", Message: "electronic signature consent is required"}
	}
	if strings.TrimSpace(req.SignerName) == "" {
		return &ValidationError{Field: "signer_name", Message: "signer name is required"}
	}
	if strings.TrimSpace(req.SignerTitle) == "" {
		return &ValidationError{Field: "signer_title", Message: "signer title is required"}
	}
	email := strings.TrimSpace(req.SignerEmail)
	if email == "" {
		return &ValidationError{Field: "signer_email", Message: "signer email is required"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "signer_email", Message: "signer email is malformed"}
	}
	return nil
}

// Sign applies the organization signature. Validation happens before any
// write; a failed validation leaves no partial state and the caller may
// retry with corrected input.
func (e *Engine) Sign(ctx context.Context, orgID uuid.UUID, actor Actor, req SignRequest) (*models.Agreement, error) {
	if err := validateSignRequest(req); err != nil {
		return nil, err
	}

	agreement, err := e.EnsureStarted(ctx, orgID, actor)
	if err != nil {
		return nil, err
	}

	if agreement.Status != models.AgreementStatusAwaitingOrgSignature {
		return nil, &InvalidTransitionError{Attempted: "sign", Current: agreement.Status}
	}

	agreement.OrgSignature = &models.OrgSignature{
		SignerName:  strings.TrimSpace(req.SignerName),
		SignerTitle: strings.TrimSpace(req.SignerTitle),
		SignerEmail: strings.TrimSpace(req.SignerEmail),
		SignedAt:    time.Now(),
		SourceIP:    actor.IP,
	}
	agreement.Status = models.AgreementStatusAwaitingVendorSignature

	audit := actor.auditLog(orgID, models.AuditActionSign, models.AuditResultSuccess).
		WithResource(agreement.ID).
		WithDetails(fmt.Sprintf("signed by %s (%s)", agreement.OrgSignature.SignerName, agreement.OrgSignature.SignerTitle))

	err = e.store.TransitionAgreement(ctx, agreement, models.AgreementStatusAwaitingOrgSignature, audit)
	if errors.Is(err, db.ErrConflict) {
		return nil, e.staleTransition(ctx, orgID, "sign")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("agreement_id", agreement.ID.String()).
		Msg("agreement signed by organization")
	return agreement, nil
}

// Countersign applies the vendor countersignature, executing the agreement.
// Document rendering is kicked off after the transition commits; a render
// failure never rolls back the executed status.
func (e *Engine) Countersign(ctx context.Context, orgID uuid.UUID, actor Actor, req CountersignRequest) (*models.Agreement, error) {
	if strings.TrimSpace(req.SignerName) == "" {
		return nil, &ValidationError{Field: "signer_name", Message: "signer name is required"}
	}
	if strings.TrimSpace(req.SignerTitle) == "" {
		return nil, &ValidationError{Field: "signer_title", Message: "signer title is required"}
	}

	agreement, err := e.store.GetActiveAgreement(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &InvalidTransitionError{
			Attempted: "countersign",
			Current:   models.AgreementStatusNotStarted,
			Reason:    "organization has not yet signed",
		}
	}
	if err != nil {
		return nil, err
	}

	if agreement.Status != models.AgreementStatusAwaitingVendorSignature {
		te := &InvalidTransitionError{Attempted: "countersign", Current: agreement.Status}
		if agreement.Status == models.AgreementStatusAwaitingOrgSignature {
			te.Reason = "organization has not yet signed"
		}
		return nil, te
	}

	agreement.VendorSignature = &models.VendorSignature{
		SignerName:  strings.TrimSpace(req.SignerName),
		SignerTitle: strings.TrimSpace(req.SignerTitle),
		SignedAt:    time.Now(),
	}
	agreement.Status = models.AgreementStatusExecuted

	audit := actor.auditLog(orgID, models.AuditActionCountersign, models.AuditResultSuccess).
		WithResource(agreement.ID).
		WithDetails(fmt.Sprintf("countersigned by %s (%s)", agreement.VendorSignature.SignerName, agreement.VendorSignature.SignerTitle))

	err = e.store.TransitionAgreement(ctx, agreement, models.AgreementStatusAwaitingVendorSignature, audit)
	if errors.Is(err, db.ErrConflict) {
		return nil, e.staleTransition(ctx, orgID, "countersign")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("agreement_id", agreement.ID.String()).
		Msg("agreement executed")

	e.renderAsync(agreement)
	return agreement, nil
}

// Void voids the active agreement for the given reason. Voided agreements
// permit no further transitions except supersession.
func (e *Engine) Void(ctx context.Context, orgID uuid.UUID, actor Actor, reason string) (*models.Agreement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "void reason is required"}
	}

	agreement, err := e.store.GetActiveAgreement(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &InvalidTransitionError{Attempted: "void", Current: models.AgreementStatusNotStarted}
	}
	if err != nil {
		return nil, err
	}

	switch agreement.Status {
	case models.AgreementStatusAwaitingOrgSignature,
		models.AgreementStatusAwaitingVendorSignature,
		models.AgreementStatusExecuted:
		// voidable
	default:
		return nil, &InvalidTransitionError{Attempted: "void", Current: agreement.Status}
	}

	expected := agreement.Status
	agreement.VoidInfo = &models.VoidInfo{
		Reason:   reason,
		VoidedAt: time.Now(),
		VoidedBy: actor.UserID,
	}
	agreement.Status = models.AgreementStatusVoided

	audit := actor.auditLog(orgID, models.AuditActionVoid, models.AuditResultSuccess).
		WithResource(agreement.ID).
		WithDetails(reason)

	err = e.store.TransitionAgreement(ctx, agreement, expected, audit)
	if errors.Is(err, db.ErrConflict) {
		return nil, e.staleTransition(ctx, orgID, "void")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("agreement_id", agreement.ID.String()).
		Str("reason", reason).
		Msg("agreement voided")
	return agreement, nil
}

// Supersede stamps the organization's executed or voided agreement as
// superseded and opens a new one against the latest template version, in
// one transaction. The new agreement back-references the old one.
func (e *Engine) Supersede(ctx context.Context, orgID uuid.UUID, actor Actor) (*models.Agreement, error) {
	agreement, err := e.store.GetActiveAgreement(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &InvalidTransitionError{Attempted: "supersede", Current: models.AgreementStatusNotStarted}
	}
	if err != nil {
		return nil, err
	}

	switch agreement.Status {
	case models.AgreementStatusExecuted, models.AgreementStatusVoided:
		// supersedable
	default:
		return nil, &InvalidTransitionError{Attempted: "supersede", Current: agreement.Status}
	}

	tmpl, err := e.store.GetLatestTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest template: %w", err)
	}
	if tmpl.Version <= agreement.TemplateVersion {
		return nil, &ValidationError{
			Field:   "template_version",
			Message: fmt.Sprintf("no template version newer than v%d has been published", agreement.TemplateVersion),
		}
	}

	expected := agreement.Status
	replacement := models.NewAgreement(orgID, tmpl.Version).WithPrevious(agreement.ID)

	audit := actor.auditLog(orgID, models.AuditActionSupersede, models.AuditResultSuccess).
		WithResource(agreement.ID).
		WithDetails(fmt.Sprintf("superseded by %s against template v%d", replacement.ID, tmpl.Version))

	err = e.store.SupersedeAgreement(ctx, agreement, expected, replacement, audit)
	if errors.Is(err, db.ErrConflict) {
		return nil, e.staleTransition(ctx, orgID, "supersede")
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("superseded_id", agreement.ID.String()).
		Str("agreement_id", replacement.ID.String()).
		Int("template_version", tmpl.Version).
		Msg("agreement superseded")
	return replacement, nil
}

// Download returns the rendered document for an agreement. Only agreements
// that reached execution have a document; agreements voided after execution
// remain downloadable for audit. Document service failures surface as a
// DependencyError, separate from lifecycle status.
func (e *Engine) Download(ctx context.Context, agreementID uuid.UUID) ([]byte, *models.Agreement, error) {
	agreement, err := e.store.GetAgreementByID(ctx, agreementID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if !agreement.WasExecuted() {
		return nil, nil, &InvalidTransitionError{
			Attempted: "download",
			Current:   agreement.Status,
			Reason:    "agreement has not been executed",
		}
	}

	if e.docs == nil {
		return nil, nil, &DependencyError{Op: "fetch", Err: errors.New("document service not configured")}
	}

	ref := agreement.DocumentRef
	if ref == "" {
		// Render on demand when the post-execution render did not complete.
		tmpl, terr := e.store.GetTemplate(ctx, agreement.TemplateVersion)
		if terr != nil {
			return nil, nil, fmt.Errorf("load template v%d: %w", agreement.TemplateVersion, terr)
		}
		ref, err = e.docs.RenderAndStore(ctx, agreement, tmpl)
		if err != nil {
			return nil, nil, &DependencyError{Op: "render", Err: err}
		}
		if serr := e.store.SetAgreementDocumentRef(ctx, agreement.ID, ref); serr != nil {
			e.logger.Warn().Err(serr).Str("agreement_id", agreement.ID.String()).Msg("failed to record document ref")
		}
		agreement.DocumentRef = ref
	}

	data, err := e.docs.Fetch(ctx, ref)
	if err != nil {
		return nil, nil, &DependencyError{Op: "fetch", Err: err}
	}
	return data, agreement, nil
}

// List returns a page of organizations with their active agreements for
// the cross-tenant admin listing.
func (e *Engine) List(ctx context.Context, filter models.AgreementFilter) ([]*models.OrgAgreement, int64, error) {
	if filter.Status != "" &&
		filter.Status != models.AgreementStatusNotStarted &&
		!models.ValidAgreementStatus(filter.Status) {
		return nil, 0, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	return e.store.ListOrgAgreements(ctx, filter)
}

// Stats returns cross-tenant counts by status.
func (e *Engine) Stats(ctx context.Context) (*models.AgreementStats, error) {
	return e.store.GetAgreementStats(ctx)
}

// Detail returns the active agreement and full version history for one
// organization.
func (e *Engine) Detail(ctx context.Context, orgID uuid.UUID) (*OrgDetail, error) {
	org, err := e.store.GetOrganizationByID(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	detail := &OrgDetail{Organization: org}
	active, err := e.store.GetActiveAgreement(ctx, orgID)
	if err == nil {
		detail.Active = active
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	history, err := e.store.GetAgreementHistory(ctx, orgID)
	if err != nil {
		return nil, err
	}
	detail.History = history
	return detail, nil
}

// staleTransition re-reads the organization's current agreement so the
// race loser's error carries the actual status.
func (e *Engine) staleTransition(ctx context.Context, orgID uuid.UUID, attempted string) error {
	current := models.AgreementStatusNotStarted
	if refreshed, err := e.store.GetActiveAgreement(ctx, orgID); err == nil {
		current = refreshed.Status
	}
	return &InvalidTransitionError{
		Attempted: attempted,
		Current:   current,
		Reason:    "a concurrent change was applied first",
	}
}

// renderAsync kicks off document rendering after execution. Failures are
// logged and degraded; the executed status is authoritative regardless.
func (e *Engine) renderAsync(agreement *models.Agreement) {
	if e.docs == nil {
		return
	}
	a := *agreement
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tmpl, err := e.store.GetTemplate(ctx, a.TemplateVersion)
		if err != nil {
			e.logger.Error().Err(err).Str("agreement_id", a.ID.String()).Msg("render: failed to load template")
			return
		}
		ref, err := e.docs.RenderAndStore(ctx, &a, tmpl)
		if err != nil {
			e.logger.Error().Err(err).Str("agreement_id", a.ID.String()).Msg("render: document service failed")
			return
		}
		if err := e.store.SetAgreementDocumentRef(ctx, a.ID, ref); err != nil {
			e.logger.Error().Err(err).Str("agreement_id", a.ID.String()).Msg("render: failed to record document ref")
			return
		}
		e.logger.Info().Str("agreement_id", a.ID.String()).Str("document_ref", ref).Msg("agreement document stored")
	}()
}
