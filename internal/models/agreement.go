package models

import (
	"time"

	"github.com/google/uuid"
)

// AgreementStatus is the lifecycle status of a BAA agreement.
type AgreementStatus string

const (
	// AgreementStatusNotStarted is a virtual status: no agreement row exists
	// for the organization yet. It is never persisted.
	AgreementStatusNotStarted AgreementStatus = "not_started"
	// AgreementStatusAwaitingOrgSignature means the agreement exists but the
	// organization admin has not signed it.
	AgreementStatusAwaitingOrgSignature AgreementStatus = "awaiting_org_signature"
	// AgreementStatusAwaitingVendorSignature means the organization has
	// signed and the vendor countersignature is pending.
	AgreementStatusAwaitingVendorSignature AgreementStatus = "awaiting_vendor_signature"
	// AgreementStatusExecuted means both parties have signed.
	AgreementStatusExecuted AgreementStatus = "executed"
	// AgreementStatusVoided means the vendor voided the agreement.
	AgreementStatusVoided AgreementStatus = "voided"
	// AgreementStatusSuperseded means a newer agreement replaced this one.
	AgreementStatusSuperseded AgreementStatus = "superseded"
)

// ValidAgreementStatus reports whether s is a status that can appear on a
// persisted agreement row.
func ValidAgreementStatus(s AgreementStatus) bool {
	switch s {
	case AgreementStatusAwaitingOrgSignature,
		AgreementStatusAwaitingVendorSignature,
		AgreementStatusExecuted,
		AgreementStatusVoided,
		AgreementStatusSuperseded:
		return true
	}
	return false
}

// OrgSignature captures the organization admin's electronic signature.
type OrgSignature struct {
	SignerName  string    `json:"signer_name"`
	SignerTitle string    `json:"signer_title"`
	SignerEmail string    `json:"signer_email"`
	SignedAt    time.Time `json:"signed_at"`
	SourceIP    string    `json:"source_ip"`
}

// VendorSignature captures the vendor representative's countersignature.
type VendorSignature struct {
	SignerName  string    `json:"signer_name"`
	SignerTitle string    `json:"signer_title"`
	SignedAt    time.Time `json:"signed_at"`
}

// VoidInfo records why and by whom an agreement was voided.
type VoidInfo struct {
	Reason   string    `json:"reason"`
	VoidedAt time.Time `json:"voided_at"`
	VoidedBy uuid.UUID `json:"voided_by"`
}

// Agreement is one BAA record for an organization. An organization has at
// most one agreement outside the superseded status at any time; the
// previous_agreement_id back-references form the per-organization version
// chain. Rows are never deleted.
type Agreement struct {
	ID                  uuid.UUID        `json:"id"`
	OrgID               uuid.UUID        `json:"org_id"`
	TemplateVersion     int              `json:"template_version"`
	Status              AgreementStatus  `json:"status"`
	OrgSignature        *OrgSignature    `json:"org_signature,omitempty"`
	VendorSignature     *VendorSignature `json:"vendor_signature,omitempty"`
	VoidInfo            *VoidInfo        `json:"void_info,omitempty"`
	DocumentRef         string           `json:"document_ref,omitempty"`
	PreviousAgreementID *uuid.UUID       `json:"previous_agreement_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// NewAgreement creates a new agreement for an organization against the
// given template version, awaiting the organization's signature.
func NewAgreement(orgID uuid.UUID, templateVersion int) *Agreement {
	now := time.Now()
	return &Agreement{
		ID:              uuid.New(),
		OrgID:           orgID,
		TemplateVersion: templateVersion,
		Status:          AgreementStatusAwaitingOrgSignature,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// WithPrevious links the agreement to the one it supersedes.
func (a *Agreement) WithPrevious(previousID uuid.UUID) *Agreement {
	a.PreviousAgreementID = &previousID
	return a
}

// IsActive reports whether this row is the organization's active agreement.
func (a *Agreement) IsActive() bool {
	return a.Status != AgreementStatusSuperseded
}

// IsFinal reports whether the agreement has left its signing flow. A final
// agreement permits only the transition into voided or superseded.
func (a *Agreement) IsFinal() bool {
	switch a.Status {
	case AgreementStatusExecuted, AgreementStatusVoided, AgreementStatusSuperseded:
		return true
	}
	return false
}

// WasExecuted reports whether both signatures were captured at some point,
// including agreements voided after execution. Such agreements keep their
// rendered document available for audit.
func (a *Agreement) WasExecuted() bool {
	return a.OrgSignature != nil && a.VendorSignature != nil
}

// AgreementFilter narrows cross-tenant agreement listings.
type AgreementFilter struct {
	// Search matches organization name or subdomain, case-insensitively.
	Search string
	// Status filters on a single agreement status. The virtual not_started
	// status selects organizations with no active agreement row.
	Status AgreementStatus
	// Page is 1-based. PerPage caps the page size.
	Page    int
	PerPage int
}

// OrgAgreement pairs an organization with its active agreement for the
// cross-tenant admin listing. Agreement is nil when the organization has
// not started its BAA.
type OrgAgreement struct {
	Organization *Organization `json:"organization"`
	Agreement    *Agreement    `json:"agreement,omitempty"`
}

// AgreementStats holds cross-tenant counts by status for the vendor
// dashboard. NotStarted counts organizations with no active agreement row.
type AgreementStats struct {
	NotStarted              int64 `json:"not_started"`
	AwaitingOrgSignature    int64 `json:"awaiting_org_signature"`
	AwaitingVendorSignature int64 `json:"awaiting_vendor_signature"`
	Executed                int64 `json:"executed"`
	Voided                  int64 `json:"voided"`
	TotalOrgs               int64 `json:"total_orgs"`
}
