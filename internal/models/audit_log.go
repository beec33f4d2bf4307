package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action that was audited.
type AuditAction string

const (
	// AuditActionView covers reads of agreement state and documents.
	AuditActionView AuditAction = "view"
	// AuditActionStart covers lazy creation of an agreement row.
	AuditActionStart AuditAction = "start"
	// AuditActionSign covers the organization signature.
	AuditActionSign AuditAction = "sign"
	// AuditActionCountersign covers the vendor countersignature.
	AuditActionCountersign AuditAction = "countersign"
	// AuditActionVoid covers voiding an agreement.
	AuditActionVoid AuditAction = "void"
	// AuditActionSupersede covers replacing an agreement with a new version.
	AuditActionSupersede AuditAction = "supersede"
	// AuditActionDownload covers document downloads.
	AuditActionDownload AuditAction = "download"
)

// AuditResult represents the outcome of an audited action.
type AuditResult string

const (
	// AuditResultSuccess indicates the action completed successfully.
	AuditResultSuccess AuditResult = "success"
	// AuditResultFailure indicates the action failed.
	AuditResultFailure AuditResult = "failure"
	// AuditResultDenied indicates the action was denied by authorization.
	AuditResultDenied AuditResult = "denied"
)

// AuditLog is a single immutable audit entry for compliance tracking.
// Entries are append-only; nothing updates or deletes them.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	OrgID        uuid.UUID   `json:"org_id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   *uuid.UUID  `json:"resource_id,omitempty"`
	Result       AuditResult `json:"result"`
	IPAddress    string      `json:"ip_address,omitempty"`
	UserAgent    string      `json:"user_agent,omitempty"`
	Details      string      `json:"details,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewAuditLog creates a new AuditLog entry.
func NewAuditLog(orgID uuid.UUID, action AuditAction, resourceType string, result AuditResult) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		OrgID:        orgID,
		Action:       action,
		ResourceType: resourceType,
		Result:       result,
		CreatedAt:    time.Now(),
	}
}

// WithUser sets the acting user.
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithResource sets the resource being acted upon.
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithRequestInfo sets HTTP request information.
func (a *AuditLog) WithRequestInfo(ipAddress, userAgent string) *AuditLog {
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithDetails sets additional details about the action.
func (a *AuditLog) WithDetails(details string) *AuditLog {
	a.Details = details
	return a
}
