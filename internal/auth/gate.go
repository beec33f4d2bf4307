// Package auth provides the authorization gate and session principal
// handling for the agreement engine. Authentication itself is external;
// the engine trusts the principal it is handed.
package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sevarahealth/sevara/internal/models"
)

// ErrUnauthorized is the authorization gate's denial. It is distinguishable
// from business-rule rejections and never reveals whether the target
// resource exists.
var ErrUnauthorized = errors.New("unauthorized")

// Action is an operation checked by the authorization gate.
type Action string

const (
	// ActionView reads agreement state within an organization.
	ActionView Action = "view"
	// ActionSign applies the organization signature.
	ActionSign Action = "sign"
	// ActionCountersign applies the vendor countersignature.
	ActionCountersign Action = "countersign"
	// ActionVoid voids an agreement.
	ActionVoid Action = "void"
	// ActionSupersede replaces a final agreement with a fresh one.
	ActionSupersede Action = "supersede"
	// ActionListAll lists agreements across all organizations.
	ActionListAll Action = "list_all"
	// ActionDownload fetches the rendered agreement document.
	ActionDownload Action = "download"
)

// Principal is the authenticated caller as supplied by the external
// identity service. OrgID is nil for vendor admins.
type Principal struct {
	ID    uuid.UUID
	Email string
	Name  string
	OrgID *uuid.UUID
	Role  models.UserRole
}

// memberOf reports whether the principal belongs to the organization.
func (p Principal) memberOf(orgID uuid.UUID) bool {
	return p.OrgID != nil && *p.OrgID == orgID
}

// Authorize decides whether the principal may perform the action against
// the given organization. It is a pure decision function with no side
// effects and no dependence on business state.
func Authorize(p Principal, orgID uuid.UUID, action Action) error {
	switch action {
	case ActionSign:
		if p.Role == models.UserRoleOrgAdmin && p.memberOf(orgID) {
			return nil
		}
		return fmt.Errorf("%w: signing requires an organization admin of the target organization", ErrUnauthorized)

	case ActionCountersign, ActionVoid, ActionSupersede, ActionListAll:
		if p.Role == models.UserRoleVendorAdmin {
			return nil
		}
		return fmt.Errorf("%w: %s requires the vendor admin role", ErrUnauthorized, action)

	case ActionView, ActionDownload:
		if p.Role == models.UserRoleVendorAdmin || p.memberOf(orgID) {
			return nil
		}
		return fmt.Errorf("%w: %s requires organization membership or the vendor admin role", ErrUnauthorized, action)
	}
	return fmt.Errorf("%w: unknown action %q", ErrUnauthorized, action)
}
