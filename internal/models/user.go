package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole defines the role of a user within the platform.
type UserRole string

const (
	// UserRoleOrgAdmin can manage their organization and sign its agreements.
	UserRoleOrgAdmin UserRole = "org_admin"
	// UserRoleOrgMember has read-only access within their organization.
	UserRoleOrgMember UserRole = "org_member"
	// UserRoleVendorAdmin is the cross-tenant platform operator role.
	// Vendor admins have no organization of their own.
	UserRoleVendorAdmin UserRole = "vendor_admin"
)

// User represents an authenticated platform user.
type User struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     *uuid.UUID `json:"org_id,omitempty"` // nil for vendor admins
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Role      UserRole   `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewUser creates a new User with the given details.
func NewUser(orgID *uuid.UUID, email, name string, role UserRole) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		OrgID:     orgID,
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsVendorAdmin returns true if the user holds the cross-tenant operator role.
func (u *User) IsVendorAdmin() bool {
	return u.Role == UserRoleVendorAdmin
}

// BelongsTo returns true if the user is a member of the given organization.
func (u *User) BelongsTo(orgID uuid.UUID) bool {
	return u.OrgID != nil && *u.OrgID == orgID
}
