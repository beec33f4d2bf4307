// Package models defines the domain models for Sevara.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a multi-tenant organization (a covered entity).
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrganization creates a new Organization with the given name and subdomain.
func NewOrganization(name, subdomain string) *Organization {
	now := time.Now()
	return &Organization{
		ID:        uuid.New(),
		Name:      name,
		Subdomain: subdomain,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
