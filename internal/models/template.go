package models

import (
	"time"
)

// Template is an immutable, versioned BAA template. New versions are
// appended to the registry, never edited in place.
type Template struct {
	Version            int       `json:"version"`
	BodyText           string    `json:"body_text"`
	VendorLegalName    string    `json:"vendor_legal_name"`
	VendorContactEmail string    `json:"vendor_contact_email"`
	PublishedAt        time.Time `json:"published_at"`
}

// TemplateMetadata is the template without its body, for status responses.
type TemplateMetadata struct {
	Version            int       `json:"version"`
	VendorLegalName    string    `json:"vendor_legal_name"`
	VendorContactEmail string    `json:"vendor_contact_email"`
	PublishedAt        time.Time `json:"published_at"`
}

// Metadata returns the template's metadata without the body text.
func (t *Template) Metadata() TemplateMetadata {
	return TemplateMetadata{
		Version:            t.Version,
		VendorLegalName:    t.VendorLegalName,
		VendorContactEmail: t.VendorContactEmail,
		PublishedAt:        t.PublishedAt,
	}
}
