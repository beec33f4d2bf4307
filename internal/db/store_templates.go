package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sevarahealth/sevara/internal/models"
)

// Template registry methods. Templates are append-only: versions are
// published once and never edited in place.

// GetLatestTemplate returns the highest published template version.
func (db *DB) GetLatestTemplate(ctx context.Context) (*models.Template, error) {
	var t models.Template
	err := db.Pool.QueryRow(ctx, `
		SELECT version, body_text, vendor_legal_name, vendor_contact_email, published_at
		FROM baa_templates
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&t.Version, &t.BodyText, &t.VendorLegalName, &t.VendorContactEmail, &t.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest template: %w", err)
	}
	return &t, nil
}

// GetTemplate returns a specific template version.
func (db *DB) GetTemplate(ctx context.Context, version int) (*models.Template, error) {
	var t models.Template
	err := db.Pool.QueryRow(ctx, `
		SELECT version, body_text, vendor_legal_name, vendor_contact_email, published_at
		FROM baa_templates
		WHERE version = $1
	`, version).Scan(&t.Version, &t.BodyText, &t.VendorLegalName, &t.VendorContactEmail, &t.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", version, err)
	}
	return &t, nil
}

// PublishTemplate appends a new template version. Publishing an existing
// version fails on the primary key; callers pick the next version via
// GetLatestTemplate.
func (db *DB) PublishTemplate(ctx context.Context, t *models.Template) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO baa_templates (version, body_text, vendor_legal_name, vendor_contact_email, published_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.Version, t.BodyText, t.VendorLegalName, t.VendorContactEmail, t.PublishedAt)
	if err != nil {
		return fmt.Errorf("publish template %d: %w", t.Version, err)
	}
	db.logger.Info().Int("version", t.Version).Msg("published BAA template")
	return nil
}
