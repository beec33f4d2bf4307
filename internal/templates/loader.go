// Package templates loads the built-in BAA template versions shipped with
// the server and seeds them into the database on startup.
package templates

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed seeds/*.yaml
var seedsFS embed.FS

// SeedTemplateYAML represents the YAML structure of a built-in template file.
type SeedTemplateYAML struct {
	Version            int    `yaml:"version"`
	VendorLegalName    string `yaml:"vendor_legal_name"`
	VendorContactEmail string `yaml:"vendor_contact_email"`
	Body               string `yaml:"body"`
}

// LoadBuiltIn loads all built-in template versions from embedded YAML files,
// sorted by ascending version.
func LoadBuiltIn() ([]*models.Template, error) {
	entries, err := seedsFS.ReadDir("seeds")
	if err != nil {
		return nil, fmt.Errorf("read seeds directory: %w", err)
	}

	var templates []*models.Template

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := seedsFS.ReadFile("seeds/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read seed file %s: %w", entry.Name(), err)
		}

		var seed SeedTemplateYAML
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("parse seed file %s: %w", entry.Name(), err)
		}
		if seed.Version <= 0 {
			return nil, fmt.Errorf("seed file %s: version must be positive", entry.Name())
		}
		if strings.TrimSpace(seed.Body) == "" {
			return nil, fmt.Errorf("seed file %s: body is empty", entry.Name())
		}

		templates = append(templates, &models.Template{
			Version:            seed.Version,
			BodyText:           seed.Body,
			VendorLegalName:    seed.VendorLegalName,
			VendorContactEmail: seed.VendorContactEmail,
			PublishedAt:        time.Now(),
		})
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Version < templates[j].Version
	})
	return templates, nil
}

// Publisher is the subset of the store the seeder needs.
type Publisher interface {
	GetTemplate(ctx context.Context, version int) (*models.Template, error)
	PublishTemplate(ctx context.Context, t *models.Template) error
}

// Seed publishes any built-in template versions not yet present in the
// database. Already-published versions are never overwritten.
func Seed(ctx context.Context, store Publisher, logger zerolog.Logger) error {
	log := logger.With().Str("component", "template_seeder").Logger()

	builtIn, err := LoadBuiltIn()
	if err != nil {
		return err
	}

	for _, tmpl := range builtIn {
		_, err := store.GetTemplate(ctx, tmpl.Version)
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("check template v%d: %w", tmpl.Version, err)
		}

		if err := store.PublishTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("publish template v%d: %w", tmpl.Version, err)
		}
		log.Info().Int("version", tmpl.Version).Msg("published built-in BAA template")
	}

	return nil
}
