package templates

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltIn(t *testing.T) {
	templates, err := LoadBuiltIn()
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	for i, tmpl := range templates {
		assert.Positive(t, tmpl.Version)
		assert.NotEmpty(t, tmpl.BodyText)
		assert.NotEmpty(t, tmpl.VendorLegalName)
		assert.Contains(t, tmpl.VendorContactEmail, "@")
		if i > 0 {
			assert.Greater(t, tmpl.Version, templates[i-1].Version, "versions must be sorted ascending")
		}
	}

	assert.Contains(t, templates[0].BodyText, "BUSINESS ASSOCIATE AGREEMENT")
}

type fakePublisher struct {
	existing  map[int]*models.Template
	published []int
}

func (f *fakePublisher) GetTemplate(_ context.Context, version int) (*models.Template, error) {
	if t, ok := f.existing[version]; ok {
		return t, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakePublisher) PublishTemplate(_ context.Context, t *models.Template) error {
	f.existing[t.Version] = t
	f.published = append(f.published, t.Version)
	return nil
}

func TestSeedPublishesMissingVersions(t *testing.T) {
	pub := &fakePublisher{existing: make(map[int]*models.Template)}

	err := Seed(context.Background(), pub, zerolog.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, pub.published)

	// A second run finds everything present and publishes nothing.
	pub.published = nil
	err = Seed(context.Background(), pub, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, pub.published)
}
