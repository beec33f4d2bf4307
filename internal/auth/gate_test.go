package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sevarahealth/sevara/internal/models"
	"github.com/stretchr/testify/assert"
)

func orgAdmin(orgID uuid.UUID) Principal {
	return Principal{ID: uuid.New(), OrgID: &orgID, Role: models.UserRoleOrgAdmin}
}

func orgMember(orgID uuid.UUID) Principal {
	return Principal{ID: uuid.New(), OrgID: &orgID, Role: models.UserRoleOrgMember}
}

func vendorAdmin() Principal {
	return Principal{ID: uuid.New(), Role: models.UserRoleVendorAdmin}
}

func TestAuthorizeSign(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()

	assert.NoError(t, Authorize(orgAdmin(orgID), orgID, ActionSign))

	tests := []struct {
		name string
		p    Principal
	}{
		{"admin of another org", orgAdmin(otherOrg)},
		{"member of the org", orgMember(orgID)},
		{"vendor admin", vendorAdmin()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p, orgID, ActionSign)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestAuthorizeVendorActions(t *testing.T) {
	orgID := uuid.New()

	for _, action := range []Action{ActionCountersign, ActionVoid, ActionSupersede, ActionListAll} {
		t.Run(string(action), func(t *testing.T) {
			assert.NoError(t, Authorize(vendorAdmin(), orgID, action))
			assert.ErrorIs(t, Authorize(orgAdmin(orgID), orgID, action), ErrUnauthorized)
			assert.ErrorIs(t, Authorize(orgMember(orgID), orgID, action), ErrUnauthorized)
		})
	}
}

func TestAuthorizeView(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()

	assert.NoError(t, Authorize(orgAdmin(orgID), orgID, ActionView))
	assert.NoError(t, Authorize(orgMember(orgID), orgID, ActionView))
	assert.NoError(t, Authorize(vendorAdmin(), orgID, ActionView))
	assert.ErrorIs(t, Authorize(orgMember(otherOrg), orgID, ActionView), ErrUnauthorized)
}

func TestAuthorizeDownload(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()

	assert.NoError(t, Authorize(orgMember(orgID), orgID, ActionDownload))
	assert.NoError(t, Authorize(vendorAdmin(), orgID, ActionDownload))
	assert.ErrorIs(t, Authorize(orgAdmin(otherOrg), orgID, ActionDownload), ErrUnauthorized)
}

func TestAuthorizeUnknownAction(t *testing.T) {
	err := Authorize(vendorAdmin(), uuid.New(), Action("redline"))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorizeIsPure(t *testing.T) {
	// Same inputs, same decision, no matter how often asked.
	orgID := uuid.New()
	p := orgAdmin(orgID)
	for i := 0; i < 3; i++ {
		assert.NoError(t, Authorize(p, orgID, ActionSign))
	}
	denied := Authorize(orgMember(orgID), orgID, ActionSign)
	if !errors.Is(denied, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", denied)
	}
}
