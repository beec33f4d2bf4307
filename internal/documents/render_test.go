package documents

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sevarahealth/sevara/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executedAgreement(version int) *models.Agreement {
	a := models.NewAgreement(uuid.New(), version)
	a.Status = models.AgreementStatusExecuted
	a.OrgSignature = &models.OrgSignature{
		SignerName:  "Jane Doe",
		SignerTitle: "Practice Administrator",
		SignerEmail: "jane@acmeclinic.com",
		SignedAt:    time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		SourceIP:    "203.0.113.10",
	}
	a.VendorSignature = &models.VendorSignature{
		SignerName:  "Val Moreno",
		SignerTitle: "VP Compliance",
		SignedAt:    time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}
	return a
}

func testTemplate(version int) *models.Template {
	return &models.Template{
		Version:            version,
		BodyText:           "BUSINESS ASSOCIATE AGREEMENT\n\nTerms go here.\n",
		VendorLegalName:    "Sevara Health, Inc.",
		VendorContactEmail: "legal@sevarahealth.com",
		PublishedAt:        time.Now(),
	}
}

func TestRenderIncludesBodyAndSignatures(t *testing.T) {
	a := executedAgreement(1)
	data, err := Render(a, testTemplate(1))
	require.NoError(t, err)

	doc := string(data)
	assert.Contains(t, doc, "BUSINESS ASSOCIATE AGREEMENT")
	assert.Contains(t, doc, "EXECUTION RECORD")
	assert.Contains(t, doc, a.ID.String())
	assert.Contains(t, doc, "Jane Doe")
	assert.Contains(t, doc, "Practice Administrator")
	assert.Contains(t, doc, "jane@acmeclinic.com")
	assert.Contains(t, doc, "203.0.113.10")
	assert.Contains(t, doc, "Val Moreno")
	assert.Contains(t, doc, "Sevara Health, Inc.")
	assert.NotContains(t, doc, "VOID RECORD")
}

func TestRenderIncludesVoidRecord(t *testing.T) {
	a := executedAgreement(1)
	a.Status = models.AgreementStatusVoided
	a.VoidInfo = &models.VoidInfo{
		Reason:   "contract terminated",
		VoidedAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		VoidedBy: uuid.New(),
	}

	data, err := Render(a, testTemplate(1))
	require.NoError(t, err)
	assert.Contains(t, string(data), "VOID RECORD")
	assert.Contains(t, string(data), "contract terminated")
}

func TestRenderRejectsMissingSignatures(t *testing.T) {
	a := models.NewAgreement(uuid.New(), 1)
	_, err := Render(a, testTemplate(1))
	assert.Error(t, err)
}

func TestRenderRejectsVersionMismatch(t *testing.T) {
	a := executedAgreement(2)
	_, err := Render(a, testTemplate(1))
	assert.Error(t, err)
}
