package baa

import "github.com/sevarahealth/sevara/internal/models"

// StatusInfo is the human-readable presentation of an agreement status.
// This is a pure lookup table for the UI, not business logic.
type StatusInfo struct {
	Status      models.AgreementStatus `json:"status"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
}

var statusInfo = map[models.AgreementStatus]StatusInfo{
	models.AgreementStatusNotStarted: {
		Status:      models.AgreementStatusNotStarted,
		Label:       "Not Started",
		Description: "The Business Associate Agreement has not been opened yet. An organization administrator must review and sign it before any patient data can be processed.",
	},
	models.AgreementStatusAwaitingOrgSignature: {
		Status:      models.AgreementStatusAwaitingOrgSignature,
		Label:       "Awaiting Your Signature",
		Description: "The agreement is ready for review. An organization administrator must sign it before any patient data can be processed.",
	},
	models.AgreementStatusAwaitingVendorSignature: {
		Status:      models.AgreementStatusAwaitingVendorSignature,
		Label:       "Awaiting Countersignature",
		Description: "Your organization has signed. The agreement takes effect once our authorized representative countersigns it.",
	},
	models.AgreementStatusExecuted: {
		Status:      models.AgreementStatusExecuted,
		Label:       "Executed",
		Description: "The agreement is fully executed by both parties. Your organization may process protected health information.",
	},
	models.AgreementStatusVoided: {
		Status:      models.AgreementStatusVoided,
		Label:       "Voided",
		Description: "The agreement has been voided. Contact support to establish a new agreement before processing patient data.",
	},
	models.AgreementStatusSuperseded: {
		Status:      models.AgreementStatusSuperseded,
		Label:       "Superseded",
		Description: "This agreement version has been replaced by a newer one and is retained for audit purposes only.",
	},
}

// InfoFor returns the label and description for a status.
func InfoFor(status models.AgreementStatus) StatusInfo {
	if info, ok := statusInfo[status]; ok {
		return info
	}
	return StatusInfo{Status: status, Label: string(status)}
}
