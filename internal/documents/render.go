// Package documents renders executed BAA documents and stores them in
// S3-compatible object storage.
package documents

import (
	"fmt"
	"strings"

	"github.com/sevarahealth/sevara/internal/models"
)

const timeLayout = "January 2, 2006 at 15:04 MST"

// Render produces the archival text document for an executed agreement:
// the template body followed by both signature blocks.
func Render(a *models.Agreement, t *models.Template) ([]byte, error) {
	if a.OrgSignature == nil || a.VendorSignature == nil {
		return nil, fmt.Errorf("agreement %s is missing a signature", a.ID)
	}
	if t.Version != a.TemplateVersion {
		return nil, fmt.Errorf("template v%d does not match agreement template v%d", t.Version, a.TemplateVersion)
	}

	var b strings.Builder
	b.WriteString(t.BodyText)
	if !strings.HasSuffix(t.BodyText, "\n") {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 72))
	b.WriteString("\n\nEXECUTION RECORD\n\n")
	fmt.Fprintf(&b, "Agreement ID:      %s\n", a.ID)
	fmt.Fprintf(&b, "Template Version:  %d\n", a.TemplateVersion)

	b.WriteString("\nSIGNED FOR THE COVERED ENTITY\n\n")
	fmt.Fprintf(&b, "  Name:      %s\n", a.OrgSignature.SignerName)
	fmt.Fprintf(&b, "  Title:     %s\n", a.OrgSignature.SignerTitle)
	fmt.Fprintf(&b, "  Email:     %s\n", a.OrgSignature.SignerEmail)
	fmt.Fprintf(&b, "  Signed:    %s\n", a.OrgSignature.SignedAt.UTC().Format(timeLayout))
	if a.OrgSignature.SourceIP != "" {
		fmt.Fprintf(&b, "  Source IP: %s\n", a.OrgSignature.SourceIP)
	}

	b.WriteString("\nSIGNED FOR THE BUSINESS ASSOCIATE\n\n")
	fmt.Fprintf(&b, "  Entity:    %s\n", t.VendorLegalName)
	fmt.Fprintf(&b, "  Name:      %s\n", a.VendorSignature.SignerName)
	fmt.Fprintf(&b, "  Title:     %s\n", a.VendorSignature.SignerTitle)
	fmt.Fprintf(&b, "  Signed:    %s\n", a.VendorSignature.SignedAt.UTC().Format(timeLayout))

	if a.VoidInfo != nil {
		b.WriteString("\nVOID RECORD\n\n")
		fmt.Fprintf(&b, "  Reason:    %s\n", a.VoidInfo.Reason)
		fmt.Fprintf(&b, "  Voided:    %s\n", a.VoidInfo.VoidedAt.UTC().Format(timeLayout))
	}

	return []byte(b.String()), nil
}
