package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sevarahealth/sevara/internal/models"
)

const agreementColumns = `
	id, org_id, template_version, status,
	org_signer_name, org_signer_title, org_signer_email, org_signed_at, org_signed_ip,
	vendor_signer_name, vendor_signer_title, vendor_signed_at,
	void_reason, voided_at, voided_by,
	document_ref, previous_agreement_id, created_at, updated_at`

// rowScanner matches both pgx.Row and pgx.Rows for single-row scans.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAgreement scans the agreementColumns into an Agreement. Any leading
// destinations are scanned first, for queries that select other columns
// ahead of the agreement's.
func scanAgreement(row rowScanner, leading ...any) (*models.Agreement, error) {
	var a models.Agreement
	var statusStr string
	var orgName, orgTitle, orgEmail, orgIP *string
	var orgSignedAt *time.Time
	var venName, venTitle *string
	var venSignedAt *time.Time
	var voidReason *string
	var voidedAt *time.Time
	var voidedBy *uuid.UUID
	var documentRef *string

	dests := append(leading,
		&a.ID, &a.OrgID, &a.TemplateVersion, &statusStr,
		&orgName, &orgTitle, &orgEmail, &orgSignedAt, &orgIP,
		&venName, &venTitle, &venSignedAt,
		&voidReason, &voidedAt, &voidedBy,
		&documentRef, &a.PreviousAgreementID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}

	a.Status = models.AgreementStatus(statusStr)
	if orgSignedAt != nil {
		a.OrgSignature = &models.OrgSignature{
			SignerName:  deref(orgName),
			SignerTitle: deref(orgTitle),
			SignerEmail: deref(orgEmail),
			SignedAt:    *orgSignedAt,
			SourceIP:    deref(orgIP),
		}
	}
	if venSignedAt != nil {
		a.VendorSignature = &models.VendorSignature{
			SignerName:  deref(venName),
			SignerTitle: deref(venTitle),
			SignedAt:    *venSignedAt,
		}
	}
	if voidedAt != nil {
		a.VoidInfo = &models.VoidInfo{
			Reason:   deref(voidReason),
			VoidedAt: *voidedAt,
		}
		if voidedBy != nil {
			a.VoidInfo.VoidedBy = *voidedBy
		}
	}
	if documentRef != nil {
		a.DocumentRef = *documentRef
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetActiveAgreement returns the organization's single non-superseded
// agreement, or ErrNotFound when the organization has not started its BAA.
func (db *DB) GetActiveAgreement(ctx context.Context, orgID uuid.UUID) (*models.Agreement, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE org_id = $1 AND status <> 'superseded'
	`, orgID)
	a, err := scanAgreement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active agreement: %w", err)
	}
	return a, nil
}

// GetAgreementByID returns an agreement by its ID.
func (db *DB) GetAgreementByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE id = $1
	`, id)
	a, err := scanAgreement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agreement: %w", err)
	}
	return a, nil
}

// GetAgreementHistory returns all agreements for an organization, newest
// first. Superseded and voided rows are included; they are the audit trail.
func (db *DB) GetAgreementHistory(ctx context.Context, orgID uuid.UUID) ([]*models.Agreement, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("get agreement history: %w", err)
	}
	defer rows.Close()

	var history []*models.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		history = append(history, a)
	}
	return history, rows.Err()
}

func insertAgreementTx(ctx context.Context, tx pgx.Tx, a *models.Agreement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO agreements (id, org_id, template_version, status, previous_agreement_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.OrgID, a.TemplateVersion, string(a.Status), a.PreviousAgreementID, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		// partial unique index: another active agreement already exists
		return ErrConflict
	}
	return err
}

// updateAgreementTx writes the agreement's mutable fields with a status
// precondition. The compare-and-set serializes racing transitions on the
// same organization: the loser matches zero rows and gets ErrConflict.
func updateAgreementTx(ctx context.Context, tx pgx.Tx, a *models.Agreement, expected models.AgreementStatus) error {
	var orgName, orgTitle, orgEmail, orgIP *string
	var orgSignedAt *time.Time
	if a.OrgSignature != nil {
		orgName, orgTitle, orgEmail = &a.OrgSignature.SignerName, &a.OrgSignature.SignerTitle, &a.OrgSignature.SignerEmail
		orgSignedAt = &a.OrgSignature.SignedAt
		orgIP = &a.OrgSignature.SourceIP
	}
	var venName, venTitle *string
	var venSignedAt *time.Time
	if a.VendorSignature != nil {
		venName, venTitle = &a.VendorSignature.SignerName, &a.VendorSignature.SignerTitle
		venSignedAt = &a.VendorSignature.SignedAt
	}
	var voidReason *string
	var voidedAt *time.Time
	var voidedBy *uuid.UUID
	if a.VoidInfo != nil {
		voidReason = &a.VoidInfo.Reason
		voidedAt = &a.VoidInfo.VoidedAt
		voidedBy = &a.VoidInfo.VoidedBy
	}

	tag, err := tx.Exec(ctx, `
		UPDATE agreements SET
			status = $1,
			org_signer_name = $2, org_signer_title = $3, org_signer_email = $4,
			org_signed_at = $5, org_signed_ip = $6,
			vendor_signer_name = $7, vendor_signer_title = $8, vendor_signed_at = $9,
			void_reason = $10, voided_at = $11, voided_by = $12,
			updated_at = $13
		WHERE id = $14 AND status = $15
	`, string(a.Status),
		orgName, orgTitle, orgEmail, orgSignedAt, orgIP,
		venName, venTitle, venSignedAt,
		voidReason, voidedAt, voidedBy,
		time.Now(), a.ID, string(expected))
	if err != nil {
		return fmt.Errorf("update agreement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAgreement inserts a new agreement and its audit entry in one
// transaction. Returns ErrConflict if the organization already has an
// active agreement.
func (db *DB) CreateAgreement(ctx context.Context, a *models.Agreement, audit *models.AuditLog) error {
	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		if err := insertAgreementTx(ctx, tx, a); err != nil {
			return err
		}
		if audit != nil {
			return insertAuditLogTx(ctx, tx, audit)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create agreement: %w", err)
	}
	return nil
}

// TransitionAgreement applies a guarded status change and writes its audit
// entry in the same transaction. The expected status is the compare-and-set
// precondition; ErrConflict means the agreement moved since it was read.
func (db *DB) TransitionAgreement(ctx context.Context, a *models.Agreement, expected models.AgreementStatus, audit *models.AuditLog) error {
	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		if err := updateAgreementTx(ctx, tx, a, expected); err != nil {
			return err
		}
		if audit != nil {
			return insertAuditLogTx(ctx, tx, audit)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("transition agreement: %w", err)
	}
	return nil
}

// SupersedeAgreement stamps the old agreement superseded and inserts its
// replacement atomically. The old row's expected status is the precondition.
func (db *DB) SupersedeAgreement(ctx context.Context, old *models.Agreement, expected models.AgreementStatus, replacement *models.Agreement, audit *models.AuditLog) error {
	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		old.Status = models.AgreementStatusSuperseded
		if err := updateAgreementTx(ctx, tx, old, expected); err != nil {
			return err
		}
		if err := insertAgreementTx(ctx, tx, replacement); err != nil {
			return err
		}
		if audit != nil {
			return insertAuditLogTx(ctx, tx, audit)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("supersede agreement: %w", err)
	}
	return nil
}

// SetAgreementDocumentRef records the rendered document reference. Document
// storage happens outside the lifecycle transaction, so this is a separate
// best-effort write keyed only by ID.
func (db *DB) SetAgreementDocumentRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE agreements SET document_ref = $1, updated_at = $2 WHERE id = $3
	`, ref, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set document ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrgAgreements returns a page of organizations joined with their
// active agreement, for the cross-tenant admin listing. Organizations with
// no active agreement appear with a nil Agreement.
func (db *DB) ListOrgAgreements(ctx context.Context, filter models.AgreementFilter) ([]*models.OrgAgreement, int64, error) {
	where := []string{"TRUE"}
	args := []any{}

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = append(where, fmt.Sprintf("(LOWER(o.name) LIKE $%d OR LOWER(o.subdomain) LIKE $%d)", len(args), len(args)))
	}
	switch filter.Status {
	case "":
		// no status filter
	case models.AgreementStatusNotStarted:
		where = append(where, "a.id IS NULL")
	default:
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	const joinClause = `
		FROM organizations o
		LEFT JOIN agreements a ON a.org_id = o.id AND a.status <> 'superseded'
	`

	var total int64
	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) "+joinClause+" WHERE "+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count org agreements: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(`
		SELECT o.id, o.name, o.subdomain, o.created_at, o.updated_at,
		       a.id, a.org_id, a.template_version, a.status,
		       a.org_signer_name, a.org_signer_title, a.org_signer_email, a.org_signed_at, a.org_signed_ip,
		       a.vendor_signer_name, a.vendor_signer_title, a.vendor_signed_at,
		       a.void_reason, a.voided_at, a.voided_by,
		       a.document_ref, a.previous_agreement_id, a.created_at, a.updated_at
		%s WHERE %s
		ORDER BY o.name, o.id
		LIMIT $%d OFFSET $%d
	`, joinClause, whereClause, len(args)-1, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list org agreements: %w", err)
	}
	defer rows.Close()

	var result []*models.OrgAgreement
	for rows.Next() {
		var org models.Organization
		var aID *uuid.UUID
		var aOrgID *uuid.UUID
		var templateVersion *int
		var statusStr *string
		var orgName, orgTitle, orgEmail, orgIP *string
		var orgSignedAt *time.Time
		var venName, venTitle *string
		var venSignedAt *time.Time
		var voidReason *string
		var voidedAt *time.Time
		var voidedBy *uuid.UUID
		var documentRef *string
		var previousID *uuid.UUID
		var createdAt, updatedAt *time.Time

		err := rows.Scan(
			&org.ID, &org.Name, &org.Subdomain, &org.CreatedAt, &org.UpdatedAt,
			&aID, &aOrgID, &templateVersion, &statusStr,
			&orgName, &orgTitle, &orgEmail, &orgSignedAt, &orgIP,
			&venName, &venTitle, &venSignedAt,
			&voidReason, &voidedAt, &voidedBy,
			&documentRef, &previousID, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan org agreement: %w", err)
		}

		entry := &models.OrgAgreement{Organization: &org}
		if aID != nil {
			a := &models.Agreement{
				ID:                  *aID,
				OrgID:               *aOrgID,
				TemplateVersion:     *templateVersion,
				Status:              models.AgreementStatus(*statusStr),
				PreviousAgreementID: previousID,
				CreatedAt:           *createdAt,
				UpdatedAt:           *updatedAt,
			}
			if orgSignedAt != nil {
				a.OrgSignature = &models.OrgSignature{
					SignerName:  deref(orgName),
					SignerTitle: deref(orgTitle),
					SignerEmail: deref(orgEmail),
					SignedAt:    *orgSignedAt,
					SourceIP:    deref(orgIP),
				}
			}
			if venSignedAt != nil {
				a.VendorSignature = &models.VendorSignature{
					SignerName:  deref(venName),
					SignerTitle: deref(venTitle),
					SignedAt:    *venSignedAt,
				}
			}
			if voidedAt != nil {
				a.VoidInfo = &models.VoidInfo{Reason: deref(voidReason), VoidedAt: *voidedAt}
				if voidedBy != nil {
					a.VoidInfo.VoidedBy = *voidedBy
				}
			}
			if documentRef != nil {
				a.DocumentRef = *documentRef
			}
			entry.Agreement = a
		}
		result = append(result, entry)
	}
	return result, total, rows.Err()
}

// GetStaleAgreements returns agreements still waiting on a signature whose
// last change predates the cutoff, with their organizations, oldest first.
func (db *DB) GetStaleAgreements(ctx context.Context, cutoff time.Time) ([]*models.OrgAgreement, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT o.id, o.name, o.subdomain, o.created_at, o.updated_at,
		       a.id, a.org_id, a.template_version, a.status,
		       a.org_signer_name, a.org_signer_title, a.org_signer_email, a.org_signed_at, a.org_signed_ip,
		       a.vendor_signer_name, a.vendor_signer_title, a.vendor_signed_at,
		       a.void_reason, a.voided_at, a.voided_by,
		       a.document_ref, a.previous_agreement_id, a.created_at, a.updated_at
		FROM agreements a
		JOIN organizations o ON o.id = a.org_id
		WHERE a.status IN ('awaiting_org_signature', 'awaiting_vendor_signature')
		  AND a.updated_at < $1
		ORDER BY a.updated_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get stale agreements: %w", err)
	}
	defer rows.Close()

	var result []*models.OrgAgreement
	for rows.Next() {
		var org models.Organization
		a, err := scanAgreement(rows, &org.ID, &org.Name, &org.Subdomain, &org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan stale agreement: %w", err)
		}
		result = append(result, &models.OrgAgreement{Organization: &org, Agreement: a})
	}
	return result, rows.Err()
}

// GetAgreementStats returns cross-tenant counts by status. Organizations
// with no active agreement row count as not_started; every organization is
// counted exactly once.
func (db *DB) GetAgreementStats(ctx context.Context) (*models.AgreementStats, error) {
	var stats models.AgreementStats
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE a.id IS NULL),
			COUNT(*) FILTER (WHERE a.status = 'awaiting_org_signature'),
			COUNT(*) FILTER (WHERE a.status = 'awaiting_vendor_signature'),
			COUNT(*) FILTER (WHERE a.status = 'executed'),
			COUNT(*) FILTER (WHERE a.status = 'voided'),
			COUNT(*)
		FROM organizations o
		LEFT JOIN agreements a ON a.org_id = o.id AND a.status <> 'superseded'
	`).Scan(
		&stats.NotStarted,
		&stats.AwaitingOrgSignature,
		&stats.AwaitingVendorSignature,
		&stats.Executed,
		&stats.Voided,
		&stats.TotalOrgs,
	)
	if err != nil {
		return nil, fmt.Errorf("get agreement stats: %w", err)
	}
	return &stats, nil
}
