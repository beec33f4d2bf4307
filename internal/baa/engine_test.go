package baa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements Store in memory with the same compare-and-set
// semantics as the Postgres store: a transition whose precondition no
// longer holds fails with db.ErrConflict, and at most one non-superseded
// agreement can exist per organization.
type memStore struct {
	mu         sync.Mutex
	orgs       map[uuid.UUID]*models.Organization
	agreements map[uuid.UUID]*models.Agreement
	templates  map[int]*models.Template
	audits     []*models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		orgs:       make(map[uuid.UUID]*models.Organization),
		agreements: make(map[uuid.UUID]*models.Agreement),
		templates:  make(map[int]*models.Template),
	}
}

func (m *memStore) addOrg(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	org := models.NewOrganization(name, name)
	m.orgs[org.ID] = org
	return org.ID
}

func (m *memStore) addTemplate(version int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[version] = &models.Template{
		Version:            version,
		BodyText:           fmt.Sprintf("BAA template v%d body", version),
		VendorLegalName:    "Sevara Health, Inc.",
		VendorContactEmail: "legal@sevarahealth.com",
		PublishedAt:        time.Now(),
	}
}

func copyAgreement(a *models.Agreement) *models.Agreement {
	cp := *a
	if a.OrgSignature != nil {
		sig := *a.OrgSignature
		cp.OrgSignature = &sig
	}
	if a.VendorSignature != nil {
		sig := *a.VendorSignature
		cp.VendorSignature = &sig
	}
	if a.VoidInfo != nil {
		vi := *a.VoidInfo
		cp.VoidInfo = &vi
	}
	return &cp
}

func (m *memStore) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return org, nil
}

func (m *memStore) activeLocked(orgID uuid.UUID) *models.Agreement {
	for _, a := range m.agreements {
		if a.OrgID == orgID && a.Status != models.AgreementStatusSuperseded {
			return a
		}
	}
	return nil
}

func (m *memStore) GetActiveAgreement(_ context.Context, orgID uuid.UUID) (*models.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.activeLocked(orgID); a != nil {
		return copyAgreement(a), nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetAgreementByID(_ context.Context, id uuid.UUID) (*models.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyAgreement(a), nil
}

func (m *memStore) GetAgreementHistory(_ context.Context, orgID uuid.UUID) ([]*models.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var history []*models.Agreement
	for _, a := range m.agreements {
		if a.OrgID == orgID {
			history = append(history, copyAgreement(a))
		}
	}
	// newest first
	for i := 0; i < len(history); i++ {
		for j := i + 1; j < len(history); j++ {
			if history[j].CreatedAt.After(history[i].CreatedAt) {
				history[i], history[j] = history[j], history[i]
			}
		}
	}
	return history, nil
}

func (m *memStore) GetLatestTemplate(_ context.Context) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Template
	for _, t := range m.templates {
		if latest == nil || t.Version > latest.Version {
			latest = t
		}
	}
	if latest == nil {
		return nil, db.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) GetTemplate(_ context.Context, version int) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[version]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (m *memStore) CreateAgreement(_ context.Context, a *models.Agreement, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked(a.OrgID) != nil {
		return db.ErrConflict
	}
	m.agreements[a.ID] = copyAgreement(a)
	if audit != nil {
		m.audits = append(m.audits, audit)
	}
	return nil
}

func (m *memStore) TransitionAgreement(_ context.Context, a *models.Agreement, expected models.AgreementStatus, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.agreements[a.ID]
	if !ok || stored.Status != expected {
		return db.ErrConflict
	}
	m.agreements[a.ID] = copyAgreement(a)
	if audit != nil {
		m.audits = append(m.audits, audit)
	}
	return nil
}

func (m *memStore) SupersedeAgreement(_ context.Context, old *models.Agreement, expected models.AgreementStatus, replacement *models.Agreement, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.agreements[old.ID]
	if !ok || stored.Status != expected {
		return db.ErrConflict
	}
	old.Status = models.AgreementStatusSuperseded
	m.agreements[old.ID] = copyAgreement(old)
	if m.activeLocked(replacement.OrgID) != nil {
		old.Status = expected
		m.agreements[old.ID] = copyAgreement(old)
		return db.ErrConflict
	}
	m.agreements[replacement.ID] = copyAgreement(replacement)
	if audit != nil {
		m.audits = append(m.audits, audit)
	}
	return nil
}

func (m *memStore) SetAgreementDocumentRef(_ context.Context, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return db.ErrNotFound
	}
	a.DocumentRef = ref
	return nil
}

func (m *memStore) ListOrgAgreements(_ context.Context, filter models.AgreementFilter) ([]*models.OrgAgreement, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.OrgAgreement
	for _, org := range m.orgs {
		entry := &models.OrgAgreement{Organization: org}
		if a := m.activeLocked(org.ID); a != nil {
			entry.Agreement = copyAgreement(a)
		}
		switch filter.Status {
		case "":
		case models.AgreementStatusNotStarted:
			if entry.Agreement != nil {
				continue
			}
		default:
			if entry.Agreement == nil || entry.Agreement.Status != filter.Status {
				continue
			}
		}
		result = append(result, entry)
	}
	return result, int64(len(result)), nil
}

func (m *memStore) GetAgreementStats(_ context.Context) (*models.AgreementStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.AgreementStats{}
	for _, org := range m.orgs {
		stats.TotalOrgs++
		a := m.activeLocked(org.ID)
		switch {
		case a == nil:
			stats.NotStarted++
		case a.Status == models.AgreementStatusAwaitingOrgSignature:
			stats.AwaitingOrgSignature++
		case a.Status == models.AgreementStatusAwaitingVendorSignature:
			stats.AwaitingVendorSignature++
		case a.Status == models.AgreementStatusExecuted:
			stats.Executed++
		case a.Status == models.AgreementStatusVoided:
			stats.Voided++
		}
	}
	return stats, nil
}

// assertSingleActive checks the core invariant: at most one non-superseded
// agreement per organization.
func (m *memStore) assertSingleActive(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, a := range m.agreements {
		if a.Status != models.AgreementStatusSuperseded {
			counts[a.OrgID]++
		}
	}
	for orgID, n := range counts {
		if n > 1 {
			t.Fatalf("organization %s has %d active agreements", orgID, n)
		}
	}
}

// mockDocs implements DocumentService for testing.
type mockDocs struct {
	mu        sync.Mutex
	stored    map[string][]byte
	renderErr error
	fetchErr  error
	rendered  chan string
}

func newMockDocs() *mockDocs {
	return &mockDocs{
		stored:   make(map[string][]byte),
		rendered: make(chan string, 8),
	}
}

func (d *mockDocs) RenderAndStore(_ context.Context, a *models.Agreement, _ *models.Template) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.renderErr != nil {
		return "", d.renderErr
	}
	ref := "agreements/" + a.ID.String() + ".pdf"
	d.stored[ref] = []byte("document for " + a.ID.String())
	select {
	case d.rendered <- ref:
	default:
	}
	return ref, nil
}

func (d *mockDocs) Fetch(_ context.Context, ref string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	data, ok := d.stored[ref]
	if !ok {
		return nil, errors.New("document not found")
	}
	return data, nil
}

func testEngine(store Store, docs DocumentService) *Engine {
	return NewEngine(store, docs, zerolog.Nop())
}

func testActor() Actor {
	return Actor{UserID: uuid.New(), IP: "203.0.113.10", UserAgent: "test"}
}

func TestStatusNotStartedIsVirtual(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	view, err := engine.Status(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusNotStarted, view.Info.Status)
	assert.Nil(t, view.Agreement)
	require.NotNil(t, view.Template)
	assert.Equal(t, 1, view.Template.Version)

	// Reading status must not create a row.
	store.mu.Lock()
	assert.Empty(t, store.agreements)
	store.mu.Unlock()
}

func TestStatusUnknownOrg(t *testing.T) {
	engine := testEngine(newMemStore(), nil)
	_, err := engine.Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureStartedCreatesOnce(t *testing.T) {
	store := newMemStore()
	store.addTemplate(2)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	first, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusAwaitingOrgSignature, first.Status)
	assert.Equal(t, 2, first.TemplateVersion)

	second, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	store.assertSingleActive(t)
}

func TestSignHappyPath(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	actor := testActor()
	agreement, err := engine.Sign(context.Background(), orgID, actor, SignRequest{
		SignerName:  "Jane Doe",
		SignerTitle: "Practice Administrator",
		SignerEmail: "jane@acmeclinic.com",
		Consent:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusAwaitingVendorSignature, agreement.Status)
	require.NotNil(t, agreement.OrgSignature)
	assert.Equal(t, "Jane Doe", agreement.OrgSignature.SignerName)
	assert.Equal(t, "203.0.113.10", agreement.OrgSignature.SourceIP)
	assert.False(t, agreement.OrgSignature.SignedAt.IsZero())

	stored, err := store.GetActiveAgreement(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.OrgSignature.SignerName)
}

func TestSignValidationWritesNothing(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	tests := []struct {
		name  string
		req   SignRequest
		field string
	}{
		{"missing consent", SignRequest{SignerName: "Jane", SignerTitle: "Admin", SignerEmail: "j@x.com"}, "consent"},
		{"missing name", SignRequest{SignerTitle: "Admin", SignerEmail: "j@x.com", Consent: true}, "signer_name"},
		{"missing title", SignRequest{SignerName: "Jane", SignerEmail: "j@x.com", Consent: true}, "signer_title"},
		{"missing email", SignRequest{SignerName: "Jane", SignerTitle: "Admin", Consent: true}, "signer_email"},
		{"malformed email", SignRequest{SignerName: "Jane", SignerTitle: "Admin", SignerEmail: "not-an-email", Consent: true}, "signer_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Sign(context.Background(), orgID, testActor(), tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	// Validation failures must not create the agreement row.
	store.mu.Lock()
	assert.Empty(t, store.agreements)
	store.mu.Unlock()

	// Retry with corrected input succeeds.
	_, err := engine.Sign(context.Background(), orgID, testActor(), SignRequest{
		SignerName: "Jane Doe", SignerTitle: "Admin", SignerEmail: "jane@x.com", Consent: true,
	})
	require.NoError(t, err)
}

func TestSignAlreadySigned(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	req := SignRequest{SignerName: "Jane", SignerTitle: "Admin", SignerEmail: "j@x.com", Consent: true}
	_, err := engine.Sign(context.Background(), orgID, testActor(), req)
	require.NoError(t, err)

	_, err = engine.Sign(context.Background(), orgID, testActor(), req)
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.AgreementStatusAwaitingVendorSignature, te.Current)
}

func TestCountersignBeforeSign(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	// No row at all.
	_, err := engine.Countersign(context.Background(), orgID, testActor(), CountersignRequest{
		SignerName: "Val Moreno", SignerTitle: "VP Compliance",
	})
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.AgreementStatusNotStarted, te.Current)

	// Row exists but org has not signed.
	_, err = engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)
	_, err = engine.Countersign(context.Background(), orgID, testActor(), CountersignRequest{
		SignerName: "Val Moreno", SignerTitle: "VP Compliance",
	})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.AgreementStatusAwaitingOrgSignature, te.Current)
	assert.Contains(t, te.Error(), "organization has not yet signed")

	// No vendor fields may be written on a rejected countersign.
	stored, err := store.GetActiveAgreement(context.Background(), orgID)
	require.NoError(t, err)
	assert.Nil(t, stored.VendorSignature)
}

func signAndCountersign(t *testing.T, engine *Engine, orgID uuid.UUID) *models.Agreement {
	t.Helper()
	_, err := engine.Sign(context.Background(), orgID, testActor(), SignRequest{
		SignerName: "Jane Doe", SignerTitle: "Admin", SignerEmail: "jane@x.com", Consent: true,
	})
	require.NoError(t, err)
	executed, err := engine.Countersign(context.Background(), orgID, testActor(), CountersignRequest{
		SignerName: "Val Moreno", SignerTitle: "VP Compliance",
	})
	require.NoError(t, err)
	return executed
}

func TestCountersignExecutes(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	docs := newMockDocs()
	engine := testEngine(store, docs)

	executed := signAndCountersign(t, engine, orgID)
	assert.Equal(t, models.AgreementStatusExecuted, executed.Status)
	require.NotNil(t, executed.OrgSignature)
	require.NotNil(t, executed.VendorSignature)
	assert.Equal(t, "Val Moreno", executed.VendorSignature.SignerName)

	// Rendering runs after the transition commits.
	select {
	case <-docs.rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("document was not rendered after execution")
	}
}

func TestExecutedRequiresBothSignatures(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	signAndCountersign(t, engine, orgID)

	stored, err := store.GetActiveAgreement(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusExecuted, stored.Status)
	assert.NotNil(t, stored.OrgSignature)
	assert.NotNil(t, stored.VendorSignature)
}

func TestVoidExecutedAgreement(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	signAndCountersign(t, engine, orgID)

	actor := testActor()
	voided, err := engine.Void(context.Background(), orgID, actor, "contract terminated")
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusVoided, voided.Status)
	require.NotNil(t, voided.VoidInfo)
	assert.Equal(t, "contract terminated", voided.VoidInfo.Reason)
	assert.Equal(t, actor.UserID, voided.VoidInfo.VoidedBy)
}

func TestVoidTwiceFailsSecondTime(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	signAndCountersign(t, engine, orgID)
	first, err := engine.Void(context.Background(), orgID, testActor(), "contract terminated")
	require.NoError(t, err)

	_, err = engine.Void(context.Background(), orgID, testActor(), "again")
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.AgreementStatusVoided, te.Current)

	// State unchanged by the rejected second void.
	stored, err := store.GetActiveAgreement(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, first.VoidInfo.Reason, stored.VoidInfo.Reason)
	assert.Equal(t, first.VoidInfo.VoidedAt.Unix(), stored.VoidInfo.VoidedAt.Unix())
}

func TestVoidEmptyReason(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	_, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)

	_, err = engine.Void(context.Background(), orgID, testActor(), "   ")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reason", ve.Field)
}

func TestSupersedeRoundTrip(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	executed := signAndCountersign(t, engine, orgID)
	store.addTemplate(2)

	replacement, err := engine.Supersede(context.Background(), orgID, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusAwaitingOrgSignature, replacement.Status)
	assert.Equal(t, 2, replacement.TemplateVersion)
	require.NotNil(t, replacement.PreviousAgreementID)
	assert.Equal(t, executed.ID, *replacement.PreviousAgreementID)

	old, err := store.GetAgreementByID(context.Background(), executed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusSuperseded, old.Status)

	history, err := engine.Detail(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, history.History, 2)
	assert.Equal(t, replacement.ID, history.History[0].ID)
	assert.Equal(t, executed.ID, history.History[1].ID)

	store.assertSingleActive(t)
}

func TestSupersedeVoidedAgreement(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	executed := signAndCountersign(t, engine, orgID)
	voided, err := engine.Void(context.Background(), orgID, testActor(), "contract terminated")
	require.NoError(t, err)
	require.Equal(t, executed.ID, voided.ID)
	store.addTemplate(2)

	replacement, err := engine.Supersede(context.Background(), orgID, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusAwaitingOrgSignature, replacement.Status)
	assert.Equal(t, 2, replacement.TemplateVersion)

	old, err := store.GetAgreementByID(context.Background(), voided.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusSuperseded, old.Status)

	store.assertSingleActive(t)
}

func TestSupersedeRequiresNewerTemplate(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	signAndCountersign(t, engine, orgID)

	_, err := engine.Supersede(context.Background(), orgID, testActor())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "template_version", ve.Field)
}

func TestSupersedeRejectedWhileSigning(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	_, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)
	store.addTemplate(2)

	_, err = engine.Supersede(context.Background(), orgID, testActor())
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.AgreementStatusAwaitingOrgSignature, te.Current)
}

func TestConcurrentSignExactlyOneWins(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	_, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)

	names := []string{"Jane Doe", "John Roe"}
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = engine.Sign(context.Background(), orgID, testActor(), SignRequest{
				SignerName: name, SignerTitle: "Admin", SignerEmail: "sig@x.com", Consent: true,
			})
		}(i, name)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case IsInvalidTransition(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent sign must win")
	assert.Equal(t, 1, conflicts, "the loser must get an invalid transition")

	stored, err := store.GetActiveAgreement(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusAwaitingVendorSignature, stored.Status)
	assert.Contains(t, names, stored.OrgSignature.SignerName)
	store.assertSingleActive(t)
}

func TestDownloadRequiresExecution(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	docs := newMockDocs()
	engine := testEngine(store, docs)

	pending, err := engine.EnsureStarted(context.Background(), orgID, testActor())
	require.NoError(t, err)

	_, _, err = engine.Download(context.Background(), pending.ID)
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "download", te.Attempted)
}

func TestDownloadVoidedAfterExecutionStaysAvailable(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	docs := newMockDocs()
	engine := testEngine(store, docs)

	executed := signAndCountersign(t, engine, orgID)
	select {
	case <-docs.rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("document was not rendered")
	}

	_, err := engine.Void(context.Background(), orgID, testActor(), "contract terminated")
	require.NoError(t, err)

	data, a, err := engine.Download(context.Background(), executed.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, models.AgreementStatusVoided, a.Status)
}

func TestDownloadRendersOnDemand(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	engine := testEngine(store, nil)

	// Execute without a document service, then attach one for download.
	executed := signAndCountersign(t, engine, orgID)
	docs := newMockDocs()
	engine.docs = docs

	data, a, err := engine.Download(context.Background(), executed.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.NotEmpty(t, a.DocumentRef)
}

func TestDownloadDependencyFailure(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	orgID := store.addOrg("acme-clinic")
	docs := newMockDocs()
	engine := testEngine(store, docs)

	executed := signAndCountersign(t, engine, orgID)
	select {
	case <-docs.rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("document was not rendered")
	}

	docs.mu.Lock()
	docs.fetchErr = errors.New("storage unavailable")
	docs.mu.Unlock()

	_, _, err := engine.Download(context.Background(), executed.ID)
	assert.True(t, IsDependency(err), "expected dependency failure, got %v", err)

	// Lifecycle state is untouched by the dependency failure.
	stored, err := store.GetAgreementByID(context.Background(), executed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusExecuted, stored.Status)
}

func TestStatsCountEachOrgOnce(t *testing.T) {
	store := newMemStore()
	store.addTemplate(1)
	engine := testEngine(store, nil)
	ctx := context.Background()

	// Five orgs in five different states.
	notStarted := store.addOrg("org-a")
	awaitingOrg := store.addOrg("org-b")
	awaitingVendor := store.addOrg("org-c")
	executed := store.addOrg("org-d")
	voided := store.addOrg("org-e")
	_ = notStarted

	_, err := engine.EnsureStarted(ctx, awaitingOrg, testActor())
	require.NoError(t, err)

	_, err = engine.Sign(ctx, awaitingVendor, testActor(), SignRequest{
		SignerName: "A", SignerTitle: "B", SignerEmail: "a@b.c", Consent: true,
	})
	require.NoError(t, err)

	signAndCountersign(t, engine, executed)

	signAndCountersign(t, engine, voided)
	_, err = engine.Void(ctx, voided, testActor(), "terminated")
	require.NoError(t, err)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.NotStarted)
	assert.Equal(t, int64(1), stats.AwaitingOrgSignature)
	assert.Equal(t, int64(1), stats.AwaitingVendorSignature)
	assert.Equal(t, int64(1), stats.Executed)
	assert.Equal(t, int64(1), stats.Voided)
	sum := stats.NotStarted + stats.AwaitingOrgSignature + stats.AwaitingVendorSignature + stats.Executed + stats.Voided
	assert.Equal(t, stats.TotalOrgs, sum)
}

func TestListStatusFilterValidation(t *testing.T) {
	engine := testEngine(newMemStore(), nil)
	_, _, err := engine.List(context.Background(), models.AgreementFilter{Status: "bogus"})
	assert.True(t, IsValidation(err))
}
