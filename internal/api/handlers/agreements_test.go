package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/api/middleware"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
	"github.com/sevarahealth/sevara/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func orgAdminPrincipal(orgID uuid.UUID) *auth.Principal {
	return &auth.Principal{
		ID:    uuid.New(),
		Email: "admin@acmeclinic.com",
		Name:  "Jane Doe",
		OrgID: &orgID,
		Role:  models.UserRoleOrgAdmin,
	}
}

func orgMemberPrincipal(orgID uuid.UUID) *auth.Principal {
	return &auth.Principal{
		ID:    uuid.New(),
		Email: "staff@acmeclinic.com",
		Name:  "Sam Lee",
		OrgID: &orgID,
		Role:  models.UserRoleOrgMember,
	}
}

func vendorAdminPrincipal() *auth.Principal {
	return &auth.Principal{
		ID:    uuid.New(),
		Email: "compliance@sevarahealth.com",
		Name:  "Val Moreno",
		Role:  models.UserRoleVendorAdmin,
	}
}

// injectPrincipal seeds the Gin context the way AuthMiddleware would.
func injectPrincipal(p *auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Set(string(middleware.PrincipalContextKey), p)
		}
		c.Next()
	}
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type mockOrgLifecycle struct {
	view      *baa.StatusView
	agreement *models.Agreement
	template  *models.Template
	document  []byte
	err       error

	signedReq *baa.SignRequest
}

func (m *mockOrgLifecycle) Status(_ context.Context, _ uuid.UUID) (*baa.StatusView, error) {
	return m.view, m.err
}

func (m *mockOrgLifecycle) Preview(_ context.Context, _ uuid.UUID, _ baa.Actor) (*models.Agreement, *models.Template, error) {
	return m.agreement, m.template, m.err
}

func (m *mockOrgLifecycle) Sign(_ context.Context, _ uuid.UUID, _ baa.Actor, req baa.SignRequest) (*models.Agreement, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.signedReq = &req
	return m.agreement, nil
}

func (m *mockOrgLifecycle) Download(_ context.Context, _ uuid.UUID) ([]byte, *models.Agreement, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.document, m.agreement, nil
}

func setupAgreementsRouter(engine OrgLifecycle, p *auth.Principal) *gin.Engine {
	r := gin.New()
	r.Use(injectPrincipal(p))
	handler := NewAgreementsHandler(engine, nil, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestStatusEndpoint(t *testing.T) {
	orgID := uuid.New()

	t.Run("returns the status view", func(t *testing.T) {
		engine := &mockOrgLifecycle{view: &baa.StatusView{Info: baa.InfoFor(models.AgreementStatusNotStarted)}}
		r := setupAgreementsRouter(engine, orgMemberPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/status", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var view baa.StatusView
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if view.Info.Status != models.AgreementStatusNotStarted {
			t.Errorf("expected not_started, got %s", view.Info.Status)
		}
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		r := setupAgreementsRouter(&mockOrgLifecycle{}, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/status", nil))

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("rejects principal without an organization", func(t *testing.T) {
		r := setupAgreementsRouter(&mockOrgLifecycle{}, vendorAdminPrincipal())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/status", nil))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestSignEndpoint(t *testing.T) {
	orgID := uuid.New()
	body := SignRequest{
		SignerName:  "Jane Doe",
		SignerTitle: "Practice Administrator",
		SignerEmail: "jane@acmeclinic.com",
		Consent:     true,
	}

	t.Run("signs as org admin", func(t *testing.T) {
		agreement := models.NewAgreement(orgID, 1)
		agreement.Status = models.AgreementStatusAwaitingVendorSignature
		engine := &mockOrgLifecycle{agreement: agreement}
		r := setupAgreementsRouter(engine, orgAdminPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest("POST", "/api/v1/baa/sign", body))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if engine.signedReq == nil || engine.signedReq.SignerName != "Jane Doe" {
			t.Errorf("sign request not forwarded: %+v", engine.signedReq)
		}
	})

	t.Run("forbids org member", func(t *testing.T) {
		r := setupAgreementsRouter(&mockOrgLifecycle{}, orgMemberPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest("POST", "/api/v1/baa/sign", body))

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		engine := &mockOrgLifecycle{err: &baa.ValidationError{Field: "consent", Message: "electronic signature consent is required"}}
		r := setupAgreementsRouter(engine, orgAdminPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest("POST", "/api/v1/baa/sign", SignRequest{}))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		var resp map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["field"] != "consent" {
			t.Errorf("expected field consent, got %q", resp["field"])
		}
	})

	t.Run("maps rejected transitions to 409", func(t *testing.T) {
		engine := &mockOrgLifecycle{err: &baa.InvalidTransitionError{
			Attempted: "sign",
			Current:   models.AgreementStatusExecuted,
		}}
		r := setupAgreementsRouter(engine, orgAdminPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest("POST", "/api/v1/baa/sign", body))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
		var resp map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["current_status"] != "executed" {
			t.Errorf("expected current_status executed, got %v", resp["current_status"])
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		r := setupAgreementsRouter(&mockOrgLifecycle{}, orgAdminPrincipal(orgID))

		req := httptest.NewRequest("POST", "/api/v1/baa/sign", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestDocumentEndpoint(t *testing.T) {
	orgID := uuid.New()

	executed := models.NewAgreement(orgID, 1)
	executed.Status = models.AgreementStatusExecuted

	t.Run("downloads the executed document", func(t *testing.T) {
		engine := &mockOrgLifecycle{
			view:      &baa.StatusView{Info: baa.InfoFor(executed.Status), Agreement: executed},
			agreement: executed,
			document:  []byte("BUSINESS ASSOCIATE AGREEMENT"),
		}
		r := setupAgreementsRouter(engine, orgMemberPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/document", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Content-Disposition"); got == "" {
			t.Error("expected attachment disposition")
		}
		if !bytes.Contains(w.Body.Bytes(), []byte("BUSINESS ASSOCIATE AGREEMENT")) {
			t.Error("document body not returned")
		}
	})

	t.Run("conflict when nothing to download", func(t *testing.T) {
		engine := &mockOrgLifecycle{view: &baa.StatusView{Info: baa.InfoFor(models.AgreementStatusNotStarted)}}
		r := setupAgreementsRouter(engine, orgMemberPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/document", nil))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})

	t.Run("maps document service failures to 502", func(t *testing.T) {
		engine := &downloadFailEngine{&mockOrgLifecycle{
			view: &baa.StatusView{Info: baa.InfoFor(executed.Status), Agreement: executed},
		}}
		r := setupAgreementsRouter(engine, orgMemberPrincipal(orgID))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/baa/document", nil))

		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
	})
}

// downloadFailEngine wraps a mock so Status succeeds but Download reports a
// dependency failure.
type downloadFailEngine struct {
	*mockOrgLifecycle
}

func (d *downloadFailEngine) Download(_ context.Context, _ uuid.UUID) ([]byte, *models.Agreement, error) {
	return nil, nil, &baa.DependencyError{Op: "fetch", Err: context.DeadlineExceeded}
}
