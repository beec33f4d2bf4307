package auth

import (
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

func init() {
	// Register types for session serialization
	gob.Register(uuid.UUID{})
	gob.Register(time.Time{})
}

const (
	// SessionName is the name of the session cookie.
	SessionName = "sevara_session"
	// UserIDKey is the session key for the authenticated user ID.
	UserIDKey = "user_id"
	// EmailKey is the session key for the user's email.
	EmailKey = "email"
	// NameKey is the session key for the user's name.
	NameKey = "name"
	// OrgIDKey is the session key for the user's organization ID.
	OrgIDKey = "org_id"
	// RoleKey is the session key for the user's role.
	RoleKey = "role"
)

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Secret     []byte
	MaxAge     int  // seconds
	Secure     bool // require HTTPS
	HTTPOnly   bool // prevent JavaScript access
	SameSite   http.SameSite
	CookiePath string
}

// DefaultSessionConfig returns a SessionConfig with secure defaults.
func DefaultSessionConfig(secret []byte, secure bool) SessionConfig {
	return SessionConfig{
		Secret:     secret,
		MaxAge:     86400, // 24 hours
		Secure:     secure,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
		CookiePath: "/",
	}
}

// SessionStore wraps a gorilla/sessions store with principal helpers. The
// identity service authenticates users and establishes the session; this
// store only reads the principal back out on each request.
type SessionStore struct {
	store  *sessions.CookieStore
	logger zerolog.Logger
}

// NewSessionStore creates a new session store.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	store := sessions.NewCookieStore(cfg.Secret)
	store.Options = &sessions.Options{
		Path:     cfg.CookiePath,
		MaxAge:   cfg.MaxAge,
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}

	s := &SessionStore{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}

	s.logger.Info().
		Bool("secure", cfg.Secure).
		Int("max_age", cfg.MaxAge).
		Msg("session store initialized")

	return s, nil
}

// SetPrincipal writes the authenticated principal into the session.
func (s *SessionStore) SetPrincipal(r *http.Request, w http.ResponseWriter, p Principal) error {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		// A decode error means a stale or tampered cookie; start fresh.
		session, _ = s.store.New(r, SessionName)
	}

	session.Values[UserIDKey] = p.ID
	session.Values[EmailKey] = p.Email
	session.Values[NameKey] = p.Name
	session.Values[RoleKey] = string(p.Role)
	if p.OrgID != nil {
		session.Values[OrgIDKey] = *p.OrgID
	} else {
		delete(session.Values, OrgIDKey)
	}

	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetPrincipal reads the authenticated principal from the session.
func (s *SessionStore) GetPrincipal(r *http.Request) (*Principal, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	userID, ok := session.Values[UserIDKey].(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return nil, fmt.Errorf("no authenticated principal in session")
	}

	p := &Principal{ID: userID}
	if email, ok := session.Values[EmailKey].(string); ok {
		p.Email = email
	}
	if name, ok := session.Values[NameKey].(string); ok {
		p.Name = name
	}
	if roleStr, ok := session.Values[RoleKey].(string); ok {
		p.Role = models.UserRole(roleStr)
	}
	if orgID, ok := session.Values[OrgIDKey].(uuid.UUID); ok {
		p.OrgID = &orgID
	}
	return p, nil
}

// ClearPrincipal removes the principal from the session.
func (s *SessionStore) ClearPrincipal(r *http.Request, w http.ResponseWriter) error {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		session, _ = s.store.New(r, SessionName)
	}

	session.Options.MaxAge = -1
	for k := range session.Values {
		delete(session.Values, k)
	}

	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
