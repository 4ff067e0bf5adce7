// Package session gives every browser a stable, signed session id.
//
// The id is a UUIDv7 carried in the ff_session cookie as the subject of an
// HS256 JWT. Middleware accepts a valid cookie, otherwise issues a new one,
// and exposes the id to handlers through kit.GetSessionID.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hazyhaar/fluidframe/horosafe"
	"github.com/hazyhaar/fluidframe/idgen"
	"github.com/hazyhaar/fluidframe/kit"
	"github.com/hazyhaar/fluidframe/shield"
)

// CookieName is the name of the session cookie.
const CookieName = "ff_session"

const issuer = "fluidframe"

// ErrInvalidToken is returned by Parse for tokens that fail verification.
var ErrInvalidToken = errors.New("session: invalid token")

// Manager issues and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	newID  idgen.Generator
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the token lifetime. Default: 7 days. Tokens past half their
// lifetime are renewed on the next request.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithSecure marks the cookie Secure (HTTPS deployments).
func WithSecure(secure bool) Option { return func(m *Manager) { m.secure = secure } }

// WithIDGenerator overrides the session id generator. Default: UUIDv7.
func WithIDGenerator(g idgen.Generator) Option { return func(m *Manager) { m.newID = g } }

// NewManager returns a Manager signing with secret, which must be at least
// horosafe.MinSecretLen bytes.
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if err := horosafe.ValidateSecret(secret); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	m := &Manager{
		secret: secret,
		ttl:    7 * 24 * time.Hour,
		newID:  idgen.UUIDv7(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Issue returns a signed token for session id.
func (m *Manager) Issue(id string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies token and returns its claims. Only HS256 is accepted.
func (m *Manager) Parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Middleware resolves the session for each request. A missing or invalid
// cookie starts a new session; a token past half its lifetime is reissued
// for the same id.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		renew := false

		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			claims, err := m.Parse(c.Value)
			if err != nil {
				shield.GetLogger(r.Context()).Debug("session: rejected cookie", "error", err)
			} else {
				id = claims.Subject
				renew = claims.ExpiresAt.Sub(m.now()) < m.ttl/2
			}
		}
		if id == "" {
			id = m.newID()
			renew = true
		}

		if renew {
			if err := m.setCookie(w, id); err != nil {
				shield.GetLogger(r.Context()).Error("session: issue token", "error", err)
			}
		}
		next.ServeHTTP(w, r.WithContext(kit.WithSessionID(r.Context(), id)))
	})
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) error {
	token, err := m.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secure,
	})
	return nil
}

// Clear removes the session cookie.
func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
