package supabase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Identity is the backend's notion of which user is signed in, carried as
// claims inside the access token.
type Identity struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// Session is the authenticated-identity token pair. A session is either
// fully present or absent; no partially-built session is ever published.
// Sessions are immutable once received; a refresh delivers a new value
// through the listener rather than patching fields in place.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}

// Expired reports whether the access token has passed its expiry.
// Sessions without an exp claim never expire locally.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ParseAccessToken reads the identity claims out of a backend access
// token. The token is signed with a server-only secret, so the signature
// is not (and cannot be) verified here; the backend remains the authority
// on whether the token is actually valid.
func ParseAccessToken(accessToken string) (Identity, time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return Identity{}, time.Time{}, errors.Wrap(err, "[ParseAccessToken] parse")
	}

	identity := Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		identity.ID = sub
	}
	if identity.ID == "" {
		return Identity{}, time.Time{}, errors.New("[ParseAccessToken] token has no subject")
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		identity.Metadata = meta
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return identity, expiresAt, nil
}
