// Package supabase is the narrow client contract through which the app
// reaches its identity backend: session CRUD, password and OAuth sign-in,
// and row-store access to the profiles table. The backend's internals are
// out of scope; everything here is specified at the wire boundary.
package supabase

import "context"

// AuthChangeEvent names the session transitions pushed to listeners.
type AuthChangeEvent string

const (
	SignedIn         AuthChangeEvent = "SIGNED_IN"
	SignedOut        AuthChangeEvent = "SIGNED_OUT"
	TokenRefreshed   AuthChangeEvent = "TOKEN_REFRESHED"
	UserUpdated      AuthChangeEvent = "USER_UPDATED"
	PasswordRecovery AuthChangeEvent = "PASSWORD_RECOVERY"
)

// SessionListener receives every session change. A nil session means the
// user is signed out.
type SessionListener func(event AuthChangeEvent, session *Session)

// Subscription is the handle for a registered listener. Unsubscribe is
// idempotent; releasing it stops all further deliveries.
type Subscription interface {
	Unsubscribe()
}

// SignOutScope selects how far a sign-out reaches: this device only, or
// a server-side revocation of the refresh token.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
)

// SignUpData carries a new-user registration.
type SignUpData struct {
	Email    string
	Password string
	// Metadata is attached to the identity, e.g. {"full_name": ...}.
	Metadata map[string]any
}

// OAuthRequest asks the backend for a third-party authorization URL.
type OAuthRequest struct {
	Provider    string
	RedirectTo  string
	QueryParams map[string]string
}

// TokenPair is an externally-obtained token pair, exchanged for a session
// via SetSession.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Client is the identity backend contract consumed by the coordinator and
// the profile synchronizer.
type Client interface {
	// GetSession returns the current session, restoring it from the
	// persistent store if needed, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange subscribes to session change notifications.
	// Deliveries are serialized in arrival order.
	OnSessionChange(listener SessionListener) Subscription

	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, data SignUpData) error
	// SignInWithOAuth returns the provider authorization URL for the app
	// to open; the backend brokers the provider exchange.
	SignInWithOAuth(ctx context.Context, req OAuthRequest) (string, error)
	// SetSession installs a session from an externally obtained token pair.
	SetSession(ctx context.Context, tokens TokenPair) error
	RefreshSession(ctx context.Context) error
	SignOut(ctx context.Context, scope SignOutScope) error

	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUserPassword(ctx context.Context, newPassword string) error

	// Row-store access to the profiles table, keyed by identity id.
	SelectProfile(ctx context.Context, userID string) (*ProfileRow, error)
	UpdateProfile(ctx context.Context, userID string, patch map[string]any) error
	// UpdateUserLocation calls the update_user_location RPC for an atomic
	// location+address write.
	UpdateUserLocation(ctx context.Context, userID string, lat, lng float64, postcode, councilArea string) error
}

// ProfileRow mirrors the profiles table wire shape. Location stays in its
// encoded geography form here; decoding is the profile synchronizer's job.
type ProfileRow struct {
	ID                  string  `json:"id"`
	Email               string  `json:"email"`
	FullName            string  `json:"full_name"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	Postcode            *string `json:"postcode,omitempty"`
	CouncilArea         *string `json:"council_area,omitempty"`
	PhoneNumber         *string `json:"phone_number,omitempty"`
	Location            *string `json:"location,omitempty"`
	OnboardingCompleted bool    `json:"onboarding_completed"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}
