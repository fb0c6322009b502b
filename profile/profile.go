// Package profile keeps the denormalized user-profile row in sync with
// the signed-in identity. The row is owned by the backend and mirrored
// here; the wire geography encoding never leaks past this package.
package profile

import (
	"time"

	"github.com/soulsako/fitlink/geo"
)

// Profile is the app-level user record, distinct from the identity. It is
// created server-side on first sign-up and never deleted by this client.
type Profile struct {
	ID                  string
	Email               string
	FullName            string
	AvatarURL           *string
	Postcode            *string
	CouncilArea         *string
	PhoneNumber         *string
	Location            *geo.Point
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Error is the failure shape returned (not thrown) by profile operations.
type Error struct {
	Message string
	Code    string
}

// Patch is a partial profile update; nil fields are left untouched.
type Patch struct {
	FullName            *string
	AvatarURL           *string
	Postcode            *string
	CouncilArea         *string
	PhoneNumber         *string
	Location            *geo.Point
	OnboardingCompleted *bool
}

// OnboardingData carries the fields collected by the onboarding flow.
type OnboardingData struct {
	Postcode    string
	CouncilArea string
	PhoneNumber string
	Location    *geo.Point
}
