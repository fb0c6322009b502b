package profile

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soulsako/fitlink/geo"
	"github.com/soulsako/fitlink/supabase"
)

// Synchronizer fetches, normalizes and updates the profiles row keyed by
// the session's user id.
type Synchronizer struct {
	client  supabase.Client
	logger  zerolog.Logger
	nowTime func() time.Time
}

// SynchronizerOption modifies a Synchronizer instance.
type SynchronizerOption func(*Synchronizer)

// WithLogger sets the synchronizer logger.
func WithLogger(logger zerolog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) {
		s.nowTime = nowFunc
	}
}

// NewSynchronizer initializes a Synchronizer with required dependencies.
func NewSynchronizer(client supabase.Client, options ...SynchronizerOption) (*Synchronizer, error) {
	if client == nil {
		return nil, errors.New("[NewSynchronizer] client is required")
	}

	s := &Synchronizer{
		client:  client,
		logger:  log.Logger,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Fetch returns the profile for userID, or nil when the row cannot be
// read. Errors are logged, never returned: a missing profile degrades the
// UI, it must not break the session.
func (s *Synchronizer) Fetch(ctx context.Context, userID string) *Profile {
	row, err := s.client.SelectProfile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile fetch failed")
		return nil
	}
	return s.fromRow(row)
}

// Update writes the patch and re-fetches the row so the caller sees
// server-computed fields, not just what it wrote. Always stamps
// updated_at; encodes the location before it touches the wire.
func (s *Synchronizer) Update(ctx context.Context, userID string, patch Patch) (*Profile, *Error) {
	return s.write(ctx, userID, s.patchColumns(patch))
}

// CompleteOnboarding stores the onboarding fields and marks onboarding
// done in a single write.
func (s *Synchronizer) CompleteOnboarding(ctx context.Context, userID string, data OnboardingData) (*Profile, *Error) {
	columns := map[string]any{
		"postcode":             data.Postcode,
		"council_area":         data.CouncilArea,
		"phone_number":         data.PhoneNumber,
		"onboarding_completed": true,
	}
	if data.Location != nil {
		columns["location"] = geo.EncodePoint(*data.Location)
	} else {
		columns["location"] = nil
	}
	return s.write(ctx, userID, columns)
}

// StoreLocation writes location and address atomically through the
// update_user_location RPC, then re-fetches.
func (s *Synchronizer) StoreLocation(ctx context.Context, userID string, location geo.Point, postcode, councilArea string) (*Profile, *Error) {
	err := s.client.UpdateUserLocation(ctx, userID, location.Latitude, location.Longitude, postcode, councilArea)
	if err != nil {
		return nil, asProfileError(err, "Failed to store location")
	}
	return s.Fetch(ctx, userID), nil
}

func (s *Synchronizer) write(ctx context.Context, userID string, columns map[string]any) (*Profile, *Error) {
	columns["updated_at"] = s.nowTime().UTC().Format(time.RFC3339)

	if err := s.client.UpdateProfile(ctx, userID, columns); err != nil {
		return nil, asProfileError(err, "Failed to update profile")
	}
	return s.Fetch(ctx, userID), nil
}

func (s *Synchronizer) patchColumns(patch Patch) map[string]any {
	columns := map[string]any{}
	if patch.FullName != nil {
		columns["full_name"] = *patch.FullName
	}
	if patch.AvatarURL != nil {
		columns["avatar_url"] = *patch.AvatarURL
	}
	if patch.Postcode != nil {
		columns["postcode"] = *patch.Postcode
	}
	if patch.CouncilArea != nil {
		columns["council_area"] = *patch.CouncilArea
	}
	if patch.PhoneNumber != nil {
		columns["phone_number"] = *patch.PhoneNumber
	}
	if patch.Location != nil {
		columns["location"] = geo.EncodePoint(*patch.Location)
	}
	if patch.OnboardingCompleted != nil {
		columns["onboarding_completed"] = *patch.OnboardingCompleted
	}
	return columns
}

// fromRow normalizes the wire row: the geography literal becomes a Point,
// timestamps become time values. A malformed location is dropped rather
// than failing the whole profile.
func (s *Synchronizer) fromRow(row *supabase.ProfileRow) *Profile {
	p := &Profile{
		ID:                  row.ID,
		Email:               row.Email,
		FullName:            row.FullName,
		AvatarURL:           row.AvatarURL,
		Postcode:            row.Postcode,
		CouncilArea:         row.CouncilArea,
		PhoneNumber:         row.PhoneNumber,
		OnboardingCompleted: row.OnboardingCompleted,
		CreatedAt:           parseTimestamp(row.CreatedAt),
		UpdatedAt:           parseTimestamp(row.UpdatedAt),
	}

	if row.Location != nil && *row.Location != "" {
		point, err := geo.DecodePoint(*row.Location)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", row.ID).Msg("dropping malformed profile location")
		} else {
			p.Location = &point
		}
	}

	return p
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func asProfileError(err error, fallback string) *Error {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return &Error{Message: apiErr.Message, Code: apiErr.Code}
	}
	return &Error{Message: fallback}
}
