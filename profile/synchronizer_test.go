package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/soulsako/fitlink/geo"
	"github.com/soulsako/fitlink/internal/utils"
	"github.com/soulsako/fitlink/profile"
	"github.com/soulsako/fitlink/supabase"
	"github.com/soulsako/fitlink/supabase/clientfakes"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func setupSynchronizer(t *testing.T) (*profile.Synchronizer, *clientfakes.FakeClient) {
	t.Helper()

	client := clientfakes.NewFakeClient()
	sync, err := profile.NewSynchronizer(client, profile.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)
	return sync, client
}

func seedRow(client *clientfakes.FakeClient, location *string) {
	client.Profiles[testUserID] = &supabase.ProfileRow{
		ID:                  testUserID,
		Email:               "jane@example.com",
		FullName:            "Jane Doe",
		Postcode:            utils.Ptr("EH1 1AA"),
		CouncilArea:         utils.Ptr("Edinburgh"),
		Location:            location,
		OnboardingCompleted: true,
		CreatedAt:           "2026-01-02T10:00:00Z",
		UpdatedAt:           "2026-03-01T10:00:00Z",
	}
}

func TestFetchDecodesLocation(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, utils.Ptr("POINT(-3.1883 55.9533)"))

	p := sync.Fetch(context.Background(), testUserID)
	require.NotNil(t, p)
	require.Equal(t, "jane@example.com", p.Email)
	require.NotNil(t, p.Location)
	require.InDelta(t, 55.9533, p.Location.Latitude, 1e-9)
	require.InDelta(t, -3.1883, p.Location.Longitude, 1e-9)
	require.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), p.CreatedAt)
}

func TestFetchDropsMalformedLocation(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, utils.Ptr("not a point"))

	p := sync.Fetch(context.Background(), testUserID)
	require.NotNil(t, p)
	require.Nil(t, p.Location)
}

func TestFetchFoldsErrorsToNil(t *testing.T) {
	sync, client := setupSynchronizer(t)
	client.SelectProfileErr = &supabase.APIError{Status: 503, Message: "unavailable"}

	require.Nil(t, sync.Fetch(context.Background(), testUserID))
}

func TestUpdateEncodesLocationAndStampsUpdatedAt(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, nil)

	_, perr := sync.Update(context.Background(), testUserID, profile.Patch{
		Location: &geo.Point{Latitude: 10, Longitude: 20},
	})
	require.Nil(t, perr)

	require.Len(t, client.UpdateProfileCalls, 1)
	patch := client.UpdateProfileCalls[0].Patch
	require.Equal(t, "POINT(20 10)", patch["location"])
	require.Equal(t, testNow.Format(time.RFC3339), patch["updated_at"])
}

func TestUpdateRefetchesAfterWrite(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, utils.Ptr("POINT(151.2093 -33.8688)"))

	p, perr := sync.Update(context.Background(), testUserID, profile.Patch{
		FullName: utils.Ptr("Jane D."),
	})
	require.Nil(t, perr)

	// The returned profile comes from the re-fetch, so server-owned
	// fields are present even though the patch never touched them.
	require.NotNil(t, p)
	require.Equal(t, "Jane Doe", p.FullName)
	require.Len(t, client.UpdateProfileCalls, 1)
	require.Equal(t, []string{testUserID}, client.SelectProfileCalls)
}

func TestUpdateReturnsBackendErrorShape(t *testing.T) {
	sync, client := setupSynchronizer(t)
	client.UpdateProfileErr = &supabase.APIError{Status: 403, Code: "42501", Message: "permission denied"}

	_, perr := sync.Update(context.Background(), testUserID, profile.Patch{FullName: utils.Ptr("x")})
	require.NotNil(t, perr)
	require.Equal(t, "permission denied", perr.Message)
	require.Equal(t, "42501", perr.Code)
	require.Empty(t, client.SelectProfileCalls)
}

func TestCompleteOnboarding(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, nil)

	_, perr := sync.CompleteOnboarding(context.Background(), testUserID, profile.OnboardingData{
		Postcode:    "EH1 1AA",
		CouncilArea: "Edinburgh",
		PhoneNumber: "07000000000",
		Location:    &geo.Point{Latitude: 55.9533, Longitude: -3.1883},
	})
	require.Nil(t, perr)

	require.Len(t, client.UpdateProfileCalls, 1)
	patch := client.UpdateProfileCalls[0].Patch
	require.Equal(t, true, patch["onboarding_completed"])
	require.Equal(t, "EH1 1AA", patch["postcode"])
	require.Equal(t, "POINT(-3.1883 55.9533)", patch["location"])
}

func TestStoreLocationUsesRPC(t *testing.T) {
	sync, client := setupSynchronizer(t)
	seedRow(client, nil)

	_, perr := sync.StoreLocation(context.Background(), testUserID, geo.Point{Latitude: 51.5, Longitude: -0.12}, "SW1A 1AA", "Westminster")
	require.Nil(t, perr)

	require.Len(t, client.LocationCalls, 1)
	call := client.LocationCalls[0]
	require.Equal(t, testUserID, call.UserID)
	require.InDelta(t, 51.5, call.Lat, 1e-9)
	require.InDelta(t, -0.12, call.Lng, 1e-9)
	require.Equal(t, "Westminster", call.CouncilArea)
	require.Empty(t, client.UpdateProfileCalls)
}
