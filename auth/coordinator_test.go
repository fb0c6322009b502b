package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/soulsako/fitlink/auth"
	"github.com/soulsako/fitlink/internal/config"
	"github.com/soulsako/fitlink/profile"
	"github.com/soulsako/fitlink/storage/memstore"
	"github.com/soulsako/fitlink/supabase"
	"github.com/soulsako/fitlink/supabase/clientfakes"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// testFixture holds all coordinator test dependencies
type testFixture struct {
	client      *clientfakes.FakeClient
	store       *memstore.Store
	coordinator *auth.Coordinator
}

func setupTestFixture(t *testing.T, options ...auth.CoordinatorOption) *testFixture {
	t.Helper()

	client := clientfakes.NewFakeClient()
	store := memstore.New()

	sync, err := profile.NewSynchronizer(client)
	require.NoError(t, err)

	cfg := config.Config{
		AppScheme: "fitlink",
		Platform:  config.PlatformNative,
	}
	coordinator, err := auth.New(cfg, client, store, sync, options...)
	require.NoError(t, err)
	t.Cleanup(coordinator.Close)

	return &testFixture{
		client:      client,
		store:       store,
		coordinator: coordinator,
	}
}

func (f *testFixture) seedProfile(session *supabase.Session) {
	f.client.Profiles[session.Identity.ID] = &supabase.ProfileRow{
		ID:        session.Identity.ID,
		Email:     session.Identity.Email,
		FullName:  "Test User",
		CreatedAt: "2026-01-02T10:00:00Z",
		UpdatedAt: "2026-01-02T10:00:00Z",
	}
}

func (f *testFixture) waitForSession(t *testing.T, want *supabase.Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := f.coordinator.Snapshot()
		if want == nil {
			return snap.Session == nil && !snap.Loading
		}
		return snap.Session != nil && snap.Session.AccessToken == want.AccessToken
	}, waitFor, tick)
}

func TestSnapshotStartsLoading(t *testing.T) {
	f := setupTestFixture(t)

	snap := f.coordinator.Snapshot()
	require.True(t, snap.Loading)
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
}

func TestBootstrapResolvesAnonymous(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	require.Eventually(t, func() bool {
		return !f.coordinator.Snapshot().Loading
	}, waitFor, tick)
	require.Nil(t, f.coordinator.Snapshot().Session)
}

func TestBootstrapRestoresExistingSession(t *testing.T) {
	f := setupTestFixture(t)
	session := clientfakes.NewSession("restored@example.com")
	f.seedProfile(session)
	f.client.GetSessionFn = func(context.Context) (*supabase.Session, error) {
		return session, nil
	}

	f.coordinator.Start(context.Background())
	f.waitForSession(t, session)

	require.Eventually(t, func() bool {
		p := f.coordinator.Snapshot().Profile
		return p != nil && p.ID == session.Identity.ID
	}, waitFor, tick)
}

func TestSignInSuccessPublishesThroughListener(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	require.NoError(t, f.coordinator.SignIn(context.Background(), "user@example.com", "secret123"))

	require.Eventually(t, func() bool {
		snap := f.coordinator.Snapshot()
		return snap.Session != nil &&
			snap.Session.Identity.Email == "user@example.com" &&
			!snap.Loading
	}, waitFor, tick)
	require.Equal(t, []string{"user@example.com"}, f.client.SignInCalls)
}

func TestSignInErrorReturnedToCaller(t *testing.T) {
	f := setupTestFixture(t)
	f.client.SignInErr = &supabase.APIError{Status: 400, Message: "Invalid login credentials"}
	f.coordinator.Start(context.Background())

	err := f.coordinator.SignIn(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)

	var apiErr *supabase.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid login credentials", apiErr.Message)
	require.Nil(t, f.coordinator.Snapshot().Session)
}

func TestSignUpDelegatesWithMetadata(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	require.NoError(t, f.coordinator.SignUp(context.Background(), auth.SignUpData{
		Email:    "new@example.com",
		Password: "secret123",
		FullName: "New User",
	}))

	require.Len(t, f.client.SignUpCalls, 1)
	call := f.client.SignUpCalls[0]
	require.Equal(t, "new@example.com", call.Email)
	require.Equal(t, "New User", call.Metadata["full_name"])
	// Cache untouched until the listener delivers a session.
	require.Nil(t, f.coordinator.Snapshot().Session)
}

func TestStaleBootstrapCannotClobberPushedSession(t *testing.T) {
	f := setupTestFixture(t)

	stale := clientfakes.NewSession("stale@example.com")
	fresh := clientfakes.NewSession("fresh@example.com")
	f.seedProfile(fresh)

	release := make(chan struct{})
	f.client.GetSessionFn = func(context.Context) (*supabase.Session, error) {
		<-release
		return stale, nil
	}

	f.coordinator.Start(context.Background())

	// The pushed change lands while the bootstrap fetch is still in
	// flight.
	f.client.Emit(supabase.SignedIn, fresh)
	f.waitForSession(t, fresh)

	close(release)

	// Give the late bootstrap result every chance to (wrongly) apply.
	time.Sleep(100 * time.Millisecond)
	snap := f.coordinator.Snapshot()
	require.NotNil(t, snap.Session)
	require.Equal(t, "fresh@example.com", snap.Session.Identity.Email)
	require.False(t, snap.Loading)
}

func TestProfileFollowsIdentityChanges(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	first := clientfakes.NewSession("first@example.com")
	second := clientfakes.NewSession("second@example.com")
	f.seedProfile(first)
	f.seedProfile(second)

	f.client.Emit(supabase.SignedIn, first)
	require.Eventually(t, func() bool {
		p := f.coordinator.Snapshot().Profile
		return p != nil && p.ID == first.Identity.ID
	}, waitFor, tick)

	f.client.Emit(supabase.SignedIn, second)
	require.Eventually(t, func() bool {
		p := f.coordinator.Snapshot().Profile
		return p != nil && p.ID == second.Identity.ID
	}, waitFor, tick)

	// No stale-profile carryover: each identity got its own fetch.
	require.Equal(t, []string{first.Identity.ID, second.Identity.ID}, f.client.SelectProfileCalls)
}

func TestRefreshKeepsProfileWithoutRefetch(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	session := clientfakes.NewSession("user@example.com")
	f.seedProfile(session)

	f.client.Emit(supabase.SignedIn, session)
	require.Eventually(t, func() bool {
		return f.coordinator.Snapshot().Profile != nil
	}, waitFor, tick)

	refreshed := *session
	refreshed.AccessToken = "access-rotated"
	f.client.Emit(supabase.TokenRefreshed, &refreshed)
	f.waitForSession(t, &refreshed)

	snap := f.coordinator.Snapshot()
	require.NotNil(t, snap.Profile)
	require.Equal(t, []string{session.Identity.ID}, f.client.SelectProfileCalls)
}

func TestProfileClearedOnRevocation(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	session := clientfakes.NewSession("user@example.com")
	f.seedProfile(session)
	f.client.Emit(supabase.SignedIn, session)
	require.Eventually(t, func() bool {
		return f.coordinator.Snapshot().Profile != nil
	}, waitFor, tick)

	f.client.Emit(supabase.SignedOut, nil)
	f.waitForSession(t, nil)

	snap := f.coordinator.Snapshot()
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
}

func TestSignOutClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	session := clientfakes.NewSession("user@example.com")
	f.seedProfile(session)
	f.client.Emit(supabase.SignedIn, session)
	f.waitForSession(t, session)

	require.NoError(t, f.store.Set("sb-demo-auth-token", "tokens"))
	require.NoError(t, f.store.Set("sb-demo-code-verifier", "verifier"))
	require.NoError(t, f.store.Set("theme", "dark"))

	f.coordinator.SignOut(context.Background())

	snap := f.coordinator.Snapshot()
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
	require.Equal(t, []supabase.SignOutScope{supabase.SignOutLocal, supabase.SignOutGlobal}, f.client.SignOutCalls)

	// Only the backend's namespaced keys were purged.
	keys, err := f.store.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"theme"}, keys)
}

func TestSignOutIdempotentWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	f.coordinator.SignOut(context.Background())
	f.coordinator.SignOut(context.Background())

	snap := f.coordinator.Snapshot()
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
	require.False(t, snap.Loading)
}

func TestSignOutSurvivesGlobalRevokeFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.client.SignOutFn = func(_ context.Context, scope supabase.SignOutScope) error {
		if scope == supabase.SignOutGlobal {
			return errors.New("network unreachable")
		}
		f.client.Emit(supabase.SignedOut, nil)
		return nil
	}
	f.coordinator.Start(context.Background())

	session := clientfakes.NewSession("user@example.com")
	f.seedProfile(session)
	f.client.Emit(supabase.SignedIn, session)
	f.waitForSession(t, session)

	require.NoError(t, f.store.Set("sb-demo-auth-token", "tokens"))

	require.NotPanics(t, func() {
		f.coordinator.SignOut(context.Background())
	})

	snap := f.coordinator.Snapshot()
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)

	keys, err := f.store.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestSignOutFallsBackToFullClear(t *testing.T) {
	client := clientfakes.NewFakeClient()
	store := &failingStore{Store: memstore.New()}
	require.NoError(t, store.Set("sb-demo-auth-token", "tokens"))
	require.NoError(t, store.Set("theme", "dark"))
	store.failMultiRemove = true

	sync, err := profile.NewSynchronizer(client)
	require.NoError(t, err)
	coordinator, err := auth.New(config.Config{AppScheme: "fitlink", Platform: config.PlatformNative}, client, store, sync)
	require.NoError(t, err)
	defer coordinator.Close()

	coordinator.SignOut(context.Background())

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Empty(t, keys, "full clear fallback should have emptied the store")
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	perr := f.coordinator.UpdateProfile(context.Background(), profile.Patch{})
	require.NotNil(t, perr)
	require.Equal(t, "No authenticated user", perr.Message)
}

func TestRefreshSessionSwallowsFailures(t *testing.T) {
	f := setupTestFixture(t)
	f.client.RefreshErr = errors.New("network unreachable")
	f.coordinator.Start(context.Background())

	require.NotPanics(t, func() {
		f.coordinator.RefreshSession(context.Background())
	})
	require.Equal(t, 1, f.client.RefreshCalls)
}

func TestSendPasswordResetEmailUsesDeepLink(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.coordinator.SendPasswordResetEmail(context.Background(), "user@example.com"))

	require.Len(t, f.client.ResetCalls, 1)
	require.Equal(t, "user@example.com", f.client.ResetCalls[0].Email)
	require.Equal(t, "fitlink://reset-password", f.client.ResetCalls[0].RedirectTo)
}

func TestCloseReleasesSubscriptionOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.Start(context.Background())

	f.coordinator.Close()
	f.coordinator.Close()

	require.Equal(t, 1, f.client.Unsubscribes)
}

// failingStore wraps a real store with scripted failures.
type failingStore struct {
	*memstore.Store
	failMultiRemove bool
}

func (s *failingStore) MultiRemove(keys []string) error {
	if s.failMultiRemove {
		return errors.New("storage write failed")
	}
	return s.Store.MultiRemove(keys)
}
