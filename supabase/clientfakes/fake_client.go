// Package clientfakes provides an in-memory supabase.Client for tests.
// Default behaviour mimics a healthy backend; individual operations can
// be scripted through the Fn/Err fields, and Emit drives the session
// change stream by hand.
package clientfakes

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/soulsako/fitlink/supabase"
)

var _ supabase.Client = (*FakeClient)(nil)

// ProfileUpdate records one UpdateProfile call.
type ProfileUpdate struct {
	UserID string
	Patch  map[string]any
}

// LocationUpdate records one UpdateUserLocation call.
type LocationUpdate struct {
	UserID      string
	Lat, Lng    float64
	Postcode    string
	CouncilArea string
}

// ResetCall records one ResetPasswordForEmail call.
type ResetCall struct {
	Email      string
	RedirectTo string
}

type FakeClient struct {
	lock      sync.Mutex
	session   *supabase.Session
	listeners map[int]supabase.SessionListener
	nextID    int

	// Profiles holds the rows served by SelectProfile, keyed by user id.
	Profiles map[string]*supabase.ProfileRow

	// Scripted behaviour; nil/zero means the healthy default.
	GetSessionFn     func(ctx context.Context) (*supabase.Session, error)
	SignInErr        error
	SignUpErr        error
	OAuthURL         string
	OAuthErr         error
	SetSessionFn     func(ctx context.Context, tokens supabase.TokenPair) error
	RefreshErr       error
	SignOutFn        func(ctx context.Context, scope supabase.SignOutScope) error
	ResetErr         error
	PasswordErr      error
	SelectProfileErr error
	UpdateProfileErr error
	LocationErr      error

	// Recorded calls.
	SignInCalls        []string
	SignUpCalls        []supabase.SignUpData
	OAuthCalls         []supabase.OAuthRequest
	SetSessionCalls    []supabase.TokenPair
	RefreshCalls       int
	SignOutCalls       []supabase.SignOutScope
	ResetCalls         []ResetCall
	PasswordCalls      []string
	SelectProfileCalls []string
	UpdateProfileCalls []ProfileUpdate
	LocationCalls      []LocationUpdate
	Unsubscribes       int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		listeners: make(map[int]supabase.SessionListener),
		Profiles:  make(map[string]*supabase.ProfileRow),
	}
}

// NewSession mints a session for the given email with a fresh identity.
func NewSession(email string) *supabase.Session {
	return &supabase.Session{
		AccessToken:  "access-" + uuid.New().String(),
		RefreshToken: "refresh-" + uuid.New().String(),
		Identity: supabase.Identity{
			ID:    uuid.New().String(),
			Email: email,
		},
	}
}

// Emit pushes a session change to every registered listener, in the order
// the production client would: serialized, current call completing before
// the next.
func (f *FakeClient) Emit(event supabase.AuthChangeEvent, session *supabase.Session) {
	f.lock.Lock()
	f.session = session
	listeners := make([]supabase.SessionListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.lock.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}

// Session returns the fake's current session.
func (f *FakeClient) Session() *supabase.Session {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.session
}

func (f *FakeClient) GetSession(ctx context.Context) (*supabase.Session, error) {
	if f.GetSessionFn != nil {
		return f.GetSessionFn(ctx)
	}
	return f.Session(), nil
}

func (f *FakeClient) OnSessionChange(listener supabase.SessionListener) supabase.Subscription {
	f.lock.Lock()
	defer f.lock.Unlock()

	id := f.nextID
	f.nextID++
	f.listeners[id] = listener

	var once sync.Once
	return &fakeSubscription{unsubscribe: func() {
		once.Do(func() {
			f.lock.Lock()
			delete(f.listeners, id)
			f.Unsubscribes++
			f.lock.Unlock()
		})
	}}
}

func (f *FakeClient) SignInWithPassword(_ context.Context, email, _ string) error {
	f.lock.Lock()
	f.SignInCalls = append(f.SignInCalls, email)
	err := f.SignInErr
	f.lock.Unlock()

	if err != nil {
		return err
	}
	f.Emit(supabase.SignedIn, NewSession(email))
	return nil
}

func (f *FakeClient) SignUp(_ context.Context, data supabase.SignUpData) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SignUpCalls = append(f.SignUpCalls, data)
	return f.SignUpErr
}

func (f *FakeClient) SignInWithOAuth(_ context.Context, req supabase.OAuthRequest) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.OAuthCalls = append(f.OAuthCalls, req)
	if f.OAuthErr != nil {
		return "", f.OAuthErr
	}
	if f.OAuthURL != "" {
		return f.OAuthURL, nil
	}
	return "https://fake.supabase.co/auth/v1/authorize?provider=" + req.Provider, nil
}

func (f *FakeClient) SetSession(ctx context.Context, tokens supabase.TokenPair) error {
	f.lock.Lock()
	f.SetSessionCalls = append(f.SetSessionCalls, tokens)
	fn := f.SetSessionFn
	f.lock.Unlock()

	if fn != nil {
		return fn(ctx, tokens)
	}

	f.Emit(supabase.SignedIn, &supabase.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Identity:     supabase.Identity{ID: uuid.New().String()},
	})
	return nil
}

func (f *FakeClient) RefreshSession(_ context.Context) error {
	f.lock.Lock()
	f.RefreshCalls++
	err := f.RefreshErr
	current := f.session
	f.lock.Unlock()

	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}

	refreshed := *current
	refreshed.AccessToken = "access-" + uuid.New().String()
	f.Emit(supabase.TokenRefreshed, &refreshed)
	return nil
}

func (f *FakeClient) SignOut(ctx context.Context, scope supabase.SignOutScope) error {
	f.lock.Lock()
	f.SignOutCalls = append(f.SignOutCalls, scope)
	fn := f.SignOutFn
	f.lock.Unlock()

	if fn != nil {
		return fn(ctx, scope)
	}
	if scope == supabase.SignOutLocal {
		f.Emit(supabase.SignedOut, nil)
	}
	return nil
}

func (f *FakeClient) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ResetCalls = append(f.ResetCalls, ResetCall{Email: email, RedirectTo: redirectTo})
	return f.ResetErr
}

func (f *FakeClient) UpdateUserPassword(_ context.Context, newPassword string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.PasswordCalls = append(f.PasswordCalls, newPassword)
	return f.PasswordErr
}

func (f *FakeClient) SelectProfile(_ context.Context, userID string) (*supabase.ProfileRow, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.SelectProfileCalls = append(f.SelectProfileCalls, userID)
	if f.SelectProfileErr != nil {
		return nil, f.SelectProfileErr
	}
	row, ok := f.Profiles[userID]
	if !ok {
		return nil, &supabase.APIError{Status: 406, Message: "no rows returned"}
	}
	copied := *row
	return &copied, nil
}

func (f *FakeClient) UpdateProfile(_ context.Context, userID string, patch map[string]any) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.UpdateProfileCalls = append(f.UpdateProfileCalls, ProfileUpdate{UserID: userID, Patch: patch})
	return f.UpdateProfileErr
}

func (f *FakeClient) UpdateUserLocation(_ context.Context, userID string, lat, lng float64, postcode, councilArea string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LocationCalls = append(f.LocationCalls, LocationUpdate{
		UserID:      userID,
		Lat:         lat,
		Lng:         lng,
		Postcode:    postcode,
		CouncilArea: councilArea,
	})
	return f.LocationErr
}

type fakeSubscription struct {
	unsubscribe func()
}

func (s *fakeSubscription) Unsubscribe() {
	s.unsubscribe()
}
