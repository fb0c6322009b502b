// Package auth owns the app-wide signed-in state: it establishes the
// session at startup, keeps it current as the backend pushes changes,
// drives the OAuth redirect flow, and tears everything down on sign-out.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soulsako/fitlink/internal/config"
	"github.com/soulsako/fitlink/profile"
	"github.com/soulsako/fitlink/storage"
	"github.com/soulsako/fitlink/supabase"
)

const (
	defaultPollDelay = time.Second
	eventBufferSize  = 16
)

// Snapshot is the published view of the local cache. Loading stays true
// until the first session resolution (bootstrap or pushed change)
// completes; Profile is never non-nil while Session is nil.
type Snapshot struct {
	Session *supabase.Session
	Profile *profile.Profile
	Loading bool
}

// event is one unit of work for the cache loop. Bootstrap events carry
// the generation observed when the fetch was issued so a slow bootstrap
// cannot clobber a session published after it started.
type event struct {
	session   *supabase.Session
	bootstrap bool
	gen       uint64
}

// Coordinator is the only writer of the local session/profile cache.
// Everything else reads immutable snapshots or calls its operations.
type Coordinator struct {
	client   supabase.Client
	store    storage.Store
	profiles *profile.Synchronizer
	browser  Browser
	logger   zerolog.Logger

	scheme    string
	platform  config.Platform
	webOrigin string
	pollDelay time.Duration

	stateLock sync.Mutex
	snapshot  Snapshot
	gen       uint64

	events    chan event
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	sub       supabase.Subscription
}

// CoordinatorOption modifies a Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithBrowser sets the system browser used for OAuth redirect sessions.
func WithBrowser(browser Browser) CoordinatorOption {
	return func(c *Coordinator) {
		c.browser = browser
	}
}

// WithPollDelay sets the post-redirect session poll delay (primarily for
// testing).
func WithPollDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.pollDelay = d
	}
}

// New initializes a Coordinator with required dependencies.
func New(cfg config.Config, client supabase.Client, store storage.Store, profiles *profile.Synchronizer, options ...CoordinatorOption) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("[auth.New] client is required")
	}
	if store == nil {
		return nil, errors.New("[auth.New] store is required")
	}
	if profiles == nil {
		return nil, errors.New("[auth.New] profile synchronizer is required")
	}

	c := &Coordinator{
		client:    client,
		store:     store,
		profiles:  profiles,
		logger:    log.Logger,
		scheme:    cfg.AppScheme,
		platform:  cfg.Platform,
		webOrigin: cfg.WebOrigin,
		pollDelay: defaultPollDelay,
		snapshot:  Snapshot{Loading: true},
		events:    make(chan event, eventBufferSize),
		done:      make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Snapshot returns a copy of the current cache state. Side-effect free;
// the pointers inside are immutable once published.
func (c *Coordinator) Snapshot() Snapshot {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.snapshot
}

// Start begins session resolution: it subscribes to the backend's change
// stream and, concurrently, issues the one-shot current-session fetch.
// Whichever lands first wins; the bootstrap result is discarded if a
// pushed change beat it. Idempotent.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)

		c.sub = c.client.OnSessionChange(func(_ supabase.AuthChangeEvent, session *supabase.Session) {
			c.enqueue(event{session: session})
		})

		go func() {
			gen := c.generation()
			session, err := c.client.GetSession(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("session bootstrap failed")
				session = nil
			}
			c.enqueue(event{session: session, bootstrap: true, gen: gen})
		}()
	})
}

// Close releases the change subscription exactly once and stops the
// cache loop. Late events are dropped rather than written into a
// disposed cache.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sub != nil {
			c.sub.Unsubscribe()
		}
	})
}

// SignIn delegates to the backend. The cache is untouched here: the
// resulting session arrives through the listener, the single mutation
// path.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	return errors.Wrap(c.client.SignInWithPassword(ctx, email, password), "[Coordinator.SignIn]")
}

// SignUpData carries a registration; FullName lands in the identity
// metadata, where a backend trigger copies it into the profile row.
type SignUpData struct {
	Email    string
	Password string
	FullName string
}

// SignUp delegates to the backend; like SignIn it never mutates the
// cache directly.
func (c *Coordinator) SignUp(ctx context.Context, data SignUpData) error {
	err := c.client.SignUp(ctx, supabase.SignUpData{
		Email:    data.Email,
		Password: data.Password,
		Metadata: map[string]any{"full_name": data.FullName},
	})
	return errors.Wrap(err, "[Coordinator.SignUp]")
}

// RefreshSession proactively refreshes the token pair. Best effort:
// failures are logged and swallowed, the listener will observe whatever
// expiry or revocation follows.
func (c *Coordinator) RefreshSession(ctx context.Context) {
	if err := c.client.RefreshSession(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("session refresh failed")
	}
}

// SendPasswordResetEmail asks the backend to mail a recovery link that
// deep-links back into the app.
func (c *Coordinator) SendPasswordResetEmail(ctx context.Context, email string) error {
	err := c.client.ResetPasswordForEmail(ctx, email, c.scheme+"://reset-password")
	return errors.Wrap(err, "[Coordinator.SendPasswordResetEmail]")
}

// ResetPassword sets a new password for the signed-in user (the recovery
// deep link signs the user in before this is called).
func (c *Coordinator) ResetPassword(ctx context.Context, newPassword string) error {
	return errors.Wrap(c.client.UpdateUserPassword(ctx, newPassword), "[Coordinator.ResetPassword]")
}

// UpdateProfile writes a partial profile update for the signed-in user,
// then republishes the re-fetched row.
func (c *Coordinator) UpdateProfile(ctx context.Context, patch profile.Patch) *profile.Error {
	userID, perr := c.requireUser()
	if perr != nil {
		return perr
	}

	updated, perr := c.profiles.Update(ctx, userID, patch)
	if perr != nil {
		return perr
	}

	c.setProfile(userID, updated)
	return nil
}

// CompleteOnboarding stores the onboarding answers and flips the
// onboarding flag.
func (c *Coordinator) CompleteOnboarding(ctx context.Context, data profile.OnboardingData) *profile.Error {
	userID, perr := c.requireUser()
	if perr != nil {
		return perr
	}

	updated, perr := c.profiles.CompleteOnboarding(ctx, userID, data)
	if perr != nil {
		return perr
	}

	c.setProfile(userID, updated)
	return nil
}

// StoreLocation persists the user's location and derived address fields
// atomically.
func (c *Coordinator) StoreLocation(ctx context.Context, location profile.OnboardingData) *profile.Error {
	userID, perr := c.requireUser()
	if perr != nil {
		return perr
	}
	if location.Location == nil {
		return &profile.Error{Message: "No location provided"}
	}

	updated, perr := c.profiles.StoreLocation(ctx, userID, *location.Location, location.Postcode, location.CouncilArea)
	if perr != nil {
		return perr
	}

	c.setProfile(userID, updated)
	return nil
}

// run is the cache loop: the one goroutine allowed to publish sessions.
func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.apply(ctx, ev)
		}
	}
}

func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// apply publishes one session arrival. Last write wins by arrival order;
// the only exception is a bootstrap result that lost the race, which is
// dropped (but still ends the loading phase).
func (c *Coordinator) apply(ctx context.Context, ev event) {
	c.stateLock.Lock()

	if ev.bootstrap && ev.gen != c.gen {
		c.snapshot.Loading = false
		c.stateLock.Unlock()
		return
	}

	previous := c.snapshot.Session
	c.gen++
	c.snapshot.Session = ev.session
	c.snapshot.Loading = false

	if ev.session == nil {
		c.snapshot.Profile = nil
		c.stateLock.Unlock()
		return
	}

	needsProfile := c.snapshot.Profile == nil ||
		previous == nil ||
		previous.Identity.ID != ev.session.Identity.ID
	c.stateLock.Unlock()

	if !needsProfile {
		return
	}

	fetched := c.profiles.Fetch(ctx, ev.session.Identity.ID)
	c.setProfile(ev.session.Identity.ID, fetched)
}

// setProfile publishes a profile only while the session still belongs to
// the same identity, preserving profile => session coupling.
func (c *Coordinator) setProfile(userID string, p *profile.Profile) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.snapshot.Session == nil || c.snapshot.Session.Identity.ID != userID {
		return
	}
	c.snapshot.Profile = p
}

func (c *Coordinator) requireUser() (string, *profile.Error) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.snapshot.Session == nil {
		return "", &profile.Error{Message: "No authenticated user"}
	}
	return c.snapshot.Session.Identity.ID, nil
}

func (c *Coordinator) generation() uint64 {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.gen
}
