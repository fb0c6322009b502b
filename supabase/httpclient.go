package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/soulsako/fitlink/internal/errors"
	"github.com/soulsako/fitlink/storage"
)

// StorageKeyPrefix namespaces every key this client writes into the
// shared persistent store. Sign-out teardown removes keys by this prefix
// so unrelated app data survives.
const StorageKeyPrefix = "sb-"

const defaultRequestTimeout = 30 * time.Second

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the backend's auth endpoints and row store over
// REST. It owns session persistence under its namespaced key and fans
// session changes out to subscribers.
type HTTPClient struct {
	baseURL    string
	anonKey    string
	storeKey   string
	httpClient *http.Client
	store      storage.Store
	logger     zerolog.Logger
	nowTime    func() time.Time

	sessionLock sync.Mutex
	session     *Session

	listenerLock sync.Mutex
	listeners    map[int]SessionListener
	nextListener int
	emitLock     sync.Mutex
}

// HTTPClientOption modifies an HTTPClient instance.
type HTTPClientOption func(*HTTPClient)

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) HTTPClientOption {
	return func(c *HTTPClient) {
		c.nowTime = nowFunc
	}
}

// NewHTTPClient initializes a client for the backend at baseURL. It fails
// fast when the URL or API key is missing: the app cannot run without
// them.
func NewHTTPClient(baseURL, anonKey string, store storage.Store, options ...HTTPClientOption) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.Wrap(apperrors.ErrMissingConfiguration, "[NewHTTPClient] base URL")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, errors.Wrap(apperrors.ErrMissingConfiguration, "[NewHTTPClient] anon key")
	}
	if store == nil {
		return nil, errors.New("[NewHTTPClient] store is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewHTTPClient] parse base URL")
	}

	client := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		storeKey:   fmt.Sprintf("%s%s-auth-token", StorageKeyPrefix, projectRef(parsed)),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		store:      store,
		logger:     log.Logger,
		nowTime:    time.Now,
		listeners:  make(map[int]SessionListener),
	}

	for _, opt := range options {
		opt(client)
	}

	client.logger.Debug().Str("host", parsed.Host).Msg("supabase client initialised")
	return client, nil
}

// projectRef is the first host label, e.g. "abcd" in abcd.supabase.co.
func projectRef(u *url.URL) string {
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

// StorageKey returns the namespaced key the session persists under.
func (c *HTTPClient) StorageKey() string {
	return c.storeKey
}

// GetSession returns the current session, restoring from the persistent
// store on first use. An expired restored session is refreshed before it
// is returned; if the refresh fails the session counts as gone.
func (c *HTTPClient) GetSession(ctx context.Context) (*Session, error) {
	c.sessionLock.Lock()
	session := c.session
	c.sessionLock.Unlock()

	if session == nil {
		restored, err := c.restoreSession()
		if err != nil {
			return nil, errors.Wrap(err, "[HTTPClient.GetSession] restore")
		}
		if restored == nil {
			return nil, nil
		}
		c.sessionLock.Lock()
		c.session = restored
		c.sessionLock.Unlock()
		session = restored
	}

	if session.Expired(c.nowTime()) {
		if err := c.RefreshSession(ctx); err != nil {
			return nil, errors.Wrap(err, "[HTTPClient.GetSession] refresh expired session")
		}
		c.sessionLock.Lock()
		session = c.session
		c.sessionLock.Unlock()
	}

	return session, nil
}

// OnSessionChange registers a listener for session transitions.
// Deliveries are serialized; the subscription releases exactly once.
func (c *HTTPClient) OnSessionChange(listener SessionListener) Subscription {
	c.listenerLock.Lock()
	defer c.listenerLock.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener

	return &subscription{release: func() {
		c.listenerLock.Lock()
		defer c.listenerLock.Unlock()
		delete(c.listeners, id)
	}}
}

func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) error {
	session, err := c.tokenGrant(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.SignInWithPassword]")
	}

	c.setSession(session, SignedIn)
	return nil
}

func (c *HTTPClient) SignUp(ctx context.Context, data SignUpData) error {
	body := map[string]any{
		"email":    data.Email,
		"password": data.Password,
	}
	if len(data.Metadata) > 0 {
		body["data"] = data.Metadata
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, &resp); err != nil {
		return errors.Wrap(err, "[HTTPClient.SignUp]")
	}

	// With email confirmation enabled the backend returns a user but no
	// tokens; the session arrives later, after the user confirms.
	if resp.AccessToken == "" {
		return nil
	}

	session, err := c.sessionFromResponse(resp)
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.SignUp]")
	}

	c.setSession(session, SignedIn)
	return nil
}

// SignInWithOAuth builds the provider authorization URL. No network call
// is involved; the backend does the provider exchange when the user's
// browser lands on this URL.
func (c *HTTPClient) SignInWithOAuth(_ context.Context, req OAuthRequest) (string, error) {
	if req.Provider == "" {
		return "", errors.New("[HTTPClient.SignInWithOAuth] provider is required")
	}

	query := url.Values{}
	query.Set("provider", req.Provider)
	if req.RedirectTo != "" {
		query.Set("redirect_to", req.RedirectTo)
	}
	for k, v := range req.QueryParams {
		query.Set(k, v)
	}

	return c.baseURL + "/auth/v1/authorize?" + query.Encode(), nil
}

// SetSession installs a session from tokens obtained out of band (the
// OAuth redirect). Identity comes from the access token claims.
func (c *HTTPClient) SetSession(_ context.Context, tokens TokenPair) error {
	identity, expiresAt, err := ParseAccessToken(tokens.AccessToken)
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.SetSession]")
	}

	c.setSession(&Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
		Identity:     identity,
	}, SignedIn)
	return nil
}

func (c *HTTPClient) RefreshSession(ctx context.Context) error {
	c.sessionLock.Lock()
	current := c.session
	c.sessionLock.Unlock()

	if current == nil || current.RefreshToken == "" {
		return apperrors.ErrSessionMissing
	}

	session, err := c.tokenGrant(ctx, "refresh_token", map[string]string{
		"refresh_token": current.RefreshToken,
	})
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.RefreshSession]")
	}

	c.setSession(session, TokenRefreshed)
	return nil
}

// SignOut ends the session. Local scope drops the session on this device
// unconditionally, before the revocation request is even attempted, so
// the UI reflects sign-out promptly even when the backend is unreachable.
// Global scope asks the server to revoke the refresh token.
func (c *HTTPClient) SignOut(ctx context.Context, scope SignOutScope) error {
	c.sessionLock.Lock()
	current := c.session
	c.sessionLock.Unlock()

	if scope == SignOutLocal {
		c.setSession(nil, SignedOut)
	}

	if current == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/auth/v1/logout?scope="+string(scope), &current.AccessToken, nil, nil)
	return errors.Wrapf(err, "[HTTPClient.SignOut] scope %s", scope)
}

func (c *HTTPClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"email": email}, nil)
	return errors.Wrap(err, "[HTTPClient.ResetPasswordForEmail]")
}

func (c *HTTPClient) UpdateUserPassword(ctx context.Context, newPassword string) error {
	c.sessionLock.Lock()
	current := c.session
	c.sessionLock.Unlock()

	if current == nil {
		return apperrors.ErrSessionMissing
	}

	err := c.do(ctx, http.MethodPut, "/auth/v1/user", &current.AccessToken, map[string]string{"password": newPassword}, nil)
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.UpdateUserPassword]")
	}

	c.emit(UserUpdated, current)
	return nil
}

func (c *HTTPClient) SelectProfile(ctx context.Context, userID string) (*ProfileRow, error) {
	var row ProfileRow
	path := "/rest/v1/profiles?select=*&id=eq." + url.QueryEscape(userID)
	if err := c.doRest(ctx, http.MethodGet, path, nil, &row); err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.SelectProfile]")
	}
	return &row, nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, userID string, patch map[string]any) error {
	path := "/rest/v1/profiles?id=eq." + url.QueryEscape(userID)
	err := c.doRest(ctx, http.MethodPatch, path, patch, nil)
	return errors.Wrap(err, "[HTTPClient.UpdateProfile]")
}

func (c *HTTPClient) UpdateUserLocation(ctx context.Context, userID string, lat, lng float64, postcode, councilArea string) error {
	body := map[string]any{
		"user_id":      userID,
		"lat":          lat,
		"lng":          lng,
		"postcode":     postcode,
		"council_area": councilArea,
	}
	err := c.doRest(ctx, http.MethodPost, "/rest/v1/rpc/update_user_location", body, nil)
	return errors.Wrap(err, "[HTTPClient.UpdateUserLocation]")
}

// tokenResponse is the /auth/v1/token and /auth/v1/signup wire shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *HTTPClient) tokenGrant(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grantType, nil, body, &resp); err != nil {
		return nil, err
	}
	return c.sessionFromResponse(resp)
}

func (c *HTTPClient) sessionFromResponse(resp tokenResponse) (*Session, error) {
	identity, expiresAt, err := ParseAccessToken(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.ExpiresIn > 0 {
		expiresAt = c.nowTime().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		Identity:     identity,
	}, nil
}

// storedSession is the persisted shape. Identity is re-derived from the
// access token on restore rather than persisted alongside it.
type storedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// setSession is the single point through which the current session
// changes: it updates memory, persists (or removes) the stored copy, and
// notifies subscribers. Persistence failures are logged, not surfaced:
// the in-memory session already reflects the change.
func (c *HTTPClient) setSession(session *Session, event AuthChangeEvent) {
	c.sessionLock.Lock()
	c.session = session
	c.sessionLock.Unlock()

	if session == nil {
		if err := c.store.Remove(c.storeKey); err != nil {
			c.logger.Warn().Err(err).Msg("failed to remove stored session")
		}
	} else {
		var expiresAt int64
		if !session.ExpiresAt.IsZero() {
			expiresAt = session.ExpiresAt.Unix()
		}
		raw, err := json.Marshal(storedSession{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    expiresAt,
		})
		if err == nil {
			err = c.store.Set(c.storeKey, string(raw))
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist session")
		}
	}

	c.emit(event, session)
}

func (c *HTTPClient) restoreSession() (*Session, error) {
	raw, ok, err := c.store.Get(c.storeKey)
	if err != nil || !ok {
		return nil, err
	}

	var stored storedSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		// A corrupt stored session is unrecoverable; drop it.
		c.logger.Warn().Err(err).Msg("dropping corrupt stored session")
		_ = c.store.Remove(c.storeKey)
		return nil, nil
	}

	identity, _, err := ParseAccessToken(stored.AccessToken)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping stored session with unreadable token")
		_ = c.store.Remove(c.storeKey)
		return nil, nil
	}

	var expiresAt time.Time
	if stored.ExpiresAt > 0 {
		expiresAt = time.Unix(stored.ExpiresAt, 0)
	}

	return &Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    expiresAt,
		Identity:     identity,
	}, nil
}

// emit delivers a change to every subscriber. The emit lock serializes
// deliveries so listeners observe changes in arrival order.
func (c *HTTPClient) emit(event AuthChangeEvent, session *Session) {
	c.listenerLock.Lock()
	listeners := make([]SessionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenerLock.Unlock()

	c.emitLock.Lock()
	defer c.emitLock.Unlock()
	for _, l := range listeners {
		l(event, session)
	}
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// do issues an auth-endpoint request. bearer overrides the default anon
// key authorization when set.
func (c *HTTPClient) do(ctx context.Context, method, path string, bearer *string, body, out any) error {
	return c.request(ctx, method, path, bearer, body, out, nil)
}

// doRest issues a row-store request authorized with the current session's
// access token when one exists, so row-level security applies.
func (c *HTTPClient) doRest(ctx context.Context, method, path string, body, out any) error {
	c.sessionLock.Lock()
	current := c.session
	c.sessionLock.Unlock()

	var bearer *string
	if current != nil {
		bearer = &current.AccessToken
	}

	headers := map[string]string{}
	if method == http.MethodGet && out != nil {
		// Ask PostgREST for a single object rather than a one-row array.
		headers["Accept"] = "application/vnd.pgrst.object+json"
	}

	return c.request(ctx, method, path, bearer, body, out, headers)
}

func (c *HTTPClient) request(ctx context.Context, method, path string, bearer *string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("apikey", c.anonKey)
	if bearer != nil {
		req.Header.Set("Authorization", "Bearer "+*bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Code             any    `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Msg != "":
			apiErr.Message = payload.Msg
		case payload.ErrorDescription != "":
			apiErr.Message = payload.ErrorDescription
		}
		if payload.ErrorCode != "" {
			apiErr.Code = payload.ErrorCode
		} else if code, ok := payload.Code.(string); ok {
			apiErr.Code = code
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.release)
}
