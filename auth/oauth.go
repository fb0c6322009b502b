package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/soulsako/fitlink/internal/config"
	apperrors "github.com/soulsako/fitlink/internal/errors"
	"github.com/soulsako/fitlink/supabase"
)

// BrowserResultType classifies how an auth browser session ended.
type BrowserResultType string

const (
	BrowserSuccess   BrowserResultType = "success"
	BrowserCancel    BrowserResultType = "cancel"
	BrowserDismissed BrowserResultType = "dismissed"
)

// BrowserResult is the outcome of a system browser auth session. URL is
// the callback the provider redirected to, set only on success.
type BrowserResult struct {
	Type BrowserResultType
	URL  string
}

// Browser opens a URL in a system-managed, app-trusted browser session
// and blocks until it redirects back to redirectTo or the user bails.
type Browser interface {
	OpenAuthSession(ctx context.Context, authorizeURL, redirectTo string) (BrowserResult, error)
}

// SignInWithGoogle drives the third-party sign-in round trip. On web
// hosts the provider redirect is same-origin and handled by the host's
// own navigation, so issuing the redirect request is the whole job. On
// native hosts the flow runs through the system browser and reconciles
// the callback into a session.
func (c *Coordinator) SignInWithGoogle(ctx context.Context) error {
	if c.platform == config.PlatformWeb {
		_, err := c.client.SignInWithOAuth(ctx, supabase.OAuthRequest{
			Provider:   "google",
			RedirectTo: c.webOrigin + "/auth/callback",
		})
		return errors.Wrap(err, "[Coordinator.SignInWithGoogle]")
	}

	redirectTo := c.scheme + "://auth-callback"
	authorizeURL, err := c.client.SignInWithOAuth(ctx, supabase.OAuthRequest{
		Provider:   "google",
		RedirectTo: redirectTo,
		QueryParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	})
	if err != nil {
		return errors.Wrap(err, "[Coordinator.SignInWithGoogle] authorize")
	}

	if c.browser == nil {
		return apperrors.ErrNoBrowser
	}

	result, err := c.browser.OpenAuthSession(ctx, authorizeURL, redirectTo)
	if err != nil {
		c.logger.Warn().Err(err).Msg("auth browser session failed")
		return apperrors.ErrGoogleSignInFailed
	}

	if result.Type == BrowserSuccess && result.URL != "" {
		if tokens, ok := extractCallbackTokens(result.URL); ok {
			return errors.Wrap(c.client.SetSession(ctx, tokens), "[Coordinator.SignInWithGoogle] set session")
		}
	}

	// Some backends establish the session as a side effect of the
	// redirect itself; give that one chance to have happened.
	select {
	case <-time.After(c.pollDelay):
	case <-ctx.Done():
		return apperrors.ErrGoogleSignInFailed
	}
	if session, err := c.client.GetSession(ctx); err == nil && session != nil {
		return nil
	}

	return apperrors.ErrGoogleSignInFailed
}

// extractCallbackTokens pulls the token pair out of the provider
// callback. Implicit-flow convention puts tokens in the URL fragment;
// some hosts drop fragments, so query parameters are the fallback. The
// fragment wins when both are present.
func extractCallbackTokens(callback string) (supabase.TokenPair, bool) {
	parsed, err := url.Parse(callback)
	if err != nil {
		return supabase.TokenPair{}, false
	}

	if parsed.Fragment != "" {
		if params, err := url.ParseQuery(parsed.Fragment); err == nil {
			if access := params.Get("access_token"); access != "" {
				return supabase.TokenPair{
					AccessToken:  access,
					RefreshToken: params.Get("refresh_token"),
				}, true
			}
		}
	}

	query := parsed.Query()
	if access := query.Get("access_token"); access != "" {
		return supabase.TokenPair{
			AccessToken:  access,
			RefreshToken: query.Get("refresh_token"),
		}, true
	}

	return supabase.TokenPair{}, false
}
