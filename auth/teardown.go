package auth

import (
	"context"
	"strings"

	"github.com/soulsako/fitlink/supabase"
)

// SignOut deterministically removes local and remote traces of the
// session. Every step is independently guarded: a failure in one never
// skips the rest, and nothing escapes to the caller. From the user's
// perspective sign-out always works.
func (c *Coordinator) SignOut(ctx context.Context) {
	defer c.clearCache()

	// Local invalidation first: this is the step that must land for the
	// UI to reflect sign-out promptly.
	if err := c.client.SignOut(ctx, supabase.SignOutLocal); err != nil {
		c.logger.Warn().Err(err).Msg("local sign out failed")
	}

	// Server-side revocation of the refresh token. Failure is tolerable:
	// the device is already protected by the local invalidation.
	if err := c.client.SignOut(ctx, supabase.SignOutGlobal); err != nil {
		c.logger.Warn().Err(err).Msg("global sign out failed; refresh token may remain revocable server-side")
	}

	c.purgeStoredState()
}

// purgeStoredState removes only the backend's namespaced keys so
// unrelated app data survives; if even that fails, clearing the whole
// store is preferable to leaving tokens behind.
func (c *Coordinator) purgeStoredState() {
	keys, err := c.store.Keys()
	if err == nil {
		owned := make([]string, 0, len(keys))
		for _, k := range keys {
			if strings.HasPrefix(k, supabase.StorageKeyPrefix) {
				owned = append(owned, k)
			}
		}
		if len(owned) == 0 {
			return
		}
		err = c.store.MultiRemove(owned)
	}

	if err != nil {
		c.logger.Warn().Err(err).Msg("targeted session purge failed; clearing store")
		if clearErr := c.store.Clear(); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("store clear failed")
		}
	}
}

// clearCache nulls out the published session and profile. Bumping the
// generation here means any in-flight bootstrap that started before the
// sign-out cannot resurrect the old session.
func (c *Coordinator) clearCache() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	c.gen++
	c.snapshot.Session = nil
	c.snapshot.Profile = nil
	c.snapshot.Loading = false
}
