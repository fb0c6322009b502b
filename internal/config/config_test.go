package config_test

import (
	"testing"

	"github.com/soulsako/fitlink/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("FITLINK_SUPABASE_URL", "https://demo.supabase.co")
	t.Setenv("FITLINK_SUPABASE_ANON_KEY", "anon-key")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "https://demo.supabase.co", cfg.SupabaseURL)
	require.Equal(t, "anon-key", cfg.SupabaseAnonKey)
	require.Equal(t, "fitlink", cfg.AppScheme)
	require.Equal(t, config.PlatformNative, cfg.Platform)
}

func TestLoadFailsWithoutBackendCoordinates(t *testing.T) {
	t.Setenv("FITLINK_SUPABASE_URL", "")
	t.Setenv("FITLINK_SUPABASE_ANON_KEY", "anon-key")

	_, err := config.Load()
	require.Error(t, err)
}

func TestMustLoadPanicsOnMissingKey(t *testing.T) {
	t.Setenv("FITLINK_SUPABASE_URL", "https://demo.supabase.co")
	t.Setenv("FITLINK_SUPABASE_ANON_KEY", "")

	require.Panics(t, func() { config.MustLoad() })
}

func TestPlatformOverride(t *testing.T) {
	t.Setenv("FITLINK_SUPABASE_URL", "https://demo.supabase.co")
	t.Setenv("FITLINK_SUPABASE_ANON_KEY", "anon-key")
	t.Setenv("FITLINK_PLATFORM", "web")
	t.Setenv("FITLINK_WEB_ORIGIN", "https://app.fitlink.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.PlatformWeb, cfg.Platform)
	require.Equal(t, "https://app.fitlink.example", cfg.WebOrigin)
}
