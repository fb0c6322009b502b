package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Platform identifies the kind of host the client was built for. It
// decides how the OAuth redirect URI is formed: native hosts use a
// custom-scheme deep link, web hosts a same-origin callback path.
type Platform string

const (
	PlatformNative Platform = "native"
	PlatformWeb    Platform = "web"
)

// Config is the build-time configuration surface of the auth client.
// SupabaseURL and SupabaseAnonKey are required; loading fails fast when
// either is absent or empty. Values are never logged.
type Config struct {
	SupabaseURL     string   `env:"FITLINK_SUPABASE_URL,notEmpty"`
	SupabaseAnonKey string   `env:"FITLINK_SUPABASE_ANON_KEY,notEmpty"`
	AppScheme       string   `env:"FITLINK_APP_SCHEME" envDefault:"fitlink"`
	Platform        Platform `env:"FITLINK_PLATFORM" envDefault:"native"`
	WebOrigin       string   `env:"FITLINK_WEB_ORIGIN"`
	StorePath       string   `env:"FITLINK_STORE_PATH" envDefault:"fitlink.db"`
}

// Load resolves the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] parse environment")
	}
	return c, nil
}

// MustLoad is Load for process startup: the app cannot run without its
// backend coordinates, so a missing value panics here rather than
// surfacing later as a broken client.
func MustLoad() Config {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}
