package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/soulsako/fitlink/auth"
	"github.com/soulsako/fitlink/internal/config"
	"github.com/soulsako/fitlink/profile"
	"github.com/soulsako/fitlink/storage/sqlitestore"
	"github.com/soulsako/fitlink/supabase"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("fitlink exited")
	}
	log.Info().Msg("fitlink stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	displayAppname("fitlink")

	store, err := sqlitestore.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := supabase.NewHTTPClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, store)
	if err != nil {
		return err
	}

	profiles, err := profile.NewSynchronizer(client)
	if err != nil {
		return err
	}

	coordinator, err := auth.New(cfg, client, store, profiles)
	if err != nil {
		return err
	}
	defer coordinator.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coordinator.Start(ctx)
	reportSession(ctx, coordinator)

	<-ctx.Done()
	return nil
}

// reportSession waits for the first session resolution and logs where we
// landed: restored sign-in or anonymous.
func reportSession(ctx context.Context, coordinator *auth.Coordinator) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := coordinator.Snapshot()
		if snap.Loading {
			continue
		}
		if snap.Session == nil {
			log.Info().Msg("no stored session; waiting for sign in")
		} else {
			log.Info().Str("email", snap.Session.Identity.Email).Msg("session restored")
		}
		return
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
