/*
main.go - Terminal authorization

PURPOSE:
  Stores a refresh token without going through the browser extension.
  Without arguments it prints the page the user has to open; given the URL
  of the page the provider shows after access was granted, it exchanges
  the code on that page and stores the resulting refresh token.

EXAMPLES:
  # Print the authorization page
  ./authorize -config=./worktime.json

  # Register the page shown after granting access
  ./authorize -config=./worktime.json 'https://accounts.secure.freee.co.jp/...?client_id=...&code=...'
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/warp/worktime-checker/config"
	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/oauth"
	"github.com/warp/worktime-checker/obs"
	"github.com/warp/worktime-checker/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authorize: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return errors.New("client_id and client_secret are required")
	}

	logger, err := obs.NewLogger(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	manager := oauth.NewManager(oauth.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		TokenURL:        cfg.TokenURL,
		AuthorizeURL:    cfg.AuthorizeURL,
		FreshnessWindow: cfg.FreshnessWindow,
	}, store.Credential(generic.RefreshTokenKey),
		oauth.WithLogger(logger),
		oauth.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)

	if len(cfg.Args) == 0 {
		fmt.Printf("Open this page, grant access, then run again with the URL of the page you land on:\n\n  %s\n", manager.AuthorizeURL())
		return nil
	}

	if err := manager.RegisterAuthorizationInfo(ctx, cfg.Args[0]); err != nil {
		if errors.Is(err, generic.ErrUnrelatedAuthorizationPage) {
			return fmt.Errorf("that page was not issued for this client: %w", err)
		}
		return err
	}
	fmt.Println("Authorization registered.")
	return nil
}
