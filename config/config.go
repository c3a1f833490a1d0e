// Package config handles configuration for the server and the authorize
// command: defaults, an optional JSON file overlay, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/worktime-checker/reconcile"
)

// Config holds runtime settings.
//
// Fields:
//   - Port, DBPath, LogLevel, Development: process settings (also flags).
//   - ClientID / ClientSecret: OAuth client registered with the provider.
//   - TokenURL / AuthorizeURL / APIBaseURL: provider endpoints.
//   - CompanyID: company whose attendance records are compared.
//   - NoteRules: note substrings turned into markers, in display order.
//   - AllowedOrigins: pages allowed to call the API from a browser.
//   - RequestTimeout: per-request transport deadline.
//   - RateLimit / RateBurst: outbound pacing; 0 disables it.
//   - FreshnessWindow: how long a cached access token is reused.
//   - FetchConcurrency: max in-flight day fetches per run; 0 is unlimited.
//   - Timezone: IANA zone that decides which day is "today".
//   - KeepAliveInterval: background token refresh period; 0 disables it.
type Config struct {
	Port        int
	DBPath      string
	LogLevel    string
	Development bool

	ClientID     string
	ClientSecret string
	TokenURL     string
	AuthorizeURL string
	APIBaseURL   string
	CompanyID    int64

	NoteRules      []reconcile.NoteRule
	AllowedOrigins []string

	RequestTimeout   time.Duration
	RateLimit        float64
	RateBurst        int
	FreshnessWindow  time.Duration
	FetchConcurrency int
	Timezone         string

	KeepAliveInterval time.Duration

	// Args are the positional arguments left after flag parsing.
	Args []string
}

// LoadDefaults populates Config with development defaults. Provider
// credentials have no default.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DBPath = "./data/worktime.db"
	c.LogLevel = "info"
	c.TokenURL = "https://accounts.secure.freee.co.jp/public_api/token"
	c.APIBaseURL = "https://api.freee.co.jp/hr"
	c.AllowedOrigins = []string{"https://*.atlassian.net"}
	c.RequestTimeout = 30 * time.Second
	c.RateLimit = 5
	c.RateBurst = 5
	c.FreshnessWindow = 23 * time.Hour
	c.FetchConcurrency = 8
	c.Timezone = "Asia/Tokyo"
	c.KeepAliveInterval = 6 * time.Hour
}

// Load builds a Config from defaults, the JSON file named by -config (if
// any) and finally the flags in args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	if fl.configPath != "" {
		if err := cfg.loadJSON(fl.configPath); err != nil {
			return nil, err
		}
	}
	fl.apply(cfg)
	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client_secret is required"))
	}
	if c.CompanyID <= 0 {
		errs = append(errs, errors.New("company_id is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty means the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
