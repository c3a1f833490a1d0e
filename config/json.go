package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/warp/worktime-checker/reconcile"
)

// Duration reads either a Go duration string ("30s") or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// JSONConfig is the file shape. Pointer and zero-valued fields that are
// absent from the file leave the current value untouched.
type JSONConfig struct {
	Port             int                  `json:"port"`
	DBPath           string               `json:"db_path"`
	LogLevel         string               `json:"log_level"`
	Development      *bool                `json:"development"`
	ClientID         string               `json:"client_id"`
	ClientSecret     string               `json:"client_secret"`
	TokenURL         string               `json:"token_url"`
	AuthorizeURL     string               `json:"authorize_url"`
	APIBaseURL       string               `json:"api_base_url"`
	CompanyID        int64                `json:"company_id"`
	NoteRules        []reconcile.NoteRule `json:"note_rules"`
	AllowedOrigins   []string             `json:"allowed_origins"`
	RequestTimeout   *Duration            `json:"request_timeout"`
	RateLimit        *float64             `json:"rate_limit"`
	RateBurst        *int                 `json:"rate_burst"`
	FreshnessWindow  *Duration            `json:"freshness_window"`
	FetchConcurrency *int                 `json:"fetch_concurrency"`
	Timezone         *string              `json:"timezone"`
	KeepAlive        *Duration            `json:"keep_alive_interval"`
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var j JSONConfig
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.DBPath, j.DBPath)
	setString(&c.LogLevel, j.LogLevel)
	setString(&c.ClientID, j.ClientID)
	setString(&c.ClientSecret, j.ClientSecret)
	setString(&c.TokenURL, j.TokenURL)
	setString(&c.AuthorizeURL, j.AuthorizeURL)
	setString(&c.APIBaseURL, j.APIBaseURL)
	if j.Port != 0 {
		c.Port = j.Port
	}
	if j.CompanyID != 0 {
		c.CompanyID = j.CompanyID
	}
	if j.Development != nil {
		c.Development = *j.Development
	}
	if j.NoteRules != nil {
		c.NoteRules = j.NoteRules
	}
	if j.AllowedOrigins != nil {
		c.AllowedOrigins = j.AllowedOrigins
	}
	if j.RequestTimeout != nil {
		c.RequestTimeout = j.RequestTimeout.Duration
	}
	if j.RateLimit != nil {
		c.RateLimit = *j.RateLimit
	}
	if j.RateBurst != nil {
		c.RateBurst = *j.RateBurst
	}
	if j.FreshnessWindow != nil {
		c.FreshnessWindow = j.FreshnessWindow.Duration
	}
	if j.FetchConcurrency != nil {
		c.FetchConcurrency = *j.FetchConcurrency
	}
	if j.Timezone != nil {
		c.Timezone = *j.Timezone
	}
	if j.KeepAlive != nil {
		c.KeepAliveInterval = j.KeepAlive.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
