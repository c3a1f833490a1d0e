package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-checker/reconcile"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 23*time.Hour, cfg.FreshnessWindow)
	assert.Equal(t, "https://api.freee.co.jp/hr", cfg.APIBaseURL)
	assert.Equal(t, 6*time.Hour, cfg.KeepAliveInterval)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Empty(t, cfg.Args)
}

func TestLoad_JSONThenFlags(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"port":                9000,
		"db_path":             "from-json.db",
		"client_id":           "cid",
		"client_secret":       "secret",
		"company_id":          42,
		"note_rules":          []map[string]string{{"needle": "在宅", "marker": "🏠"}},
		"allowed_origins":     []string{"https://jira.example.com"},
		"request_timeout":     "5s",
		"rate_limit":          0,
		"freshness_window":    "1h",
		"fetch_concurrency":   2,
		"timezone":            "UTC",
		"keep_alive_interval": "0s",
	})

	cfg, err := Load([]string{"-config", path, "-port", "9100", "-dev", "positional"})
	require.NoError(t, err)

	// flags win over JSON
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.Development)
	// JSON wins over defaults
	assert.Equal(t, "from-json.db", cfg.DBPath)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, int64(42), cfg.CompanyID)
	assert.Equal(t, []reconcile.NoteRule{{Needle: "在宅", Marker: "🏠"}}, cfg.NoteRules)
	assert.Equal(t, []string{"https://jira.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, time.Hour, cfg.FreshnessWindow)
	assert.Equal(t, 2, cfg.FetchConcurrency)
	assert.Zero(t, cfg.KeepAliveInterval)
	// untouched defaults survive
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.RateBurst)

	assert.Equal(t, []string{"positional"}, cfg.Args)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"-config", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"request_timeout": true}`), 0o600))
	_, err = Load([]string{"-config", bad})
	assert.Error(t, err)

	_, err = Load([]string{"-port", "not-a-number"})
	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.Port = 0
	cfg.Timezone = "Mars/Olympus"

	err := cfg.Validate()

	require.Error(t, err)
	for _, want := range []string{"client_id", "client_secret", "company_id", "invalid port", "invalid timezone"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Duration)

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}
