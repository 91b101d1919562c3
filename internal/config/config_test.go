package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, "he", cfg.Language)
	assert.True(t, cfg.Metrics)
	assert.Equal(t, time.Sunday, cfg.FirstWeekday())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
listen: ":9000"
timezone: UTC
week_start: Monday
language: en
refresh: "@every 5m"
snapshot: /data/events.json
show_past_events: true
ics:
  - name: town
    url: https://example.com/town.ics
    category_id: community
    settlement: north
print:
  width: 800
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, time.Monday, cfg.FirstWeekday())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.True(t, cfg.ShowPastEvents)
	assert.False(t, cfg.Metrics)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "town", cfg.ICS[0].ID, "id falls back to name")
	assert.Equal(t, "community", cfg.ICS[0].CategoryID)
	assert.Equal(t, 800, cfg.Print.Width)
	assert.Equal(t, 1000, cfg.Print.Height)
	assert.Equal(t, 90, cfg.HorizonDays)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\ntimezone: UTC\n"), 0o600))

	t.Setenv("COMMUNITYCAL_LISTEN", " :7000 ")
	t.Setenv("COMMUNITYCAL_LANGUAGE", "en")
	t.Setenv("COMMUNITYCAL_BASIC_AUTH_USERNAME", "admin")
	t.Setenv("COMMUNITYCAL_BASIC_AUTH_PASSWORD", "secret")
	t.Setenv("COMMUNITYCAL_TRUST_IDENTITY_HEADERS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "en", cfg.Language)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.True(t, cfg.TrustIdentityHeaders)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COMMUNITYCAL_TEST_ONLY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("COMMUNITYCAL_TEST_ONLY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("COMMUNITYCAL_TEST_ONLY"))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Timezone = "Mars/Olympus"
	cfg.RefreshCron = "every now and then"
	cfg.LogLevel = "LOUD"
	cfg.ICS = []ICSConfig{{ID: "a"}, {ID: "a", URL: "https://example.com"}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"timezone", "refresh", "log_level", "url is required", "duplicate id"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refresh: nonsense\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.ICS = []ICSConfig{{ID: "town", URL: "https://example.com/town.ics"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestNormalizeUnknownWeekStart(t *testing.T) {
	cfg := &Config{WeekStart: "someday"}
	cfg.Normalize()
	assert.Equal(t, "sunday", cfg.WeekStart)
}
