package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"communitycal/internal/caldate"
	appLog "communitycal/internal/log"
)

// envPrefix namespaces every environment override.
const envPrefix = "COMMUNITYCAL_"

// ICSConfig describes one ICS subscription merged into the calendar.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// CategoryID and Settlement are stamped on every imported event.
	CategoryID string `yaml:"category_id" json:"category_id"`
	Settlement string `yaml:"settlement" json:"settlement"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PrintConfig sizes the headless browser used for PNG export.
type PrintConfig struct {
	Width          int `yaml:"width" json:"width"`
	Height         int `yaml:"height" json:"height"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which "today" and timestamps are
	// interpreted (e.g. "Asia/Jerusalem").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Language selects category names for display and analytics.
	Language string `yaml:"language" json:"language"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the snapshot refresh schedule (standard cron or
	// descriptors such as "@every 5m").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Snapshot is the path of the JSON event-store export. Optional when
	// ICS feeds are configured.
	Snapshot string `yaml:"snapshot" json:"snapshot"`

	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// HorizonDays and BackfillDays bound ICS recurrence expansion.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// ShowPastEvents is the default when a request does not say.
	ShowPastEvents bool `yaml:"show_past_events" json:"show_past_events"`

	// Metrics exposes /metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// TrustIdentityHeaders accepts X-User-Id, X-User-Role and
	// X-User-Settlement from requests. Enable only behind a proxy that sets
	// them and strips client-sent copies; otherwise every caller is an
	// anonymous retiree.
	TrustIdentityHeaders bool `yaml:"trust_identity_headers" json:"trust_identity_headers"`

	Print PrintConfig `yaml:"print" json:"print"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{Metrics: true}
	c.Normalize()
	return c
}

// Normalize fills in missing values so that partially filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Jerusalem"
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if _, ok := caldate.ParseWeekday(c.WeekStart); !ok {
		c.WeekStart = "sunday"
	}
	if c.Language == "" {
		c.Language = "he"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "/var/lib/communitycal/ics-cache"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 90
	}
	if c.BackfillDays <= 0 {
		c.BackfillDays = 31
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			if c.ICS[i].Name != "" {
				c.ICS[i].ID = c.ICS[i].Name
			} else {
				c.ICS[i].ID = c.ICS[i].URL
			}
		}
	}
	if c.Print.Width <= 0 {
		c.Print.Width = 1400
	}
	if c.Print.Height <= 0 {
		c.Print.Height = 1000
	}
	if c.Print.TimeoutSeconds <= 0 {
		c.Print.TimeoutSeconds = 30
	}
}

// Validate reports every problem that would make the service misbehave.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if _, ok := appLog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q: unknown level", c.LogLevel))
	}
	seen := make(map[string]bool)
	for i, src := range c.ICS {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("ics[%d]: url is required", i))
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("ics[%d]: duplicate id %q", i, src.ID))
		}
		seen[src.ID] = true
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// FirstWeekday is the weekday that starts calendar rows.
func (c *Config) FirstWeekday() time.Weekday {
	wd, _ := caldate.ParseWeekday(c.WeekStart)
	return wd
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error; existing variables win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from COMMUNITYCAL_* variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnvOrDefault(envPrefix+"LISTEN", c.Listen)
	c.Timezone = getEnvOrDefault(envPrefix+"TIMEZONE", c.Timezone)
	c.LogLevel = getEnvOrDefault(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.Snapshot = getEnvOrDefault(envPrefix+"SNAPSHOT", c.Snapshot)
	c.WeekStart = getEnvOrDefault(envPrefix+"WEEK_START", c.WeekStart)
	c.Language = getEnvOrDefault(envPrefix+"LANGUAGE", c.Language)

	if v, err := strconv.ParseBool(getEnvOrDefault(envPrefix+"TRUST_IDENTITY_HEADERS", "")); err == nil {
		c.TrustIdentityHeaders = v
	}

	user := getEnvOrDefault(envPrefix+"BASIC_AUTH_USERNAME", "")
	pass := getEnvOrDefault(envPrefix+"BASIC_AUTH_PASSWORD", "")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads the YAML config at path, creating a default file on first run,
// then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		appLog.Info("wrote default config", "path", path)
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".communitycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
