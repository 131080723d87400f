package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Role identifies which side of the scheduling relationship this instance
// acts for. Trainer instances may confirm/reset weeks; member instances may
// request session cancellations.
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleMember  Role = "member"
)

// APIConfig describes the remote scheduling service connection.
type APIConfig struct {
	// BaseURL is the scheduling service endpoint, e.g. "https://sched.example.com".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is a bearer token attached to every request.
	Token string `yaml:"token" json:"token"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RecurringSlotConfig is one standing weekly training slot, identified by
// board day label ("MON".."SUN") and start hour. These feed the recurring
// calendar feed.
type RecurringSlotConfig struct {
	Day  string `yaml:"day" json:"day"`
	Hour int    `yaml:"hour" json:"hour"`
}

// CaptureConfig controls the optional board snapshot pipeline.
type CaptureConfig struct {
	// Enabled toggles headless-Chromium snapshots after each sync.
	Enabled bool `yaml:"enabled" json:"enabled"`
	Width   int  `yaml:"width" json:"width"`
	Height  int  `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the local API and board page.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the canonical display zone
	// (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// AccountID is the identifier this instance authenticates as against the
	// scheduling service. For member instances it gates cancellation:
	// only sessions belonging to this account may be cancelled.
	AccountID string `yaml:"account_id" json:"account_id"`

	// Role is "trainer" or "member".
	Role Role `yaml:"role" json:"role"`

	// NextWeekScheduling mirrors the service-side flag that enables the
	// next-week auto-scheduling flow. Week resets are only offered while
	// this is true.
	NextWeekScheduling bool `yaml:"next_week_scheduling" json:"next_week_scheduling"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic sync against the scheduling service.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DataDir is where the snapshot store, HTTP cache and rendered previews
	// live.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Slots are the standing weekly training slots exported on the
	// recurring calendar feed.
	Slots []RecurringSlotConfig `yaml:"slots,omitempty" json:"slots,omitempty"`

	// API is the remote scheduling service connection.
	API APIConfig `yaml:"api" json:"api"`

	// Capture controls the board snapshot pipeline.
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all local
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "Asia/Seoul",
		Role:               RoleMember,
		NextWeekScheduling: true,
		RefreshCron:        "*/15 * * * *",
		DataDir:            "./var",
		API:                APIConfig{},
		Capture: CaptureConfig{
			Enabled: false,
			Width:   1280,
			Height:  800,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	switch c.Role {
	case RoleTrainer, RoleMember:
		// ok
	default:
		// Unknown role; member is the least privileged fallback.
		c.Role = RoleMember
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.DataDir == "" {
		c.DataDir = "./var"
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 800
	}
}

// Validate reports configuration problems that Normalize cannot repair.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.AccountID == "" {
		return errors.New("account_id is required")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the default.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Final file permissions are 0600 (the file carries an API token).
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

	tmp, err := os.CreateTemp(dir, ".ptsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
