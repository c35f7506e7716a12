// Package config handles loading and managing crypta configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds HTTP gateway configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`        // Listen address (default: 127.0.0.1)
	Port            int      `toml:"port"`             // HTTP port (default: 3000)
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed CORS origins; empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Allow credentialed CORS requests
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache seconds
	RateLimitRPS    float64  `toml:"rate_limit_rps"`   // Per-IP requests per second
	RateLimitBurst  int      `toml:"rate_limit_burst"`
}

// AuthConfig holds token and SSO configuration.
type AuthConfig struct {
	SigningKey     string `toml:"signing_key"`      // HMAC key for access/refresh tokens
	AccessMinutes  int    `toml:"access_minutes"`   // Access token lifetime (default: 15)
	RefreshDays    int    `toml:"refresh_days"`     // Refresh token lifetime (default: 7)
	LockoutMax     int    `toml:"lockout_max"`      // Failed logins before lockout (default: 5)
	LockoutMinutes int    `toml:"lockout_minutes"`  // Lockout duration (default: 15)
	OIDCIssuer     string `toml:"oidc_issuer"`      // SSO issuer URL; empty disables SSO
	OIDCClientID   string `toml:"oidc_client_id"`
	OIDCSecret     string `toml:"oidc_client_secret"`
	OIDCRedirect   string `toml:"oidc_redirect_url"`
}

// EmailConfig holds outbound email configuration.
type EmailConfig struct {
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"` // Sender address for bulk dispatches
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// RemoteConfig points the TUI and CLI clients at a gateway.
type RemoteConfig struct {
	URL     string `toml:"url"`
	Timeout int    `toml:"timeout_seconds"`
}

// JobsConfig holds cron schedules for maintenance jobs.
type JobsConfig struct {
	UploadPurge      string `toml:"upload_purge"`       // Cron expr for temp upload cleanup
	UploadTTLHours   int    `toml:"upload_ttl_hours"`   // Age before a temp upload is purged
	AttemptPrune     string `toml:"attempt_prune"`      // Cron expr for login-attempt pruning
	AttemptKeepDays  int    `toml:"attempt_keep_days"`  // Retention for login attempts
}

// Config represents the crypta configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Server ServerConfig `toml:"server"`
	Auth   AuthConfig   `toml:"auth"`
	Email  EmailConfig  `toml:"email"`
	Remote RemoteConfig `toml:"remote"`
	Jobs   JobsConfig   `toml:"jobs"`

	// Computed home directory (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default crypta home directory.
// Respects the CRYPTA_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CRYPTA_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crypta"
	}
	return filepath.Join(home, ".crypta")
}

// Load reads the configuration from the specified file. If path is empty,
// the default location (<home>/config.toml) is used; a missing file yields
// the defaults. If home is empty, DefaultHome is used.
func Load(path, home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(home, "config.toml")
	}

	cfg := &Config{
		HomeDir: home,
		Data:    DataConfig{DataDir: home},
		Server: ServerConfig{
			BindAddr:       "127.0.0.1",
			Port:           3000,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Auth: AuthConfig{
			AccessMinutes:  15,
			RefreshDays:    7,
			LockoutMax:     5,
			LockoutMinutes: 15,
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
		Remote: RemoteConfig{
			URL:     "http://localhost:3000",
			Timeout: 30,
		},
		Jobs: JobsConfig{
			UploadPurge:     "0 * * * *",
			UploadTTLHours:  24,
			AttemptPrune:    "30 3 * * *",
			AttemptKeepDays: 90,
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	return cfg, nil
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0755)
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "crypta.db")
}

// UploadsDir returns the path to the temporary attachment upload directory.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.Data.DataDir, "uploads")
}

// TokensPath returns where the TUI client persists its bearer tokens.
func (c *Config) TokensPath() string {
	return filepath.Join(c.Data.DataDir, "tokens.json")
}

// SSOEnabled reports whether OIDC single sign-on is configured.
func (c *Config) SSOEnabled() bool {
	return c.Auth.OIDCIssuer != "" && c.Auth.OIDCClientID != ""
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
