// Package config loads and validates the application configuration from a
// JSON file, with environment overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration.
type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Feeds    FeedsConfig    `json:"feeds"`
	Filter   FilterConfig   `json:"filter"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// EngineConfig sizes the recording engine.
type EngineConfig struct {
	// SamplingIntervalMs is the nominal time between recorded snapshots.
	// Matches the bulk feed cadence by default (15000).
	SamplingIntervalMs int `json:"sampling_interval_ms"`

	// HistoryMinutes is how much live history the ring buffer retains
	HistoryMinutes int `json:"history_minutes"`

	// AutosaveIntervalSeconds is how often the recorder persists the ring
	// to the local cache (0 disables autosave)
	AutosaveIntervalSeconds int `json:"autosave_interval_seconds"`
}

// FeedsConfig selects and addresses the live data sources.
type FeedsConfig struct {
	// Poll is the low-frequency bulk feed (~15 s)
	Poll FeedEndpoint `json:"poll"`

	// Push is the high-frequency streaming feed (~1 Hz, WebSocket)
	Push FeedEndpoint `json:"push"`

	// SBS is the exclusive BaseStation TCP feed (host:port)
	SBS FeedEndpoint `json:"sbs"`

	// UseSBS selects the SBS feed exclusively, replacing poll and push
	UseSBS bool `json:"use_sbs"`
}

// FeedEndpoint is one feed's address and enable flag.
type FeedEndpoint struct {
	// Enabled controls whether the feed is started at all
	Enabled bool `json:"enabled"`

	// URL is the endpoint: HTTP(S) for poll, WS(S) for push, host:port
	// for SBS
	URL string `json:"url"`
}

// FilterConfig is the optional spatial filter applied to resolved frames,
// so a replay can be viewed from any vantage point.
type FilterConfig struct {
	Enabled bool `json:"enabled"`

	// Latitude/Longitude of the reference position in decimal degrees
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// RadiusNM is the keep radius in nautical miles
	RadiusNM float64 `json:"radius_nm"`
}

// ServerConfig contains the control/stream server settings.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// JWTSecret signs control API tokens; override with GLOBE_JWT_SECRET
	JWTSecret string `json:"jwt_secret"`

	// AdminPassword authenticates the control UI; override with
	// GLOBE_ADMIN_PASSWORD. Held bcrypt-hashed in memory after startup.
	AdminPassword string `json:"admin_password"`

	// AllowedOrigins for CORS (default: ["*"])
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig contains the snapshot archive connection settings.
type DatabaseConfig struct {
	// Enabled controls whether snapshots are archived at all
	Enabled bool `json:"enabled"`

	// Host is the PostgreSQL server hostname
	Host string `json:"host"`

	// Port is the PostgreSQL server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication; override with GLOBE_DB_PASSWORD
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// RetentionHours prunes archived snapshots older than this (0 keeps all)
	RetentionHours int `json:"retention_hours"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level"`

	// Dir is where rotated log files go; empty logs to stderr only
	Dir string `json:"dir"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			SamplingIntervalMs:      15000,
			HistoryMinutes:          30,
			AutosaveIntervalSeconds: 60,
		},
		Feeds: FeedsConfig{
			Poll: FeedEndpoint{Enabled: true, URL: "https://data.vatsim.net/v3/vatsim-data.json"},
			Push: FeedEndpoint{Enabled: false, URL: "wss://localhost:9443/stream"},
			SBS:  FeedEndpoint{Enabled: false, URL: "localhost:30003"},
		},
		Filter: FilterConfig{
			RadiusNM: 250,
		},
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "globereplay",
			Username:     "globereplay",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.Engine.SamplingIntervalMs <= 0 {
		return fmt.Errorf("sampling_interval_ms must be positive, got %d", c.Engine.SamplingIntervalMs)
	}
	if c.Engine.HistoryMinutes <= 0 {
		return fmt.Errorf("history_minutes must be positive, got %d", c.Engine.HistoryMinutes)
	}
	if c.Feeds.UseSBS && !c.Feeds.SBS.Enabled {
		return fmt.Errorf("use_sbs is set but the sbs feed is not enabled")
	}
	if c.Filter.Enabled && c.Filter.RadiusNM <= 0 {
		return fmt.Errorf("filter radius_nm must be positive when the filter is enabled, got %f", c.Filter.RadiusNM)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// applyEnvironmentOverrides lets secrets come from the environment instead
// of the config file.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("GLOBE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("GLOBE_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("GLOBE_ADMIN_PASSWORD"); v != "" {
		c.Server.AdminPassword = v
	}
}
