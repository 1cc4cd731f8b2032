package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("engine defaults", func(t *testing.T) {
		if cfg.Engine.SamplingIntervalMs != 15000 {
			t.Errorf("Expected sampling interval 15000, got %d", cfg.Engine.SamplingIntervalMs)
		}
		if cfg.Engine.HistoryMinutes != 30 {
			t.Errorf("Expected history 30 minutes, got %d", cfg.Engine.HistoryMinutes)
		}
	})

	t.Run("feed defaults", func(t *testing.T) {
		if !cfg.Feeds.Poll.Enabled {
			t.Error("Expected poll feed enabled by default")
		}
		if cfg.Feeds.Poll.URL == "" {
			t.Error("Expected a default poll URL")
		}
		if cfg.Feeds.UseSBS {
			t.Error("Expected use_sbs off by default")
		}
	})

	t.Run("server defaults", func(t *testing.T) {
		if cfg.Server.Port != "8080" {
			t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
		}
	})

	t.Run("database defaults", func(t *testing.T) {
		if cfg.Database.Enabled {
			t.Error("Expected database disabled by default")
		}
		if cfg.Database.Port != 5432 {
			t.Errorf("Expected port 5432, got %d", cfg.Database.Port)
		}
		if cfg.Database.MaxOpenConns != 25 {
			t.Errorf("Expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected default config to validate, got %v", err)
		}
	})
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error %v", err)
	}
	if cfg.Engine.SamplingIntervalMs != 15000 {
		t.Errorf("Expected default sampling interval, got %d", cfg.Engine.SamplingIntervalMs)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"engine": {"sampling_interval_ms": 5000, "history_minutes": 10},
		"filter": {"enabled": true, "latitude": 47.45, "longitude": -122.31, "radius_nm": 50}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Engine.SamplingIntervalMs != 5000 {
		t.Errorf("Expected sampling interval 5000, got %d", cfg.Engine.SamplingIntervalMs)
	}
	if cfg.Engine.HistoryMinutes != 10 {
		t.Errorf("Expected history 10 minutes, got %d", cfg.Engine.HistoryMinutes)
	}
	if !cfg.Filter.Enabled {
		t.Error("Expected filter enabled")
	}
	if cfg.Filter.RadiusNM != 50 {
		t.Errorf("Expected radius 50, got %f", cfg.Filter.RadiusNM)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default database port, got %d", cfg.Database.Port)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sampling interval", func(c *Config) { c.Engine.SamplingIntervalMs = 0 }},
		{"negative history", func(c *Config) { c.Engine.HistoryMinutes = -1 }},
		{"sbs selected but disabled", func(c *Config) { c.Feeds.UseSBS = true; c.Feeds.SBS.Enabled = false }},
		{"filter without radius", func(c *Config) { c.Filter.Enabled = true; c.Filter.RadiusNM = 0 }},
		{"bogus log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GLOBE_DB_PASSWORD", "env-db-pass")
	t.Setenv("GLOBE_JWT_SECRET", "env-jwt")
	t.Setenv("GLOBE_ADMIN_PASSWORD", "env-admin")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.Password != "env-db-pass" {
		t.Errorf("Expected database password from environment, got %q", cfg.Database.Password)
	}
	if cfg.Server.JWTSecret != "env-jwt" {
		t.Errorf("Expected JWT secret from environment, got %q", cfg.Server.JWTSecret)
	}
	if cfg.Server.AdminPassword != "env-admin" {
		t.Errorf("Expected admin password from environment, got %q", cfg.Server.AdminPassword)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Engine.HistoryMinutes = 45
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	var parsed Config
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Saved config is not valid JSON: %v", err)
	}
	if parsed.Engine.HistoryMinutes != 45 {
		t.Errorf("Expected history 45 after round trip, got %d", parsed.Engine.HistoryMinutes)
	}
}
