package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearPortalEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORTAL_CONFIG_FILE",
		"PORTAL_HTTP_PORT",
		"PORTAL_PLATFORM_URL",
		"PORTAL_PLATFORM_API_KEY",
		"PORTAL_SESSION_SECRET",
		"PORTAL_SESSION_TTL",
		"PORTAL_LOCALSTORE_DSN",
		"PORTAL_LOG_FORMAT",
		"PORTAL_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	secret := strings.Repeat("s", 32)

	t.Run("applies defaults with required env set", func(t *testing.T) {
		clearPortalEnv(t)
		t.Setenv("PORTAL_PLATFORM_URL", "https://backend.example.com")
		t.Setenv("PORTAL_PLATFORM_API_KEY", "anon-key")
		t.Setenv("PORTAL_SESSION_SECRET", secret)

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Fatalf("expected default TTL 24h, got %s", cfg.SessionTTL)
		}
		if cfg.LogFormat != "json" {
			t.Fatalf("expected default log format json, got %q", cfg.LogFormat)
		}
	})

	t.Run("reports missing values together", func(t *testing.T) {
		clearPortalEnv(t)

		_, err := Load("")
		if err == nil {
			t.Fatal("expected error for missing configuration")
		}
		for _, want := range []string{"PORTAL_PLATFORM_URL", "PORTAL_PLATFORM_API_KEY", "PORTAL_SESSION_SECRET"} {
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error to mention %s, got %v", want, err)
			}
		}
	})

	t.Run("rejects short session secret", func(t *testing.T) {
		clearPortalEnv(t)
		t.Setenv("PORTAL_PLATFORM_URL", "https://backend.example.com")
		t.Setenv("PORTAL_PLATFORM_API_KEY", "anon-key")
		t.Setenv("PORTAL_SESSION_SECRET", "short")

		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), "PORTAL_SESSION_SECRET") {
			t.Fatalf("expected secret length error, got %v", err)
		}
	})

	t.Run("rejects invalid TTL and port", func(t *testing.T) {
		clearPortalEnv(t)
		t.Setenv("PORTAL_PLATFORM_URL", "https://backend.example.com")
		t.Setenv("PORTAL_PLATFORM_API_KEY", "anon-key")
		t.Setenv("PORTAL_SESSION_SECRET", secret)
		t.Setenv("PORTAL_SESSION_TTL", "soon")
		t.Setenv("PORTAL_HTTP_PORT", "-1")

		_, err := Load("")
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		if !strings.Contains(err.Error(), "PORTAL_SESSION_TTL") || !strings.Contains(err.Error(), "PORTAL_HTTP_PORT") {
			t.Fatalf("expected both invalid values reported, got %v", err)
		}
	})

	t.Run("reads YAML file with env overrides", func(t *testing.T) {
		clearPortalEnv(t)
		path := filepath.Join(t.TempDir(), "portal.yaml")
		content := "http_port: 9000\n" +
			"platform_url: https://file.example.com\n" +
			"platform_api_key: file-key\n" +
			"session_secret: " + secret + "\n" +
			"session_ttl: 2h\n" +
			"log_level: debug\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		t.Setenv("PORTAL_PLATFORM_URL", "https://env.example.com")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.HTTPPort != 9000 {
			t.Fatalf("expected file port 9000, got %d", cfg.HTTPPort)
		}
		if cfg.PlatformURL != "https://env.example.com" {
			t.Fatalf("expected env to override file URL, got %q", cfg.PlatformURL)
		}
		if cfg.SessionTTL != 2*time.Hour {
			t.Fatalf("expected file TTL 2h, got %s", cfg.SessionTTL)
		}
		if cfg.LogLevel != "debug" {
			t.Fatalf("expected file log level debug, got %q", cfg.LogLevel)
		}
	})

	t.Run("rejects invalid TTL in file", func(t *testing.T) {
		clearPortalEnv(t)
		path := filepath.Join(t.TempDir(), "portal.yaml")
		if err := os.WriteFile(path, []byte("session_ttl: backwards\n"), 0o600); err != nil {
			t.Fatalf("write config file: %v", err)
		}

		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "session_ttl") {
			t.Fatalf("expected session_ttl error, got %v", err)
		}
	})
}
