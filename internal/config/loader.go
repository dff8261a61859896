// Package config loads portal configuration from an optional YAML file and
// the process environment. Environment values override file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime configuration of the portal service.
type Config struct {
	HTTPPort       int
	PlatformURL    string
	PlatformAPIKey string
	SessionSecret  string
	SessionTTL     time.Duration
	LocalStoreDSN  string
	LogFormat      string
	LogLevel       string
}

// fileConfig is the YAML shape of a config file. All fields are optional.
type fileConfig struct {
	HTTPPort       int    `yaml:"http_port"`
	PlatformURL    string `yaml:"platform_url"`
	PlatformAPIKey string `yaml:"platform_api_key"`
	SessionSecret  string `yaml:"session_secret"`
	SessionTTL     string `yaml:"session_ttl"`
	LocalStoreDSN  string `yaml:"localstore_dsn"`
	LogFormat      string `yaml:"log_format"`
	LogLevel       string `yaml:"log_level"`
}

// Load resolves configuration. When path is empty, PORTAL_CONFIG_FILE is
// consulted; when that is empty too, only environment variables apply.
// Missing and invalid values are reported together.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		SessionTTL:    24 * time.Hour,
		LocalStoreDSN: "file:portal.db?_foreign_keys=on",
		LogFormat:     "json",
		LogLevel:      "info",
	}

	if path == "" {
		path = strings.TrimSpace(os.Getenv("PORTAL_CONFIG_FILE"))
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("PORTAL_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "PORTAL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := strings.TrimSpace(os.Getenv("PORTAL_PLATFORM_URL")); v != "" {
		cfg.PlatformURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_PLATFORM_API_KEY")); v != "" {
		cfg.PlatformAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_SESSION_SECRET")); v != "" {
		cfg.SessionSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_LOCALSTORE_DSN")); v != "" {
		cfg.LocalStoreDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	if ttlValue := strings.TrimSpace(os.Getenv("PORTAL_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "PORTAL_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if cfg.PlatformURL == "" {
		missing = append(missing, "PORTAL_PLATFORM_URL")
	}
	if cfg.PlatformAPIKey == "" {
		missing = append(missing, "PORTAL_PLATFORM_API_KEY")
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, "PORTAL_SESSION_SECRET")
	} else if len(cfg.SessionSecret) < 32 {
		invalid = append(invalid, "PORTAL_SESSION_SECRET (must be at least 32 characters)")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("configuration values are invalid: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.HTTPPort > 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	if v := strings.TrimSpace(fc.PlatformURL); v != "" {
		cfg.PlatformURL = v
	}
	if v := strings.TrimSpace(fc.PlatformAPIKey); v != "" {
		cfg.PlatformAPIKey = v
	}
	if v := strings.TrimSpace(fc.SessionSecret); v != "" {
		cfg.SessionSecret = v
	}
	if v := strings.TrimSpace(fc.LocalStoreDSN); v != "" {
		cfg.LocalStoreDSN = v
	}
	if v := strings.TrimSpace(fc.LogFormat); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(fc.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(fc.SessionTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("config file %s: invalid session_ttl %q", path, v)
		}
		cfg.SessionTTL = ttl
	}

	return nil
}
