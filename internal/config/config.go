// Package config loads the tvinspect configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tvinspection/tvinspect/pkg/constants"
)

type Config struct {
	// APIURL is the backend REST API root, e.g. http://127.0.0.1:8000/api.
	APIURL          string `yaml:"api_url"`
	Timeout         string `yaml:"timeout"`
	DownloadTimeout string `yaml:"download_timeout"`

	SessionFile string `yaml:"session_file"`
	DraftsDB    string `yaml:"drafts_db"`

	// Listen is the address of the local companion service.
	Listen string `yaml:"listen"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	FormID      string `yaml:"form_id"`
	FormVersion string `yaml:"form_version"`
}

// DefaultDir is the directory holding the config file, session and drafts.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tvinspect")
	}
	return ".tvinspect"
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		APIURL:          constants.DefaultAPIURL,
		Timeout:         "30s",
		DownloadTimeout: "60s",
		SessionFile:     filepath.Join(dir, "session.json"),
		DraftsDB:        filepath.Join(dir, "drafts.db"),
		Listen:          "127.0.0.1:8787",
		LogLevel:        "info",
		FormID:          constants.FormID,
		FormVersion:     constants.FormVersion,
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.APIURL = GetEnvOrDefault("TVINSPECT_API_URL", GetEnvOrDefault("API_URL", c.APIURL))
	c.FormID = GetEnvOrDefault("TVINSPECT_FORM_ID", c.FormID)
	c.FormVersion = GetEnvOrDefault("TVINSPECT_FORM_VERSION", c.FormVersion)
	c.LogLevel = GetEnvOrDefault("TVINSPECT_LOG_LEVEL", c.LogLevel)
	c.SessionFile = GetEnvOrDefault("TVINSPECT_SESSION_FILE", c.SessionFile)
	c.DraftsDB = GetEnvOrDefault("TVINSPECT_DRAFTS_DB", c.DraftsDB)
}

// Apply publishes the form identity to the constants used on submission.
func (c *Config) Apply() {
	if c.FormID != "" {
		constants.FormID = c.FormID
	}
	if c.FormVersion != "" {
		constants.FormVersion = c.FormVersion
	}
}

func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func (c *Config) GetDownloadTimeout() time.Duration {
	return parseDuration(c.DownloadTimeout, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Validate checks the values Load cannot repair.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_url %q: %w", c.APIURL, constants.ErrNoBaseURL)
	}
	for name, d := range map[string]string{"timeout": c.Timeout, "download_timeout": c.DownloadTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	return nil
}
