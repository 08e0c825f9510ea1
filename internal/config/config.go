// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// DefaultSQLitePath is where the local store lives when nothing else is configured.
const DefaultSQLitePath = "hirebot.db"

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Browser
	URL        string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`                 // Page to open on start
	RemoteURL  string `json:"remote_url,omitempty" yaml:"remote_url,omitempty" validate:"omitempty,url"`   // DevTools endpoint of an already running Chrome
	ChromePath string `json:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`                          // Chrome executable
	Headless   bool   `json:"headless,omitempty" yaml:"headless,omitempty"`                                // Run Chrome headless
	UserData   string `json:"user_data_dir,omitempty" yaml:"user_data_dir,omitempty"`                      // Chrome profile directory (keeps logins)

	// Storage
	Store         string `json:"store,omitempty" yaml:"store,omitempty" validate:"omitempty,oneof=sqlite postgres memory"`
	SQLitePath    string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	MongoURI      string `json:"mongo_uri,omitempty" yaml:"mongo_uri,omitempty"`       // Feed sink
	MongoDatabase string `json:"mongo_database,omitempty" yaml:"mongo_database,omitempty"`

	// Control API
	Port int `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// Collector
	Keyword         string `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Message         string `json:"message,omitempty" yaml:"message,omitempty"`
	DisableKeyword  bool   `json:"disable_keyword,omitempty" yaml:"disable_keyword,omitempty"`
	DisableDownload bool   `json:"disable_download,omitempty" yaml:"disable_download,omitempty"`

	// Timing overrides, e.g. {"candidate_interval": "2s"}
	Timing map[string]string `json:"timing,omitempty" yaml:"timing,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed debug information
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required for the postgres store")
	}
	if c.RemoteURL != "" && c.Headless {
		return fmt.Errorf("config error: 'headless' has no effect when attaching to 'remote_url'")
	}

	if _, err := DefaultTiming().WithOverrides(c.Timing); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.URL == "" {
		result.URL = defaults.URL
	}
	if result.RemoteURL == "" {
		result.RemoteURL = defaults.RemoteURL
	}
	if result.ChromePath == "" {
		result.ChromePath = defaults.ChromePath
	}
	if result.UserData == "" {
		result.UserData = defaults.UserData
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.MongoURI == "" {
		result.MongoURI = defaults.MongoURI
	}
	if result.MongoDatabase == "" {
		result.MongoDatabase = defaults.MongoDatabase
	}
	if result.Keyword == "" {
		result.Keyword = defaults.Keyword
	}
	if result.Message == "" {
		result.Message = defaults.Message
	}
	if result.SQLitePath == "" {
		result.SQLitePath = defaults.SQLitePath
	}
	if result.SQLitePath == "" {
		result.SQLitePath = DefaultSQLitePath
	}

	// Store: explicit wins, then defaults, then postgres when a URL is known
	if result.Store == "" {
		result.Store = defaults.Store
	}
	if result.Store == "" {
		if result.DatabaseURL != "" {
			result.Store = StorePostgres
		} else {
			result.Store = StoreSQLite
		}
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// Timing: file entries win over defaults entry by entry
	if len(defaults.Timing) > 0 {
		merged := make(map[string]string, len(defaults.Timing)+len(result.Timing))
		for k, v := range defaults.Timing {
			merged[k] = v
		}
		for k, v := range result.Timing {
			merged[k] = v
		}
		result.Timing = merged
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
