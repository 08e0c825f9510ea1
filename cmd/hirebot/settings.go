package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/config"
)

var (
	flagConfigPath  string
	flagURL         string
	flagRemoteURL   string
	flagChromePath  string
	flagHeadless    bool
	flagUserDataDir string
	flagStore       string
	flagSQLitePath  string
	flagDatabaseURL string
	flagVerbose     bool
)

func init() {
	registerSettingsFlags(rootCmd)
}

// registerSettingsFlags adds the flags every command shares.
func registerSettingsFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()

	// Config file flag (processed first)
	pf.StringVar(&flagConfigPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")

	pf.StringVar(&flagURL, "url", "", "Page to open once the browser is up")
	pf.StringVar(&flagRemoteURL, "remote-url", "", "DevTools endpoint of a running Chrome (defaults to CHROME_REMOTE_URL)")
	pf.StringVar(&flagChromePath, "chrome-path", "", "Chrome executable (defaults to CHROME_PATH)")
	pf.BoolVar(&flagHeadless, "headless", false, "Run Chrome headless")
	pf.StringVar(&flagUserDataDir, "user-data-dir", "", "Chrome profile directory, keeps the site login between runs")

	pf.StringVar(&flagStore, "store", "", "Storage backend: sqlite, postgres or memory (defaults to HIREBOT_STORE)")
	pf.StringVar(&flagSQLitePath, "sqlite-path", "", "SQLite database file (default "+config.DefaultSQLitePath+")")
	pf.StringVar(&flagDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Print detailed debug information")
}

// loadSettings merges, lowest priority first: environment, config file,
// command-line flags.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	envDefaults, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}

	// Step 1: Load config file if provided
	var cfg config.Config
	if flagConfigPath != "" {
		loaded, err := config.LoadConfig(flagConfigPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = flagURL
	}
	if flags.Changed("remote-url") {
		cfg.RemoteURL = flagRemoteURL
	}
	if flags.Changed("chrome-path") {
		cfg.ChromePath = flagChromePath
	}
	if flags.Changed("headless") {
		cfg.Headless = flagHeadless
	}
	if flags.Changed("user-data-dir") {
		cfg.UserData = flagUserDataDir
	}
	if flags.Changed("store") {
		cfg.Store = flagStore
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = flagSQLitePath
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = flagVerbose
	}

	// Step 3: Fill the rest from the environment
	merged := cfg.MergeWithDefaults(envDefaults)
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}

	if merged.Verbose && flagConfigPath != "" {
		_, _ = fmt.Fprintf(os.Stderr, "Loaded config from: %s\n", flagConfigPath)
	}
	return merged, nil
}

// timingFor applies the config's timing overrides to the defaults.
func timingFor(cfg config.Config) (config.Timing, error) {
	return config.DefaultTiming().WithOverrides(cfg.Timing)
}
