// Package main provides the hirebot CLI: browser automation for recruiting
// chats and feed scraping, run directly or behind the HTTP control API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hirebot",
	Short: "Recruiting chat automation and feed scraping",
	Long: `hirebot drives a Chrome tab to collect resumes from recruiting chats, greet
recommended candidates and scrape note feeds incrementally.

Configuration can be loaded from a JSON or YAML file using --config. Environment
variables (DATABASE_URL, HIREBOT_STORE, CHROME_PATH, ...) provide defaults and
command-line flags override both.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
