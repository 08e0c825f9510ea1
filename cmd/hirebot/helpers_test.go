package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// getBinaryPath returns the path to the hirebot binary for testing
func getBinaryPath(t *testing.T) string {
	binaryName := "hirebot"
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", binaryName)
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/hirebot ./cmd/hirebot'", binaryPath)
	}

	return binaryPath
}

// clearEnv blanks every variable config.FromEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "HIREBOT_STORE", "HIREBOT_SQLITE_PATH", "MONGO_URI", "MONGO_DB",
		"CHROME_PATH", "CHROME_REMOTE_URL", "HIREBOT_PORT",
	} {
		t.Setenv(k, "")
	}
}

// parsedCommand returns a fresh command carrying the shared flags, parsed
// from args.
func parsedCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	registerSettingsFlags(cmd)
	registerCollectFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// runBinary runs the built CLI with extra environment entries appended.
func runBinary(t *testing.T, binaryPath string, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
