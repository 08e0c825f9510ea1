package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/observability"
	"github.com/jonathan/hirebot/internal/store"
)

var (
	resumesStatus string
	resumesJSON   bool
	resumesYes    bool
)

var resumesCmd = &cobra.Command{
	Use:   "resumes",
	Short: "Inspect or clear the resume ledger",
}

var resumesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected resumes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLedger(cmd, func(ctx context.Context, ledger store.ResumeStore) error {
			return listResumes(ctx, os.Stdout, ledger, resumesStatus, resumesJSON)
		})
	},
}

var resumesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every ledger entry",
	Long: `Deletes every resume record. Candidates already collected will be treated as
new by the next collector run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLedger(cmd, func(ctx context.Context, ledger store.ResumeStore) error {
			return clearResumes(ctx, os.Stdout, ledger, resumesYes)
		})
	},
}

func init() {
	resumesListCmd.Flags().StringVar(&resumesStatus, "status", "", "Only list records with this status")
	resumesListCmd.Flags().BoolVar(&resumesJSON, "json", false, "Print records as JSON")
	resumesClearCmd.Flags().BoolVar(&resumesYes, "yes", false, "Confirm deletion")

	resumesCmd.AddCommand(resumesListCmd, resumesClearCmd)
	rootCmd.AddCommand(resumesCmd)
}

func withLedger(cmd *cobra.Command, fn func(ctx context.Context, ledger store.ResumeStore) error) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st.Ledger)
}

func listResumes(ctx context.Context, w io.Writer, ledger store.ResumeStore, status string, asJSON bool) error {
	var (
		records []store.ResumeRecord
		err     error
	)
	if status != "" {
		records, err = ledger.Query(ctx, "status", status)
	} else {
		records, err = ledger.All(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to read resumes: %w", err)
	}

	if asJSON {
		if records == nil {
			records = []store.ResumeRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	observability.NewPrinter(w).PrintResumes(records)
	return nil
}

func clearResumes(ctx context.Context, w io.Writer, ledger store.ResumeStore, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("refusing to clear the resume ledger without --yes")
	}
	records, err := ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read resumes: %w", err)
	}
	if err := ledger.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear resumes: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Cleared %d resume records\n", len(records))
	return nil
}
