package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/server"
)

var tokenOperator string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the control API",
	Long: `Signs a token with CONTROL_JWT_SECRET. Pass it as "Authorization: Bearer <token>"
or, for EventSource clients, as the access_token query parameter.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		jwtCfg, err := config.NewJWTConfig()
		if err != nil {
			return err
		}
		return issueToken(os.Stdout, jwtCfg, tokenOperator)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "Operator UUID to embed (random when empty)")

	rootCmd.AddCommand(tokenCmd)
}

func issueToken(w io.Writer, jwtCfg *config.JWTConfig, operator string) error {
	if jwtCfg == nil {
		return fmt.Errorf("CONTROL_JWT_SECRET is not set")
	}
	id := uuid.New()
	if operator != "" {
		parsed, err := uuid.Parse(operator)
		if err != nil {
			return fmt.Errorf("invalid operator id: %w", err)
		}
		id = parsed
	}
	token, err := server.NewJWTService(jwtCfg).GenerateToken(id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
