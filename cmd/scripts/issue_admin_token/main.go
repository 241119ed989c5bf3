package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/realmate/conversations/internal/auth"
	"github.com/realmate/conversations/internal/utils"
)

var (
	subject string
	ttl     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "issue_admin_token",
	Short: "Mint a bearer token for the admin endpoints",
	Long: `Mints an HS256 token signed with ADMIN_JWT_SECRET.

Examples:
  issue_admin_token --subject ops
  issue_admin_token --subject ops --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.LoadEnvFiles(); err != nil {
			return err
		}
		cfg, err := utils.LoadConfig()
		if err != nil {
			return err
		}

		tokenTTL := cfg.Admin.TokenTTL
		if ttl > 0 {
			tokenTTL = ttl
		}

		svc, err := auth.NewService(cfg.Admin.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}

		token, expiresAt, err := svc.IssueToken(subject)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&subject, "subject", "s", "admin", "Token subject")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to ADMIN_TOKEN_TTL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
