package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehandhq/stagehand/internal/auth"
	"github.com/stagehandhq/stagehand/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "Stage-driven dialogue controller for inbound chat providers",
	}
	root.AddCommand(newServeCmd(), newTokenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and turn pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func newTokenCmd() *cobra.Command {
	var subject string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator API token from the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.GenerateToken(subject, cfg.Auth.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&expiresIn, "expires", 24*time.Hour, "token lifetime")
	return cmd
}
