package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify KUB credentials",
	Long:  `Checks that the configured username and password can establish a session with the KUB API.`,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := newClient(cfg)
	if err := client.VerifyAccess(context.Background()); err != nil {
		var authErr *kub.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("invalid credentials for %s", cfg.KUB.Username)
		}
		return fmt.Errorf("could not reach the KUB API: %w", err)
	}

	fmt.Printf("✓ Credentials verified for %s\n", cfg.KUB.Username)
	return nil
}
