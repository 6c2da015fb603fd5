package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the account's provisioned services",
	Long:  `Authenticates and lists every service point the KUB account has, with its raw type code.`,
	RunE:  runServices,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}

func runServices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := newClient(cfg)
	services, err := client.AvailableServices(context.Background())
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}

	if len(services) == 0 {
		fmt.Println("No service points found")
		return nil
	}

	account := client.Account()
	fmt.Printf("Account %s (person %s):\n", account.AccountID, account.PersonID)
	fmt.Println("----------------------------------------")
	fmt.Printf("%-12s  %s\n", "Type", "Service Point")
	fmt.Println("----------------------------------------")
	for _, sp := range services {
		fmt.Printf("%-12s  %s\n", sp.Type, sp.ID)
	}

	return nil
}
