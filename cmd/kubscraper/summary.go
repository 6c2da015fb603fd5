package main

import (
	"context"
	"fmt"

	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/internal/stats"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show month-to-date usage and cost per service",
	Long:  `Fetches the current month's usage and prints the running totals for each provisioned service.`,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := newClient(cfg)
	totals, err := client.MonthlySummary(context.Background())
	if err != nil {
		return fmt.Errorf("fetching monthly summary: %w", err)
	}

	fmt.Println("Month to date:")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-12s  %14s  %10s\n", "Service", "Usage", "Cost")
	fmt.Println("--------------------------------------------------")

	var totalCost float64
	for _, utility := range kub.AllUtilityTypes {
		total, ok := totals[utility]
		if !ok || total.Usage == nil || total.Cost == nil {
			continue
		}
		fmt.Printf("%-12s  %10.2f %-3s  %9.2f\n",
			utility, *total.Usage, stats.ConsumptionUnit(utility), *total.Cost)
		totalCost += *total.Cost
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("Total cost: $%.2f\n", totalCost)
	return nil
}
