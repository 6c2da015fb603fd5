package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jgoulah/kubscraper/internal/coordinator"
	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/internal/stats"
	"github.com/spf13/cobra"
)

var fetchSkipStats bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch usage data and import statistics",
	Long: `Runs one refresh cycle: authenticates against the KUB API, discovers the
account's services, fetches the trailing 31 days of hourly usage, and imports
new statistic points into the local SQLite database.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchSkipStats, "skip-stats", false, "Fetch usage only, do not import statistics")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loc, err := cfg.GetLocation()
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var importer *stats.Importer
	if !fetchSkipStats {
		importer = &stats.Importer{
			Store:           db,
			Location:        loc,
			WaterStatistics: cfg.WaterStatistics,
		}
	}

	coord := coordinator.New(newClient(cfg), importer)

	fmt.Println("Fetching last 31 days of usage...")
	snap, err := coord.Refresh(context.Background())
	if err != nil {
		var authErr *kub.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("authentication failed - check kub.username and kub.password in %s", getConfigPath())
		}
		return err
	}

	fmt.Printf("✓ Fetched usage for %d service(s)\n", len(snap.ServiceList))
	for _, utility := range snap.ServiceList {
		days := len(snap.Usage[utility])
		total := snap.MonthlyTotal[utility]
		if total.Usage != nil && total.Cost != nil {
			fmt.Printf("  %-12s %3d day(s), month to date: %.2f %s ($%.2f)\n",
				utility, days, *total.Usage, stats.ConsumptionUnit(utility), *total.Cost)
		} else {
			fmt.Printf("  %-12s %3d day(s)\n", utility, days)
		}
	}

	return nil
}
