package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listStatistic string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored statistics",
	Long:  `Displays statistic points stored in the local database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatistic, "statistic", "", "Filter by statistic id (e.g. electricity_consumption)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	metas, err := db.ListMetadata()
	if err != nil {
		return fmt.Errorf("listing statistics: %w", err)
	}

	if len(metas) == 0 {
		fmt.Println("No statistics stored yet - run 'kubscraper fetch' first")
		return nil
	}

	for _, meta := range metas {
		if listStatistic != "" && meta.StatisticID != listStatistic {
			continue
		}

		points, err := db.ListStatistics(meta.StatisticID)
		if err != nil {
			return fmt.Errorf("listing %s: %w", meta.StatisticID, err)
		}

		fmt.Printf("\n%s (%s, %s):\n", meta.Name, meta.StatisticID, meta.Unit)
		fmt.Println("--------------------------------------------------")
		fmt.Printf("%-25s  %10s  %10s\n", "Start", "State", "Sum")
		fmt.Println("--------------------------------------------------")
		for _, p := range points {
			fmt.Printf("%-25s  %10.2f  %10.2f\n", p.Start.Format("2006-01-02 15:04:05 MST"), p.State, p.Sum)
		}
		fmt.Printf("%d point(s)\n", len(points))
	}

	return nil
}
