package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jgoulah/kubscraper/internal/config"
	"github.com/jgoulah/kubscraper/internal/database"
	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "kubscraper",
	Short: "Collect utility usage data from Knoxville Utilities Board",
	Long: `kubscraper pulls electricity, gas, water and wastewater usage from the
KUB customer API, aggregates it into hourly/daily series and monthly totals,
and backfills long-term statistics into a local SQLite database.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.KUB.Username == "" || cfg.KUB.Password == "" {
		return nil, fmt.Errorf("kub.username and kub.password must be set in %s", getConfigPath())
	}
	return cfg, nil
}

// newClient builds a KUB client from the loaded config
func newClient(cfg *config.Config) *kub.Client {
	return kub.New(cfg.KUB.Username, cfg.KUB.Password)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
