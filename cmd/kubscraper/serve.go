package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jgoulah/kubscraper/internal/coordinator"
	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/internal/metrics"
	"github.com/jgoulah/kubscraper/internal/publisher"
	"github.com/jgoulah/kubscraper/internal/stats"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a daemon, refreshing on an interval",
	Long: `Runs refresh cycles on a fixed interval (default every 12 hours - KUB data
updates roughly daily), serves Prometheus metrics, and publishes each
committed snapshot to MQTT / Home Assistant when configured.

An authentication failure stops the daemon: the credentials need fixing and
retrying will not help. All other failures keep the last good snapshot and
are retried on the next interval.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loc, err := cfg.GetLocation()
	if err != nil {
		return err
	}
	interval, err := cfg.GetRefreshInterval()
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	importer := &stats.Importer{
		Store:           db,
		Location:        loc,
		WaterStatistics: cfg.WaterStatistics,
	}
	coord := coordinator.New(newClient(cfg), importer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fatal errors (bad credentials, unknown service type) end the daemon.
	fatal := make(chan error, 1)

	refresh := func() {
		started := time.Now()
		snap, err := coord.Refresh(ctx)
		if err != nil {
			var authErr *kub.AuthError
			var svcErr *kub.UnexpectedServiceError
			switch {
			case errors.As(err, &authErr):
				metrics.UpdateRefreshMetrics(started, "auth")
				select {
				case fatal <- fmt.Errorf("authentication failed, update credentials in %s", getConfigPath()):
				default:
				}
			case errors.As(err, &svcErr):
				metrics.UpdateRefreshMetrics(started, "unexpected_service")
				select {
				case fatal <- err:
				default:
				}
			default:
				metrics.UpdateRefreshMetrics(started, "transient")
				log.Printf("refresh failed (will retry next interval): %v", err)
			}
			return
		}

		metrics.UpdateRefreshMetrics(started, "")
		metrics.UpdateSnapshotMetrics(snap)
		if err := pub.PublishSnapshot(snap); err != nil {
			log.Printf("publishing snapshot: %v", err)
		}
		log.Printf("refresh completed in %s (%d services)", time.Since(started).Round(time.Millisecond), len(snap.ServiceList))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.GetMetricsAddr(), Handler: mux}
	go func() {
		log.Printf("metrics listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case fatal <- fmt.Errorf("metrics server: %w", err):
			default:
			}
		}
	}()

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), refresh); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}

	log.Printf("refreshing every %s", interval)
	refresh()
	c.Start()

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("shutting down")
	case runErr = <-fatal:
	}

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	return runErr
}
