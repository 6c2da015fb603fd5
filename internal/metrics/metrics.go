package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jgoulah/kubscraper/internal/kub"
)

var (
	MonthlyUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubscraper_monthly_usage",
			Help: "Current-month usage per service, in the service's native unit",
		},
		[]string{"service"},
	)

	MonthlyCost = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubscraper_monthly_cost",
			Help: "Current-month cost per service in USD",
		},
		[]string{"service"},
	)

	RefreshLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubscraper_refresh_last_run_timestamp",
			Help: "Unix timestamp of the last completed refresh",
		},
	)

	RefreshLastDurationSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubscraper_refresh_last_duration_seconds",
			Help: "Duration of the last completed refresh",
		},
	)

	RefreshFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubscraper_refresh_failures_total",
			Help: "Total number of failed refresh cycles by error kind",
		},
		[]string{"kind"},
	)

	StatisticPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubscraper_statistic_points_total",
			Help: "Total number of statistic points appended to the store",
		},
	)
)

// UpdateRefreshMetrics records the outcome of one refresh cycle. kind is
// empty for a successful run.
func UpdateRefreshMetrics(startedAt time.Time, kind string) {
	RefreshLastDurationSeconds.Set(time.Since(startedAt).Seconds())
	RefreshLastRun.Set(float64(time.Now().Unix()))
	if kind != "" {
		RefreshFailuresTotal.WithLabelValues(kind).Inc()
	}
}

// UpdateSnapshotMetrics publishes a committed snapshot's monthly totals.
func UpdateSnapshotMetrics(snap *kub.Snapshot) {
	for utility, total := range snap.MonthlyTotal {
		if total.Usage != nil {
			MonthlyUsage.WithLabelValues(utility.String()).Set(*total.Usage)
		}
		if total.Cost != nil {
			MonthlyCost.WithLabelValues(utility.String()).Set(*total.Cost)
		}
	}
}
