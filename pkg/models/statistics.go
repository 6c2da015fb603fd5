package models

import "time"

// StatisticPoint is a single entry in a long-term statistics series. State is
// the reading at that instant, Sum the running cumulative total through it.
type StatisticPoint struct {
	Start time.Time `json:"start"`
	State float64   `json:"state"`
	Sum   float64   `json:"sum"`
}

// StatisticMetadata describes one statistics series in the store.
type StatisticMetadata struct {
	StatisticID string `json:"statistic_id"` // e.g. "electricity_cost"
	Name        string `json:"name"`         // e.g. "KUB Electricity Cost"
	Unit        string `json:"unit"`         // e.g. "USD", "kWh"
	HasSum      bool   `json:"has_sum"`
}
