package kub

// UtilityType identifies one of the utility services KUB provisions for a
// residential account.
type UtilityType int

const (
	Electricity UtilityType = iota
	Gas
	Water
	Wastewater
)

// Code returns the provider's utility type query parameter value.
func (u UtilityType) Code() string {
	switch u {
	case Electricity:
		return "E"
	case Gas:
		return "G"
	case Water:
		return "W"
	case Wastewater:
		return "WW"
	}
	return ""
}

func (u UtilityType) String() string {
	switch u {
	case Electricity:
		return "electricity"
	case Gas:
		return "gas"
	case Water:
		return "water"
	case Wastewater:
		return "wastewater"
	}
	return "unknown"
}

// AllUtilityTypes lists every utility KUB can provision, in the order the
// client fetches them. Water precedes wastewater since wastewater is derived
// from water's data.
var AllUtilityTypes = []UtilityType{Electricity, Gas, Water, Wastewater}

// Account holds the customer identifiers resolved from the user profile,
// plus the service-point id for each provisioned utility. Water and
// wastewater share a service point.
type Account struct {
	PersonID      string
	AccountID     string
	ServicePoints map[UtilityType]string
}

// ServicePoint is the raw service metadata the provider returns for an
// account. Kept verbatim for the services listing and diagnostics.
type ServicePoint struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// UsageRecord is one hourly meter sample.
type UsageRecord struct {
	ID           string  `json:"id"`
	ReadDateTime string  `json:"readDateTime"`
	UtilityUsed  float64 `json:"utilityUsed"`
	UOM          string  `json:"uom"`
	Cost         float64 `json:"cost"`
}

// UsageSeries maps utility -> date ("2006-01-02") -> time ("15:04:05") ->
// record. A date whose inner map has fewer than 24 entries is a partial day.
type UsageSeries map[UtilityType]map[string]map[string]UsageRecord

// Total is a running usage/cost sum for the current calendar month. Nil
// until the first successful fetch.
type Total struct {
	Usage *float64 `json:"usage"`
	Cost  *float64 `json:"cost"`
}

// MonthlyTotal maps each utility to its current-month total.
type MonthlyTotal map[UtilityType]Total

// Snapshot is the result of one full fetch cycle. It is built into fresh
// maps each cycle so a failed refresh never mutates the previous snapshot.
type Snapshot struct {
	Usage        UsageSeries
	MonthlyTotal MonthlyTotal
	Services     []ServicePoint
	ServiceList  []UtilityType
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Usage:        make(UsageSeries),
		MonthlyTotal: make(MonthlyTotal),
	}
}
