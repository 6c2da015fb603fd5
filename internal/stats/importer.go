package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/pkg/models"
)

// minCompleteHours is the minimum number of hourly entries a day bucket must
// have before it is imported. Partial days skew the long-term series; they
// get picked up on the next pass once the provider has filled them in.
const minCompleteHours = 20

// Store is the long-term statistics store the importer appends to. Points
// are never revised once written; the store dedupes on (statistic id, start).
type Store interface {
	// LastImported returns the newest imported point for a statistic, or
	// ok=false if nothing has been imported yet.
	LastImported(statisticID string) (start time.Time, sum float64, ok bool, err error)
	// Append writes points for a statistic in ascending start order.
	Append(meta models.StatisticMetadata, points []models.StatisticPoint) error
}

// Importer converts a usage series into monotonic cumulative-sum statistics.
type Importer struct {
	Store    Store
	Location *time.Location
	// WaterStatistics double-counts water usage into the water statistic,
	// mirroring KUB's billing for residences without a separate wastewater
	// meter.
	WaterStatistics bool
}

// CostStatisticID returns the statistic id for a utility's cost series.
func CostStatisticID(utility kub.UtilityType) string {
	return utility.String() + "_cost"
}

// ConsumptionStatisticID returns the statistic id for a utility's
// consumption series.
func ConsumptionStatisticID(utility kub.UtilityType) string {
	return utility.String() + "_consumption"
}

// ConsumptionUnit returns the unit of measurement for a utility's
// consumption statistic.
func ConsumptionUnit(utility kub.UtilityType) string {
	switch utility {
	case kub.Electricity:
		return "kWh"
	case kub.Gas:
		return "CCF"
	default:
		return "ft³"
	}
}

// Import walks the usage series and appends new statistic points for each
// utility's cost and consumption. Days with fewer than minCompleteHours
// entries are skipped; records at or before the store's watermark are
// skipped; running sums continue from the store's last sum. Returns the
// number of points appended per statistic series.
func (im *Importer) Import(usage kub.UsageSeries) (int, error) {
	appended := 0
	for _, utility := range kub.AllUtilityTypes {
		series, ok := usage[utility]
		if !ok {
			continue
		}
		n, err := im.importUtility(utility, series)
		if err != nil {
			return appended, fmt.Errorf("importing %s statistics: %w", utility, err)
		}
		appended += n
	}
	return appended, nil
}

func (im *Importer) importUtility(utility kub.UtilityType, series map[string]map[string]kub.UsageRecord) (int, error) {
	costID := CostStatisticID(utility)
	consumptionID := ConsumptionStatisticID(utility)

	lastTime, costSum, err := im.watermark(costID)
	if err != nil {
		return 0, err
	}
	_, consumptionSum, _, err := im.Store.LastImported(consumptionID)
	if err != nil {
		return 0, err
	}

	doubleCount := utility == kub.Water && im.WaterStatistics

	var costPoints, consumptionPoints []models.StatisticPoint

	dates := make([]string, 0, len(series))
	for date := range series {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		day := series[date]
		if len(day) < minCompleteHours {
			continue
		}

		times := make([]string, 0, len(day))
		for t := range day {
			times = append(times, t)
		}
		sort.Strings(times)

		for _, t := range times {
			record := day[t]
			start, err := im.recordStart(record)
			if err != nil {
				return 0, err
			}
			if !lastTime.IsZero() && !start.After(lastTime) {
				continue
			}
			lastTime = start

			if doubleCount {
				costSum += record.Cost
				consumptionSum += record.UtilityUsed
			}
			costSum += record.Cost
			consumptionSum += record.UtilityUsed

			costPoints = append(costPoints, models.StatisticPoint{
				Start: start,
				State: record.Cost,
				Sum:   costSum,
			})
			consumptionPoints = append(consumptionPoints, models.StatisticPoint{
				Start: start,
				State: record.UtilityUsed,
				Sum:   consumptionSum,
			})
		}
	}

	if len(costPoints) == 0 {
		return 0, nil
	}

	namePrefix := "KUB " + capitalize(utility.String())
	costMeta := models.StatisticMetadata{
		StatisticID: costID,
		Name:        namePrefix + " Cost",
		Unit:        "USD",
		HasSum:      true,
	}
	consumptionMeta := models.StatisticMetadata{
		StatisticID: consumptionID,
		Name:        namePrefix + " Consumption",
		Unit:        ConsumptionUnit(utility),
		HasSum:      true,
	}

	if err := im.Store.Append(costMeta, costPoints); err != nil {
		return 0, err
	}
	if err := im.Store.Append(consumptionMeta, consumptionPoints); err != nil {
		return 0, err
	}
	return len(costPoints) + len(consumptionPoints), nil
}

// watermark returns the skip threshold and running cost sum for a statistic.
func (im *Importer) watermark(statisticID string) (time.Time, float64, error) {
	start, sum, ok, err := im.Store.LastImported(statisticID)
	if err != nil {
		return time.Time{}, 0, err
	}
	if !ok {
		return time.Time{}, 0, nil
	}
	return start, sum, nil
}

// recordStart zones a record's naive read timestamp into the configured
// location.
func (im *Importer) recordStart(record kub.UsageRecord) (time.Time, error) {
	naive, err := kub.ParseReadTime(record.ReadDateTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing readDateTime %q: %w", record.ReadDateTime, err)
	}
	loc := im.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), 0, loc), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
