package engine

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

// overlap returns the active and total milliseconds intervals spend inside d.
func overlap(intervals []models.Interval, d models.Division) (active, total int64) {
	for _, iv := range intervals {
		start := iv.Start
		if d.Start.After(start) {
			start = d.Start
		}
		end := iv.End
		if d.End.Before(end) {
			end = d.End
		}
		ms := end.Sub(start).Milliseconds()
		if ms <= 0 {
			continue
		}
		total += ms
		if iv.State.IsActive() {
			active += ms
		}
	}
	return active, total
}

// UtilizationSeries computes per-bucket utilization. Buckets starting after now
// report a nil utilization; buckets with no coverage report zero.
func UtilizationSeries(intervals []models.Interval, divisions []models.Division, now time.Time) []models.UtilizationPoint {
	points := make([]models.UtilizationPoint, 0, len(divisions))
	for _, d := range divisions {
		point := models.UtilizationPoint{Label: d.Label, Start: d.Start, End: d.End}
		if !d.Start.After(now) {
			active, total := overlap(intervals, d)
			value := 0.0
			if total > 0 {
				value = float64(active) / float64(total) * 100
			}
			point.Utilization = &value
			point.Runtime = active
		}
		points = append(points, point)
	}
	return points
}

// GroupedSeries adds a per-group breakdown to points. groupOf maps a machine id to its
// group key; keys lists every group that must appear even without coverage. Groups
// follow the same null-for-future, zero-without-coverage rule as the fleet series.
func GroupedSeries(points []models.UtilizationPoint, intervals []models.Interval, groupOf func(string) string, keys []string, now time.Time) {
	byGroup := make(map[string][]models.Interval)
	for _, key := range keys {
		byGroup[key] = nil
	}
	for _, iv := range intervals {
		key := groupOf(iv.MachineID)
		byGroup[key] = append(byGroup[key], iv)
	}
	ordered := make([]string, 0, len(byGroup))
	for key := range byGroup {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	for i := range points {
		d := models.Division{Start: points[i].Start, End: points[i].End}
		groups := make(map[string]models.GroupUtilization, len(ordered))
		for _, key := range ordered {
			entry := models.GroupUtilization{}
			if !d.Start.After(now) {
				active, total := overlap(byGroup[key], d)
				value := 0.0
				if total > 0 {
					value = float64(active) / float64(total) * 100
				}
				entry.Utilization = &value
				entry.Runtime = active
			}
			groups[key] = entry
		}
		points[i].Groups = groups
	}
}

// rangeDurationMs is the inclusive length of rng in milliseconds.
func rangeDurationMs(rng models.TimeRange) int64 {
	return rng.End.Sub(rng.Start).Milliseconds() + 1
}

// RangeKPIs computes range-wide utilization and average runtime. AlertCount is left
// for the caller to fill from the alarm directory.
func RangeKPIs(intervals []models.Interval, rng models.TimeRange) models.KPIs {
	var active int64
	for _, iv := range intervals {
		if iv.State.IsActive() {
			active += iv.DurationMs
		}
	}
	kpis := models.KPIs{}
	if duration := rangeDurationMs(rng); duration > 0 {
		kpis.Utilization = float64(active) / float64(duration) * 100
	}
	// Averaged over every interval, OFFLINE and IDLE included.
	if len(intervals) > 0 {
		kpis.AverageRuntime = float64(active) / float64(len(intervals))
	}
	return kpis
}

// PreviousRange returns the window of equal inclusive length ending 1ms before rng.
func PreviousRange(rng models.TimeRange) models.TimeRange {
	duration := time.Duration(rangeDurationMs(rng)) * time.Millisecond
	return models.TimeRange{
		Start: rng.Start.Add(-duration),
		End:   rng.Start.Add(-time.Millisecond),
	}
}

// CompareKPIs fills current.Change relative to previous.
func CompareKPIs(current, previous models.KPIs) models.KPIs {
	current.Change = models.KPIChange{
		Utilization:    percentChange(current.Utilization, previous.Utilization),
		AverageRuntime: percentChange(current.AverageRuntime, previous.AverageRuntime),
		AlertCount:     percentChange(float64(current.AlertCount), float64(previous.AlertCount)),
	}
	return current
}

func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	change := (current - previous) / previous * 100
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0
	}
	return math.Round(change*100) / 100
}

// StateDistribution sums interval durations per observed state, in KnownStates order.
func StateDistribution(intervals []models.Interval, rng models.TimeRange) []models.StateShare {
	totals := make(map[models.MachineState]int64)
	for _, iv := range intervals {
		totals[iv.State] += iv.DurationMs
	}
	duration := rangeDurationMs(rng)
	shares := make([]models.StateShare, 0, len(totals))
	for _, state := range models.KnownStates() {
		total, observed := totals[state]
		if !observed {
			continue
		}
		share := models.StateShare{Label: state, Duration: total}
		if duration > 0 {
			share.Percentage = float64(total) / float64(duration)
		}
		shares = append(shares, share)
	}
	return shares
}
