package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

// ClampToNow cuts rng at now. A range entirely in the future collapses to its start.
func ClampToNow(rng models.TimeRange, now time.Time) models.TimeRange {
	if rng.End.After(now) {
		rng.End = now.UTC().Truncate(time.Millisecond)
	}
	if rng.End.Before(rng.Start) {
		rng.End = rng.Start
	}
	return rng
}

// BuildTimelines produces one gap-filled row per directory machine, including machines
// without events. rng must already be clamped to now.
func BuildTimelines(machines []models.Machine, grouped map[string][]models.StateEvent, rng models.TimeRange, catalog *StateCatalog) []models.MachineTimeline {
	sorted := append([]models.Machine(nil), machines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		left, right := strings.ToLower(sorted[i].Name), strings.ToLower(sorted[j].Name)
		if left != right {
			return left < right
		}
		return sorted[i].ID < sorted[j].ID
	})

	timelines := make([]models.MachineTimeline, 0, len(sorted))
	for _, machine := range sorted {
		timelines = append(timelines, BuildMachineTimeline(machine, grouped[machine.ID], rng, catalog))
	}
	return timelines
}

// BuildMachineTimeline renders a single machine's intervals as display rows.
func BuildMachineTimeline(machine models.Machine, events []models.StateEvent, rng models.TimeRange, catalog *StateCatalog) models.MachineTimeline {
	name := machine.Name
	if name == "" {
		name = machine.ID
	}
	intervals := ReconstructIntervals(machine.ID, events, rng, catalog)
	entries := make([]models.TimelineEntry, 0, len(intervals))
	for _, iv := range intervals {
		entries = append(entries, models.TimelineEntry{
			State:      iv.State,
			Timestamp:  iv.Start,
			DurationMs: iv.DurationMs,
		})
	}
	return models.MachineTimeline{MachineID: machine.ID, MachineName: name, Timeline: entries}
}
