package engine

import (
	"sort"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

// GroupEvents validates events and buckets them per machine, each bucket sorted by
// timestamp. Ties keep the order the store returned them in.
func GroupEvents(events []models.StateEvent) (map[string][]models.StateEvent, error) {
	grouped := make(map[string][]models.StateEvent)
	for i, ev := range events {
		if err := validateEvent(i, ev); err != nil {
			return nil, err
		}
		ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Millisecond)
		grouped[ev.MachineID] = append(grouped[ev.MachineID], ev)
	}
	for _, machineEvents := range grouped {
		sort.SliceStable(machineEvents, func(i, j int) bool {
			return machineEvents[i].Timestamp.Before(machineEvents[j].Timestamp)
		})
	}
	return grouped, nil
}

func validateEvent(index int, ev models.StateEvent) error {
	reason := ""
	switch {
	case ev.MachineID == "":
		reason = "missing machine id"
	case ev.Timestamp.IsZero():
		reason = "missing timestamp"
	case ev.State == "":
		reason = "missing state"
	default:
		return nil
	}
	return &utils.InvalidEventError{MachineID: ev.MachineID, EventID: ev.ID, Index: index, Reason: reason}
}

// ReconstructIntervals tiles rng with the machine's state intervals. Each event holds
// until the next one (or the range end); uncovered time before the first event is
// OFFLINE. Events must be sorted; events outside rng are ignored.
func ReconstructIntervals(machineID string, events []models.StateEvent, rng models.TimeRange, catalog *StateCatalog) []models.Interval {
	inRange := make([]models.StateEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.Before(rng.Start) || ev.Timestamp.After(rng.End) {
			continue
		}
		inRange = append(inRange, ev)
	}

	if len(inRange) == 0 {
		return []models.Interval{newInterval(machineID, models.StateOffline, rng.Start, rng.End)}
	}

	intervals := make([]models.Interval, 0, len(inRange)+1)
	cursor := rng.Start
	for i, ev := range inRange {
		if ev.Timestamp.After(cursor) {
			intervals = append(intervals, newInterval(machineID, models.StateOffline, cursor, ev.Timestamp))
		}
		next := rng.End
		if i+1 < len(inRange) {
			next = inRange[i+1].Timestamp
		}
		intervals = append(intervals, newInterval(machineID, catalog.Classify(ev.State), ev.Timestamp, next))
		cursor = next
	}
	return intervals
}

func newInterval(machineID string, state models.MachineState, start, end time.Time) models.Interval {
	return models.Interval{
		MachineID:  machineID,
		State:      state,
		Start:      start,
		End:        end,
		DurationMs: end.Sub(start).Milliseconds(),
	}
}

// sortedMachineIDs returns the keys of grouped in ascending order.
func sortedMachineIDs(grouped map[string][]models.StateEvent) []string {
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
