package engine

import (
	"context"
	"sync"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

// day0 is a fixed calendar day used as the caller-supplied date in tests.
var day0 = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

type fakeCollaborators struct {
	mu sync.Mutex

	events    []models.StateEvent
	machines  []models.Machine
	alarms    []models.Alarm
	eventsErr error
	machErr   error
	alarmErr  error

	rangeCalls   int
	machineCalls int
	alarmCalls   int
	ranges       []models.TimeRange
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

func (f *fakeCollaborators) StatesByDateRange(ctx context.Context, start, end time.Time) ([]models.StateEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls++
	f.ranges = append(f.ranges, models.TimeRange{Start: start, End: end})
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	out := make([]models.StateEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.Timestamp.IsZero() || inRange(ev.Timestamp, start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCollaborators) StatesByMachine(ctx context.Context, machineID string, start, end time.Time) ([]models.StateEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	out := make([]models.StateEvent, 0)
	for _, ev := range f.events {
		if ev.MachineID == machineID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCollaborators) ListMachines(ctx context.Context) ([]models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machineCalls++
	if f.machErr != nil {
		return nil, f.machErr
	}
	return append([]models.Machine(nil), f.machines...), nil
}

func (f *fakeCollaborators) ListAlarms(ctx context.Context, start, end time.Time) ([]models.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarmCalls++
	if f.alarmErr != nil {
		return nil, f.alarmErr
	}
	out := make([]models.Alarm, 0, len(f.alarms))
	for _, a := range f.alarms {
		if inRange(a.Timestamp, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func event(machineID, state string, ts time.Time) models.StateEvent {
	return models.StateEvent{ID: machineID + "-" + ts.Format(time.RFC3339), MachineID: machineID, State: state, Timestamp: ts}
}

func sumDurations(intervals []models.Interval) int64 {
	var total int64
	for _, iv := range intervals {
		total += iv.DurationMs
	}
	return total
}
