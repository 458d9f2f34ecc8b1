package models

import (
	"strings"
	"time"
)

// MachineState enumerates the operating states the engine understands.
type MachineState string

const (
	StateActive  MachineState = "ACTIVE"
	StateSetup   MachineState = "SETUP"
	StateIdle    MachineState = "IDLE"
	StateStopped MachineState = "STOPPED"
	StateAlarm   MachineState = "ALARM"
	// StateOffline is synthetic: it marks time with no event coverage.
	StateOffline MachineState = "OFFLINE"
	// StateUnknown absorbs labels outside the known set.
	StateUnknown MachineState = "UNKNOWN"
)

var knownStates = []MachineState{
	StateActive,
	StateSetup,
	StateIdle,
	StateStopped,
	StateAlarm,
	StateOffline,
	StateUnknown,
}

// KnownStates returns every state in display order.
func KnownStates() []MachineState {
	return append([]MachineState(nil), knownStates...)
}

// ParseMachineState maps a raw label onto the closed state set, case-insensitively.
// The second return value reports whether the label was recognised.
func ParseMachineState(raw string) (MachineState, bool) {
	candidate := MachineState(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range knownStates {
		if s == candidate {
			return s, true
		}
	}
	return StateUnknown, false
}

// IsActive reports whether the state counts towards utilization.
func (s MachineState) IsActive() bool {
	return s == StateActive
}

// StateEvent is a single state-change record as delivered by the event store.
type StateEvent struct {
	ID         string    `json:"id"`
	MachineID  string    `json:"machineId"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"`
	Controller string    `json:"controller,omitempty"`
	Execution  string    `json:"execution,omitempty"`
	Program    string    `json:"program,omitempty"`
	Tool       string    `json:"tool,omitempty"`
}

// Interval is a closed span during which a machine is inferred to have held one state.
type Interval struct {
	MachineID  string
	State      MachineState
	Start      time.Time
	End        time.Time
	DurationMs int64
}
