package models

import "time"

// TimeRange bounds the window a computation runs over.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Scale is the bucketing granularity chosen for a range.
type Scale string

const (
	ScaleHourly    Scale = "hourly"
	ScaleDaily     Scale = "daily"
	ScaleWeekly    Scale = "weekly"
	ScaleMonthly   Scale = "monthly"
	ScaleQuarterly Scale = "quarterly"
)

// Division is one bucket of a utilization series.
type Division struct {
	Start time.Time
	End   time.Time
	Label string
}

// OverviewView selects how the utilization series is partitioned.
type OverviewView string

const (
	ViewAll     OverviewView = "all"
	ViewGroup   OverviewView = "group"
	ViewMachine OverviewView = "machine"
)

// ParseOverviewView returns the view for a request value, defaulting to ViewAll.
func ParseOverviewView(v string) (OverviewView, bool) {
	switch OverviewView(v) {
	case "", ViewAll:
		return ViewAll, true
	case ViewGroup:
		return ViewGroup, true
	case ViewMachine:
		return ViewMachine, true
	default:
		return ViewAll, false
	}
}

// Machine is reference data from the machine directory.
type Machine struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
	Type string `json:"type" msgpack:"type"`
}

// Alarm is an alarm record from the alarm directory.
type Alarm struct {
	ID        string    `json:"id"`
	MachineID string    `json:"machineId"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message,omitempty"`
	Resolved  bool      `json:"resolved"`
}

// KPIs are the range-wide headline figures. Change compares them with the window of
// equal length that ends just before the range.
type KPIs struct {
	Utilization    float64   `json:"utilization"`
	AverageRuntime float64   `json:"averageRuntime"`
	AlertCount     int       `json:"alertCount"`
	Change         KPIChange `json:"change"`
}

// KPIChange holds period-over-period percentage changes, rounded to two decimals.
// A zero previous value yields a zero change.
type KPIChange struct {
	Utilization    float64 `json:"utilization"`
	AverageRuntime float64 `json:"averageRuntime"`
	AlertCount     float64 `json:"alertCount"`
}

// GroupUtilization is a per-group slice of a utilization point.
type GroupUtilization struct {
	Utilization *float64 `json:"utilization"`
	Runtime     int64    `json:"runtime"`
}

// UtilizationPoint is one bucket of the utilization series. Utilization is nil for
// buckets that start in the future.
type UtilizationPoint struct {
	Label       string                      `json:"label"`
	Start       time.Time                   `json:"start"`
	End         time.Time                   `json:"end"`
	Utilization *float64                    `json:"utilization"`
	Runtime     int64                       `json:"runtime"`
	Groups      map[string]GroupUtilization `json:"groups,omitempty"`
}

// StateShare is the share of the range spent in one state across all machines.
type StateShare struct {
	Label      MachineState `json:"label"`
	Duration   int64        `json:"duration"`
	Percentage float64      `json:"percentage"`
}

// UtilizationOverview is the aggregate result of a state overview request.
type UtilizationOverview struct {
	Range       TimeRange          `json:"range"`
	Scale       Scale              `json:"scale"`
	View        OverviewView       `json:"view"`
	KPIs        KPIs               `json:"kpis"`
	Utilization []UtilizationPoint `json:"utilization"`
	States      []StateShare       `json:"states"`
	Machines    []Machine          `json:"machines"`
	Alarms      []Alarm            `json:"alarms"`
}

// TimelineEntry is one row of a machine's display timeline.
type TimelineEntry struct {
	State      MachineState `json:"state"`
	Timestamp  time.Time    `json:"timestamp"`
	DurationMs int64        `json:"durationMs"`
}

// MachineTimeline is the gap-filled display timeline of a single machine.
type MachineTimeline struct {
	MachineID   string          `json:"machineId"`
	MachineName string          `json:"machineName"`
	Timeline    []TimelineEntry `json:"timeline"`
}

// OverviewRequest carries the caller-supplied overview parameters.
type OverviewRequest struct {
	Start time.Time
	End   time.Time
	View  OverviewView
}
