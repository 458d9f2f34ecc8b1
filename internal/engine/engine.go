package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

const (
	depEventStore       = "event store"
	depMachineDirectory = "machine directory"
	depAlarmDirectory   = "alarm directory"
)

// EventStore serves state-change events. Results need not be sorted.
type EventStore interface {
	StatesByDateRange(ctx context.Context, start, end time.Time) ([]models.StateEvent, error)
	StatesByMachine(ctx context.Context, machineID string, start, end time.Time) ([]models.StateEvent, error)
}

// MachineDirectory lists known machines.
type MachineDirectory interface {
	ListMachines(ctx context.Context) ([]models.Machine, error)
}

// AlarmDirectory lists alarms raised within a range.
type AlarmDirectory interface {
	ListAlarms(ctx context.Context, start, end time.Time) ([]models.Alarm, error)
}

// Config wires the engine to its collaborators.
type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Events   EventStore
	Machines MachineDirectory
	Alarms   AlarmDirectory
	Catalog  *StateCatalog
	// ReportingOffset overrides DefaultReportingOffset when set. Zero is a valid offset.
	ReportingOffset *time.Duration
}

// Validate checks required collaborators and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Events == nil {
		return errors.New("event store is required")
	}
	if cfg.Machines == nil {
		return errors.New("machine directory is required")
	}
	if cfg.Alarms == nil {
		return errors.New("alarm directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReportingOffset != nil && (*cfg.ReportingOffset < 0 || *cfg.ReportingOffset >= 24*time.Hour) {
		return fmt.Errorf("reporting offset %s out of range", *cfg.ReportingOffset)
	}
	return nil
}

// Engine computes utilization overviews and state timelines. It keeps no state
// between calls; every request works on its own fetched snapshot.
type Engine struct {
	log    *slog.Logger
	cfg    Config
	offset time.Duration
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	offset := DefaultReportingOffset
	if cfg.ReportingOffset != nil {
		offset = *cfg.ReportingOffset
	}
	return &Engine{log: cfg.Logger, cfg: cfg, offset: offset}, nil
}

type snapshot struct {
	events   []models.StateEvent
	machines []models.Machine
	alarms   []models.Alarm

	// Previous-window reads, only filled for overviews.
	previousEvents []models.StateEvent
	previousAlarms []models.Alarm
}

// fetch issues the collaborator reads for rng concurrently. Overviews also read
// the previous window for the KPI comparison.
func (e *Engine) fetch(ctx context.Context, rng models.TimeRange, withAlarms bool) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := e.cfg.Events.StatesByDateRange(gctx, rng.Start, rng.End)
		if err != nil {
			return utils.NewDependencyError(depEventStore, err)
		}
		snap.events = events
		return nil
	})
	g.Go(func() error {
		machines, err := e.cfg.Machines.ListMachines(gctx)
		if err != nil {
			return utils.NewDependencyError(depMachineDirectory, err)
		}
		snap.machines = machines
		return nil
	})
	if withAlarms {
		g.Go(func() error {
			alarms, err := e.cfg.Alarms.ListAlarms(gctx, rng.Start, rng.End)
			if err != nil {
				return utils.NewDependencyError(depAlarmDirectory, err)
			}
			snap.alarms = alarms
			return nil
		})

		prev := PreviousRange(rng)
		g.Go(func() error {
			events, err := e.cfg.Events.StatesByDateRange(gctx, prev.Start, prev.End)
			if err != nil {
				return utils.NewDependencyError(depEventStore, err)
			}
			snap.previousEvents = events
			return nil
		})
		g.Go(func() error {
			alarms, err := e.cfg.Alarms.ListAlarms(gctx, prev.Start, prev.End)
			if err != nil {
				return utils.NewDependencyError(depAlarmDirectory, err)
			}
			snap.previousAlarms = alarms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// StateOverview computes KPIs, the bucketed utilization series and the state
// distribution for the caller range.
func (e *Engine) StateOverview(ctx context.Context, req models.OverviewRequest) (models.UtilizationOverview, error) {
	view := req.View
	if view == "" {
		view = models.ViewAll
	}
	if _, ok := models.ParseOverviewView(string(view)); !ok {
		return models.UtilizationOverview{}, utils.NewValidationError("unsupported view %q", view)
	}

	rng, err := NormalizeRange(req.Start, req.End, e.offset)
	if err != nil {
		return models.UtilizationOverview{}, err
	}

	snap, err := e.fetch(ctx, rng, true)
	if err != nil {
		return models.UtilizationOverview{}, fmt.Errorf("state overview: %w", err)
	}

	grouped, err := GroupEvents(snap.events)
	if err != nil {
		return models.UtilizationOverview{}, fmt.Errorf("state overview: %w", err)
	}

	intervals := make([]models.Interval, 0, len(snap.events)+len(grouped))
	for _, machineID := range sortedMachineIDs(grouped) {
		intervals = append(intervals, ReconstructIntervals(machineID, grouped[machineID], rng, e.cfg.Catalog)...)
	}

	now := e.cfg.Clock.Now()
	scale, divisions := BuildDivisions(rng, e.offset)
	series := UtilizationSeries(intervals, divisions, now)
	if view != models.ViewAll {
		groupOf, keys := groupingFor(view, snap.machines)
		GroupedSeries(series, intervals, groupOf, keys, now)
	}

	kpis := RangeKPIs(intervals, rng)
	kpis.AlertCount = len(snap.alarms)

	prev := PreviousRange(rng)
	previousGrouped, err := GroupEvents(snap.previousEvents)
	if err != nil {
		return models.UtilizationOverview{}, fmt.Errorf("state overview: previous window: %w", err)
	}
	previousIntervals := make([]models.Interval, 0, len(snap.previousEvents)+len(previousGrouped))
	for _, machineID := range sortedMachineIDs(previousGrouped) {
		previousIntervals = append(previousIntervals, ReconstructIntervals(machineID, previousGrouped[machineID], prev, e.cfg.Catalog)...)
	}
	previousKPIs := RangeKPIs(previousIntervals, prev)
	previousKPIs.AlertCount = len(snap.previousAlarms)
	kpis = CompareKPIs(kpis, previousKPIs)

	e.log.Debug("state overview computed",
		slog.Time("start", rng.Start),
		slog.Time("end", rng.End),
		slog.String("span", utils.FormatDuration(rng.End.Sub(rng.Start))),
		slog.String("scale", string(scale)),
		slog.Int("divisions", len(divisions)),
		slog.Int("events", len(snap.events)),
		slog.Int("intervals", len(intervals)),
		slog.String("average_runtime", utils.FormatDuration(time.Duration(kpis.AverageRuntime)*time.Millisecond)),
	)

	return models.UtilizationOverview{
		Range:       rng,
		Scale:       scale,
		View:        view,
		KPIs:        kpis,
		Utilization: series,
		States:      StateDistribution(intervals, rng),
		Machines:    nonNil(snap.machines),
		Alarms:      nonNil(snap.alarms),
	}, nil
}

// StateTimeline returns a gap-filled timeline for every directory machine, clamped to now.
func (e *Engine) StateTimeline(ctx context.Context, start, end time.Time) ([]models.MachineTimeline, error) {
	rng, err := NormalizeRange(start, end, e.offset)
	if err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, rng, false)
	if err != nil {
		return nil, fmt.Errorf("state timeline: %w", err)
	}
	grouped, err := GroupEvents(snap.events)
	if err != nil {
		return nil, fmt.Errorf("state timeline: %w", err)
	}

	clamped := ClampToNow(rng, e.cfg.Clock.Now())
	timelines := BuildTimelines(snap.machines, grouped, clamped, e.cfg.Catalog)

	if orphans := len(grouped) - matchedMachines(grouped, snap.machines); orphans > 0 {
		e.log.Debug("events for machines missing from directory", slog.Int("machines", orphans))
	}
	return timelines, nil
}

// MachineTimeline returns the timeline of a single directory machine.
func (e *Engine) MachineTimeline(ctx context.Context, machineID string, start, end time.Time) (models.MachineTimeline, error) {
	if machineID == "" {
		return models.MachineTimeline{}, utils.NewValidationError("machine id is required")
	}
	rng, err := NormalizeRange(start, end, e.offset)
	if err != nil {
		return models.MachineTimeline{}, err
	}

	machines, err := e.cfg.Machines.ListMachines(ctx)
	if err != nil {
		return models.MachineTimeline{}, fmt.Errorf("machine timeline: %w", utils.NewDependencyError(depMachineDirectory, err))
	}
	machine, ok := findMachine(machines, machineID)
	if !ok {
		return models.MachineTimeline{}, utils.NewValidationError("machine %s not found", machineID)
	}

	events, err := e.cfg.Events.StatesByMachine(ctx, machineID, rng.Start, rng.End)
	if err != nil {
		return models.MachineTimeline{}, fmt.Errorf("machine timeline: %w", utils.NewDependencyError(depEventStore, err))
	}
	grouped, err := GroupEvents(events)
	if err != nil {
		return models.MachineTimeline{}, fmt.Errorf("machine timeline: %w", err)
	}

	clamped := ClampToNow(rng, e.cfg.Clock.Now())
	return BuildMachineTimeline(machine, grouped[machineID], clamped, e.cfg.Catalog), nil
}

// groupingFor returns the group key function and the directory-derived keys for view.
func groupingFor(view models.OverviewView, machines []models.Machine) (func(string) string, []string) {
	types := make(map[string]string, len(machines))
	keys := make([]string, 0, len(machines))
	seen := make(map[string]struct{}, len(machines))
	for _, m := range machines {
		types[m.ID] = m.Type
		key := m.ID
		if view == models.ViewGroup {
			key = groupKey(m.Type)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if view == models.ViewGroup {
		return func(machineID string) string { return groupKey(types[machineID]) }, keys
	}
	return func(machineID string) string { return machineID }, keys
}

func groupKey(machineType string) string {
	if machineType == "" {
		return "unknown"
	}
	return machineType
}

func findMachine(machines []models.Machine, id string) (models.Machine, bool) {
	for _, m := range machines {
		if m.ID == id {
			return m, true
		}
	}
	return models.Machine{}, false
}

func matchedMachines(grouped map[string][]models.StateEvent, machines []models.Machine) int {
	count := 0
	for _, m := range machines {
		if _, ok := grouped[m.ID]; ok {
			count++
		}
	}
	return count
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
