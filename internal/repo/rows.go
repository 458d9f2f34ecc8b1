package repo

import (
	"fmt"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

// rowScanner is the cursor surface shared by pgx.Rows and the ClickHouse driver rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStates(rows rowScanner) ([]models.StateEvent, error) {
	events := make([]models.StateEvent, 0)
	for rows.Next() {
		var ev models.StateEvent
		if err := rows.Scan(&ev.ID, &ev.MachineID, &ev.Timestamp, &ev.State, &ev.Controller, &ev.Execution, &ev.Program, &ev.Tool); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state rows: %w", err)
	}
	return events, nil
}

func scanMachines(rows rowScanner) ([]models.Machine, error) {
	machines := make([]models.Machine, 0)
	for rows.Next() {
		var m models.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Type); err != nil {
			return nil, fmt.Errorf("scan machine row: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machine rows: %w", err)
	}
	return machines, nil
}

func scanAlarms(rows rowScanner) ([]models.Alarm, error) {
	alarms := make([]models.Alarm, 0)
	for rows.Next() {
		var (
			a  models.Alarm
			ts time.Time
		)
		if err := rows.Scan(&a.ID, &a.MachineID, &ts, &a.Type, &a.Severity, &a.Message, &a.Resolved); err != nil {
			return nil, fmt.Errorf("scan alarm row: %w", err)
		}
		a.Timestamp = ts.UTC()
		alarms = append(alarms, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alarm rows: %w", err)
	}
	return alarms, nil
}
