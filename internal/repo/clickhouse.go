package repo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

const (
	chStateColumns = `id, machine_id, ts, state, controller_mode, execution_status, program, tool`

	chStatesByRange = `SELECT ` + chStateColumns + `
		FROM machine_states
		WHERE ts BETWEEN ? AND ?
		ORDER BY machine_id, ts`

	chStatesByMachine = `SELECT ` + chStateColumns + `
		FROM machine_states
		WHERE machine_id = ? AND ts BETWEEN ? AND ?
		ORDER BY ts`
)

type chQuerier interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
}

// ClickHouseStore serves state events from a ClickHouse machine_states table. It only
// implements the event store; machines and alarms come from another adapter.
type ClickHouseStore struct {
	conn   chQuerier
	closer func() error
	logger *slog.Logger
}

// ClickHouseConfig holds connection parameters.
type ClickHouseConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	Secure      bool
	DialTimeout time.Duration
}

// NewClickHouseStore opens a connection pool and pings it.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouseStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("clickhouse addr is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     dialTimeout,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	logger.Info("connected to clickhouse", slog.String("addr", cfg.Addr), slog.String("database", cfg.Database))
	return &ClickHouseStore{conn: conn, closer: conn.Close, logger: logger}, nil
}

// StatesByDateRange returns every state event recorded within [start, end].
func (s *ClickHouseStore) StatesByDateRange(ctx context.Context, start, end time.Time) ([]models.StateEvent, error) {
	rows, err := s.conn.Query(ctx, chStatesByRange, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("clickhouse states query: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// StatesByMachine returns one machine's state events within [start, end].
func (s *ClickHouseStore) StatesByMachine(ctx context.Context, machineID string, start, end time.Time) ([]models.StateEvent, error) {
	rows, err := s.conn.Query(ctx, chStatesByMachine, machineID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("clickhouse machine states query: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// Close releases the connection pool.
func (s *ClickHouseStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
