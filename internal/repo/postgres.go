package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

const (
	pgStateColumns = `id, machine_id, ts, state,
		COALESCE(controller_mode, ''), COALESCE(execution_status, ''),
		COALESCE(program, ''), COALESCE(tool, '')`

	pgStatesByRange = `SELECT ` + pgStateColumns + `
		FROM machine_states
		WHERE ts BETWEEN $1 AND $2
		ORDER BY machine_id, ts`

	pgStatesByMachine = `SELECT ` + pgStateColumns + `
		FROM machine_states
		WHERE machine_id = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts`

	pgMachines = `SELECT id, COALESCE(name, ''), COALESCE(type, '')
		FROM machines
		ORDER BY id`

	pgAlarms = `SELECT id, machine_id, ts, COALESCE(type, ''), COALESCE(severity, ''),
		COALESCE(message, ''), resolved
		FROM machine_alarms
		WHERE ts BETWEEN $1 AND $2
		ORDER BY ts`
)

// pgQuerier is the subset of pgxpool.Pool used by PostgresStore.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads machine states, machines and alarms from PostgreSQL.
type PostgresStore struct {
	db     pgQuerier
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PostgresConfig holds pool parameters.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// NewPostgresStore opens a pool and pings it so misconfiguration fails at startup.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres", slog.String("host", poolCfg.ConnConfig.Host), slog.String("database", poolCfg.ConnConfig.Database))
	return &PostgresStore{db: pool, pool: pool, logger: logger}, nil
}

// StatesByDateRange returns every state event recorded within [start, end].
func (s *PostgresStore) StatesByDateRange(ctx context.Context, start, end time.Time) ([]models.StateEvent, error) {
	rows, err := s.db.Query(ctx, pgStatesByRange, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres states query: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// StatesByMachine returns one machine's state events within [start, end].
func (s *PostgresStore) StatesByMachine(ctx context.Context, machineID string, start, end time.Time) ([]models.StateEvent, error) {
	rows, err := s.db.Query(ctx, pgStatesByMachine, machineID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres machine states query: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// ListMachines returns every registered machine.
func (s *PostgresStore) ListMachines(ctx context.Context) ([]models.Machine, error) {
	rows, err := s.db.Query(ctx, pgMachines)
	if err != nil {
		return nil, fmt.Errorf("postgres machines query: %w", err)
	}
	defer rows.Close()
	return scanMachines(rows)
}

// ListAlarms returns alarms raised within [start, end].
func (s *PostgresStore) ListAlarms(ctx context.Context, start, end time.Time) ([]models.Alarm, error) {
	rows, err := s.db.Query(ctx, pgAlarms, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres alarms query: %w", err)
	}
	defer rows.Close()
	return scanAlarms(rows)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
