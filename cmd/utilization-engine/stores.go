package main

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-utilization/internal/cache"
	"github.com/miradorstack/mirador-utilization/internal/config"
	"github.com/miradorstack/mirador-utilization/internal/engine"
	"github.com/miradorstack/mirador-utilization/internal/repo"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

// stores holds the engine collaborators selected by configuration and the
// resources that must be released on shutdown.
type stores struct {
	events   engine.EventStore
	machines engine.MachineDirectory
	alarms   engine.AlarmDirectory
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	out := &stores{}

	var core *repo.CoreClient
	coreClient := func() *repo.CoreClient {
		if core != nil {
			return core
		}
		var provider cache.Provider = cache.NoopProvider{}
		ttl := cfg.Cache.MachinesTTL
		if cfg.Cache.Enabled {
			memory := cache.NewMemoryProvider()
			out.closers = append(out.closers, func() { _ = memory.Close() })
			provider = memory
		} else {
			ttl = 0
		}
		core = repo.NewCoreClient(cfg.Clients.Core.BaseURL, repo.CorePaths{
			States:        cfg.Clients.Core.StatesPath,
			MachineStates: cfg.Clients.Core.MachineStatesPath,
			Machines:      cfg.Clients.Core.MachinesPath,
			Alarms:        cfg.Clients.Core.AlarmsPath,
		}, cfg.Clients.Core.Timeout, provider, ttl, logger)
		return core
	}

	var pg *repo.PostgresStore
	postgres := func() (*repo.PostgresStore, error) {
		if pg != nil {
			return pg, nil
		}
		store, err := repo.NewPostgresStore(ctx, repo.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, utils.NewAppError("open stores", "postgres", err)
		}
		out.closers = append(out.closers, store.Close)
		pg = store
		return pg, nil
	}

	switch cfg.Store.Events {
	case config.BackendPostgres:
		store, err := postgres()
		if err != nil {
			out.Close()
			return nil, err
		}
		out.events = store
	case config.BackendClickHouse:
		store, err := repo.NewClickHouseStore(ctx, repo.ClickHouseConfig{
			Addr:        cfg.ClickHouse.Addr,
			Database:    cfg.ClickHouse.Database,
			Username:    cfg.ClickHouse.Username,
			Password:    cfg.ClickHouse.Password,
			Secure:      cfg.ClickHouse.Secure,
			DialTimeout: cfg.ClickHouse.DialTimeout,
		}, logger)
		if err != nil {
			out.Close()
			return nil, utils.NewAppError("open stores", "clickhouse", err)
		}
		out.closers = append(out.closers, func() { _ = store.Close() })
		out.events = store
	default:
		out.events = coreClient()
	}

	switch cfg.Store.Directory {
	case config.BackendPostgres:
		store, err := postgres()
		if err != nil {
			out.Close()
			return nil, err
		}
		out.machines, out.alarms = store, store
	default:
		client := coreClient()
		out.machines, out.alarms = client, client
	}
	return out, nil
}
