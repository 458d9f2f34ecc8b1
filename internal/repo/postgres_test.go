package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostgresStoreStatesByDateRange(t *testing.T) {
	ts := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	q := &fakeQuerier{cursor: &fakeCursor{rows: [][]any{
		{"s-1", "m-1", ts, "ACTIVE", "AUTOMATIC", "ACTIVE", "O1000", "T12"},
		{"s-2", "m-2", ts.Add(time.Minute), "IDLE", "", "", "", ""},
	}}}
	store := &PostgresStore{db: fakePgQuerier{q}}

	start := time.Date(2025, time.March, 10, 4, 0, 0, 0, time.UTC)
	events, err := store.StatesByDateRange(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "O1000", events[0].Program)
	require.Equal(t, time.UTC, events[0].Timestamp.Location())
	require.True(t, events[0].Timestamp.Equal(ts))
	require.True(t, q.cursor.closed)

	require.Len(t, q.queries, 1)
	require.Contains(t, q.queries[0].sql, "FROM machine_states")
	require.Equal(t, []any{start, start.Add(24 * time.Hour)}, q.queries[0].args)
}

func TestPostgresStoreStatesByMachine(t *testing.T) {
	q := &fakeQuerier{cursor: &fakeCursor{}}
	store := &PostgresStore{db: fakePgQuerier{q}}

	events, err := store.StatesByMachine(context.Background(), "m-9", time.Unix(0, 0), time.Unix(60, 0))
	require.NoError(t, err)
	require.NotNil(t, events)
	require.Empty(t, events)
	require.Equal(t, "m-9", q.queries[0].args[0])
	require.True(t, strings.Contains(q.queries[0].sql, "machine_id = $1"))
}

func TestPostgresStoreDirectories(t *testing.T) {
	ctx := context.Background()

	machines := &fakeQuerier{cursor: &fakeCursor{rows: [][]any{{"m-1", "Lathe", "lathe"}}}}
	store := &PostgresStore{db: fakePgQuerier{machines}}
	list, err := store.ListMachines(ctx)
	require.NoError(t, err)
	require.Equal(t, "Lathe", list[0].Name)

	raised := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	alarms := &fakeQuerier{cursor: &fakeCursor{rows: [][]any{{"a-1", "m-1", raised, "spindle", "high", "overload", false}}}}
	store = &PostgresStore{db: fakePgQuerier{alarms}}
	got, err := store.ListAlarms(ctx, raised.Add(-time.Hour), raised)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "overload", got[0].Message)
	require.False(t, got[0].Resolved)
}

func TestPostgresStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("relation does not exist")

	store := &PostgresStore{db: fakePgQuerier{&fakeQuerier{err: boom}}}
	_, err := store.ListMachines(ctx)
	require.ErrorIs(t, err, boom)

	iterErr := errors.New("conn reset")
	store = &PostgresStore{db: fakePgQuerier{&fakeQuerier{cursor: &fakeCursor{err: iterErr}}}}
	_, err = store.StatesByDateRange(ctx, time.Unix(0, 0), time.Unix(1, 0))
	require.ErrorIs(t, err, iterErr)

	store = &PostgresStore{db: fakePgQuerier{&fakeQuerier{cursor: &fakeCursor{rows: [][]any{{"m-1", "Lathe"}}}}}}
	_, err = store.ListMachines(ctx)
	require.Error(t, err)

	_, err = NewPostgresStore(ctx, PostgresConfig{}, nil)
	require.Error(t, err)
}
