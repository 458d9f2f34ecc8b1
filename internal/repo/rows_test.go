package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeCursor replays fixed rows through Scan.
type fakeCursor struct {
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (c *fakeCursor) Next() bool {
	if c.idx >= len(c.rows) {
		return false
	}
	c.idx++
	return true
}

func (c *fakeCursor) Scan(dest ...any) error {
	row := c.rows[c.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		value := reflect.ValueOf(row[i])
		if !value.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan column %d: cannot assign %s to %s", i, value.Type(), target.Type())
		}
		target.Set(value)
	}
	return nil
}

func (c *fakeCursor) Err() error { return c.err }

type fakePgRows struct{ *fakeCursor }

func (r fakePgRows) Close()                                       { r.closed = true }
func (r fakePgRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r fakePgRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r fakePgRows) Values() ([]any, error)                       { return r.rows[r.idx-1], nil }
func (r fakePgRows) RawValues() [][]byte                          { return nil }
func (r fakePgRows) Conn() *pgx.Conn                              { return nil }

type fakeChRows struct{ *fakeCursor }

func (r fakeChRows) Close() error                     { r.closed = true; return nil }
func (r fakeChRows) ScanStruct(any) error             { return fmt.Errorf("not supported") }
func (r fakeChRows) ColumnTypes() []driver.ColumnType { return nil }
func (r fakeChRows) Totals(...any) error              { return nil }
func (r fakeChRows) Columns() []string                { return nil }

// recordedQuery captures the statement and arguments a store issued.
type recordedQuery struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	cursor  *fakeCursor
	err     error
	queries []recordedQuery
}

func (q *fakeQuerier) record(sql string, args []any) error {
	q.queries = append(q.queries, recordedQuery{sql: sql, args: args})
	return q.err
}

type fakePgQuerier struct{ *fakeQuerier }

func (q fakePgQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := q.record(sql, args); err != nil {
		return nil, err
	}
	return fakePgRows{q.cursor}, nil
}

type fakeChQuerier struct{ *fakeQuerier }

func (q fakeChQuerier) Query(_ context.Context, sql string, args ...any) (driver.Rows, error) {
	if err := q.record(sql, args); err != nil {
		return nil, err
	}
	return fakeChRows{q.cursor}, nil
}
