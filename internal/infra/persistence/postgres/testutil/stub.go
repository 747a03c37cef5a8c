// Package testutil provides a recording database/sql connection for
// postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// StubRows is a canned result set.
type StubRows struct {
	Columns []string
	Values  [][]driver.Value
}

// StubConn records statements and serves canned rows.
type StubConn struct {
	mu        sync.Mutex
	Execs     []string
	ExecArgs  [][]any
	Queries   []string
	QueryArgs [][]any
	Commits   int
	Rollbacks int

	FailPing  bool
	FailBegin bool
	// FailExecContaining fails any statement containing the substring.
	FailExecContaining string
	// Results maps a query substring to the rows it returns.
	Results map[string]StubRows
}

// NewStubDB returns a *sql.DB whose single connection is conn.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Results: make(map[string]StubRows)}
	return sql.OpenDB(stubConnector{conn: conn}), conn
}

// ExecsContaining returns the recorded statements containing substr.
func (c *StubConn) ExecsContaining(substr string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, stmt := range c.Execs {
		if strings.Contains(stmt, substr) {
			out = append(out, stmt)
		}
	}
	return out
}

type stubConnector struct{ conn *StubConn }

func (s stubConnector) Connect(context.Context) (driver.Conn, error) { return s.conn, nil }
func (s stubConnector) Driver() driver.Driver                        { return stubDriver{conn: s.conn} }

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepare not supported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: connection refused")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	c.ExecArgs = append(c.ExecArgs, values(args))
	if c.FailExecContaining != "" && strings.Contains(query, c.FailExecContaining) {
		return nil, errors.New("stub: exec failed")
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	c.QueryArgs = append(c.QueryArgs, values(args))
	for substr, res := range c.Results {
		if strings.Contains(query, substr) {
			return &stubRows{columns: res.Columns, values: res.Values}, nil
		}
	}
	return &stubRows{columns: []string{"none"}}, nil
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	t.conn.mu.Lock()
	t.conn.Commits++
	t.conn.mu.Unlock()
	return nil
}

func (t stubTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.Rollbacks++
	t.conn.mu.Unlock()
	return nil
}

type stubRows struct {
	columns []string
	values  [][]driver.Value
	pos     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.pos])
	r.pos++
	return nil
}
