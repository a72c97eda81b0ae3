// Package pool maintains a bounded set of reusable database connections.
// Checked-out connections never exceed the configured size plus overflow
// allowance; beyond that, acquisition blocks for a bounded wait and then
// fails with ErrPoolExhausted.
package pool

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when acquiring from a pool that was shut down.
	ErrClosed = errors.New("pool is closed")
	// ErrPoolExhausted is returned when capacity and overflow are both
	// saturated and nothing freed up within the acquire timeout.
	ErrPoolExhausted = errors.New("pool exhausted: no connection became available in time")
)

// Rows is a forward-only result iterator.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier executes statements on a live connection or transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Tx is an open database transaction.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a live database connection handle.
type Conn interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens new physical connections for the pool.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Stats is a point-in-time snapshot of pool utilization.
type Stats struct {
	Size       int
	Overflow   int
	Open       int
	Idle       int
	CheckedOut int
	Waiting    int
}

// Pool hands out pooled connections. Ownership of a Connection passes to
// the caller on Acquire and returns to the pool on Release; a connection
// is never shared concurrently.
type Pool interface {
	Acquire(ctx context.Context) (*Connection, error)
	Release(ctx context.Context, conn *Connection)
	Stats() Stats
	StatementLogger() *StatementLogger
	Close(ctx context.Context)
}
