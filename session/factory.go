// Package session implements the request-scoped unit of work: a
// transactional context wrapping one pooled connection, tracking entity
// mutations for atomic commit or rollback.
package session

import (
	"context"
	"errors"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/pool"
	"github.com/namwodah/depot/registry"
	"github.com/namwodah/depot/workerpool"
)

// Factory produces a fresh unit of work per logical operation, bound to
// a connection drawn from the pool.
type Factory struct {
	dbPool  pool.Pool
	reg     *registry.Registry
	workMan workerpool.Manager
	log     *util.LogEntry
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithWorkerManager enables Submit by providing a worker pool for
// blocking dispatch.
func WithWorkerManager(workMan workerpool.Manager) FactoryOption {
	return func(f *Factory) {
		f.workMan = workMan
	}
}

func NewFactory(ctx context.Context, dbPool pool.Pool, reg *registry.Registry, opts ...FactoryOption) *Factory {
	f := &Factory{
		dbPool: dbPool,
		reg:    reg,
		log:    util.Log(ctx),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin acquires a connection and opens a transaction on it. The
// returned unit of work must be terminated with Commit or Rollback;
// prefer Run, which guarantees termination on every exit path.
func (f *Factory) Begin(ctx context.Context) (*UnitOfWork, error) {
	conn, err := f.dbPool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.MarkDead()
		f.dbPool.Release(ctx, conn)
		return nil, err
	}

	return &UnitOfWork{
		dbPool:  f.dbPool,
		reg:     f.reg,
		conn:    conn,
		tx:      tx,
		stmtLog: f.dbPool.StatementLogger(),
		log:     f.log,
		state:   StateActive,
	}, nil
}

// Run executes fn within a unit of work: commit when fn returns nil,
// rollback when it errors or panics. The connection is released on every
// exit path.
func (f *Factory) Run(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	uow, err := f.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = uow.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(ctx, uow); err != nil {
		_ = uow.Rollback(ctx)
		return err
	}

	return uow.Commit(ctx)
}

// Submit dispatches fn as a unit of work onto the worker pool. Database
// calls block on the network, so they never run inline on a cooperative
// scheduler thread; callers await the outcome on the returned pipe.
func (f *Factory) Submit(
	ctx context.Context,
	fn func(ctx context.Context, uow *UnitOfWork) error,
) (workerpool.JobResultPipe[bool], error) {
	if f.workMan == nil {
		return nil, errors.New("session: no worker pool configured for blocking dispatch")
	}

	job := workerpool.NewJob(func(ctx context.Context, result workerpool.JobResultPipe[bool]) error {
		if err := f.Run(ctx, fn); err != nil {
			return err
		}
		return result.WriteResult(ctx, true)
	})

	if err := workerpool.SubmitJob(ctx, f.workMan, job); err != nil {
		return nil, err
	}
	return job, nil
}
