package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/data"
	"github.com/namwodah/depot/pool"
	"github.com/namwodah/depot/registry"
)

// ErrDone is returned when operating on a unit of work that was already
// committed or rolled back.
var ErrDone = errors.New("unit of work already terminated")

// State tracks a unit of work through its lifecycle.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "active"
	}
}

type mutationKind int

const (
	mutationInsert mutationKind = iota
	mutationUpdate
	mutationDelete
)

type mutation struct {
	kind mutationKind
	rec  *data.Record
}

// UnitOfWork wraps one pooled connection and an open transaction. It
// collects pending mutations and applies them, in enqueue order, as a
// single atomic transaction at Commit. It is bound to one logical
// operation and must not be shared across operations.
type UnitOfWork struct {
	dbPool  pool.Pool
	reg     *registry.Registry
	conn    *pool.Connection
	tx      pool.Tx
	stmtLog *pool.StatementLogger
	log     *util.LogEntry

	mu      sync.Mutex
	pending []mutation
	state   State
}

func (u *UnitOfWork) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Add enqueues rec for persistence: an insert when the record has never
// been committed (version zero), an update otherwise.
func (u *UnitOfWork) Add(rec *data.Record) error {
	def, err := u.validate(rec)
	if err != nil {
		return err
	}

	kind := mutationUpdate
	if rec.Version() == 0 {
		kind = mutationInsert
	} else if rec.Identity(def.PrimaryKey().Name) == nil {
		return fmt.Errorf("update %s: record has no identity", def.Name)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateActive {
		return ErrDone
	}
	u.pending = append(u.pending, mutation{kind: kind, rec: rec})
	return nil
}

// Remove enqueues deletion of rec. The declared relationship policy for
// each dependent entity is evaluated at commit time.
func (u *UnitOfWork) Remove(rec *data.Record) error {
	def, err := u.validate(rec)
	if err != nil {
		return err
	}
	if rec.Identity(def.PrimaryKey().Name) == nil {
		return fmt.Errorf("remove %s: record has no identity", def.Name)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateActive {
		return ErrDone
	}
	u.pending = append(u.pending, mutation{kind: mutationDelete, rec: rec})
	return nil
}

// Commit flushes all pending mutations and commits the transaction,
// then returns the connection to the pool. Any failure rolls the whole
// transaction back before surfacing the mapped error.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return ErrDone
	}

	if err := u.flush(ctx); err != nil {
		u.rollbackLocked(ctx)
		return err
	}

	if err := u.tx.Commit(ctx); err != nil {
		u.rollbackLocked(ctx)
		return data.MapError("", err)
	}

	u.state = StateCommitted
	u.pending = nil
	u.releaseLocked(ctx)
	return nil
}

// Rollback discards pending mutations and releases the connection
// without committing. Calling it on a terminated unit is a no-op, which
// lets deferred rollbacks coexist with an explicit Commit.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return nil
	}

	u.rollbackLocked(ctx)
	return nil
}

func (u *UnitOfWork) rollbackLocked(ctx context.Context) {
	if err := u.tx.Rollback(ctx); err != nil {
		// The transaction is in an unknown state; do not reuse the link.
		u.log.WithError(err).WithField("connection", u.conn.ID()).
			Warn("rollback failed, discarding connection")
		u.conn.MarkDead()
	}
	u.state = StateRolledBack
	u.pending = nil
	u.releaseLocked(ctx)
}

func (u *UnitOfWork) releaseLocked(ctx context.Context) {
	if u.conn == nil {
		return
	}
	u.dbPool.Release(ctx, u.conn)
	u.conn = nil
}

func (u *UnitOfWork) validate(rec *data.Record) (*registry.Definition, error) {
	if rec == nil {
		return nil, errors.New("nil record")
	}

	def, err := u.reg.Lookup(rec.Entity())
	if err != nil {
		return nil, err
	}

	for _, name := range rec.Fields() {
		if _, ok := def.Field(name); !ok {
			return nil, fmt.Errorf("entity %s has no field %q", def.Name, name)
		}
	}
	return def, nil
}
