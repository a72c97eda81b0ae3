package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/util"
)

const (
	defaultSize           = 5
	defaultOverflow       = 10
	defaultMaxLifetime    = 300 * time.Second
	defaultAcquireTimeout = 30 * time.Second
)

type pool struct {
	dialer         Dialer
	size           int
	overflow       int
	maxLifetime    time.Duration
	prePing        bool
	acquireTimeout time.Duration
	stmtLog        *StatementLogger
	log            *util.LogEntry

	mu      sync.Mutex
	idle    []*Connection // LIFO; newest at the tail
	numOpen int           // checked out + idle
	waiters []chan *Connection
	closed  bool
}

// NewPool creates a bounded pool. A dialer is required; sizing defaults
// to 5 base connections with 10 of overflow, recycled after 5 minutes.
func NewPool(ctx context.Context, opts ...Option) (Pool, error) {
	poolOpts := &Options{
		Size:           defaultSize,
		Overflow:       defaultOverflow,
		MaxLifetime:    defaultMaxLifetime,
		AcquireTimeout: defaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(poolOpts)
	}

	if poolOpts.Dialer == nil {
		return nil, errors.New("pool: a dialer is required")
	}
	if poolOpts.Size <= 0 {
		return nil, fmt.Errorf("pool: size must be positive, got %d", poolOpts.Size)
	}
	if poolOpts.Overflow < 0 {
		return nil, fmt.Errorf("pool: overflow must not be negative, got %d", poolOpts.Overflow)
	}

	return &pool{
		dialer:         poolOpts.Dialer,
		size:           poolOpts.Size,
		overflow:       poolOpts.Overflow,
		maxLifetime:    poolOpts.MaxLifetime,
		prePing:        poolOpts.PrePing,
		acquireTimeout: poolOpts.AcquireTimeout,
		stmtLog:        poolOpts.StatementLogger,
		log:            util.Log(ctx),
	}, nil
}

// StatementLogger exposes the logger configured for this pool, if any.
func (p *pool) StatementLogger() *StatementLogger {
	return p.stmtLog
}

func (p *pool) Acquire(ctx context.Context) (*Connection, error) {
	var timeout <-chan time.Time
	if p.acquireTimeout > 0 {
		timer := time.NewTimer(p.acquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()

			if p.retire(ctx, conn) {
				continue
			}
			return conn, nil
		}

		if p.numOpen < p.size+p.overflow {
			p.numOpen++
			isOverflow := p.numOpen > p.size
			p.mu.Unlock()

			conn, err := p.dial(ctx, isOverflow)
			if err != nil {
				p.forget(ctx)
				return nil, err
			}
			return conn, nil
		}

		// Saturated: wait for a release, a freed slot, the acquire
		// timeout or cancellation, whichever comes first.
		ch := make(chan *Connection, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.abandonWait(ctx, ch)
			return nil, ctx.Err()
		case <-timeout:
			p.abandonWait(ctx, ch)
			return nil, ErrPoolExhausted
		case handed := <-ch:
			if handed == nil {
				// A slot freed up without a reusable connection.
				continue
			}
			if p.retire(ctx, handed) {
				continue
			}
			return handed, nil
		}
	}
}

func (p *pool) Release(ctx context.Context, conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if p.closed || conn.IsDead() || conn.expired(p.maxLifetime) {
		p.numOpen--
		p.notifyLocked(nil)
		p.mu.Unlock()
		conn.close(ctx)
		return
	}

	// Hand off directly when someone is already waiting.
	if p.notifyLocked(conn) {
		p.mu.Unlock()
		return
	}

	if conn.IsOverflow() || len(p.idle) >= p.size {
		p.numOpen--
		p.mu.Unlock()
		conn.close(ctx)
		return
	}

	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

func (p *pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Size:       p.size,
		Overflow:   p.overflow,
		Open:       p.numOpen,
		Idle:       len(p.idle),
		CheckedOut: p.numOpen - len(p.idle),
		Waiting:    len(p.waiters),
	}
}

func (p *pool) Close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.numOpen -= len(idle)
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, conn := range idle {
		conn.close(ctx)
	}
}

func (p *pool) dial(ctx context.Context, isOverflow bool) (*Connection, error) {
	raw, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: dial connection: %w", err)
	}

	conn := newConnection(raw, isOverflow)
	p.log.WithField("connection", conn.ID()).
		WithField("overflow", isOverflow).
		Debug("opened database connection")
	return conn, nil
}

// retire checks a candidate connection out of the pool. It returns true
// when the connection was unusable and has been disposed of; the caller
// retries. Stale connections are replaced silently, never surfaced.
func (p *pool) retire(ctx context.Context, conn *Connection) bool {
	if conn.expired(p.maxLifetime) {
		p.log.WithField("connection", conn.ID()).
			WithField("age", conn.Age().String()).
			Debug("recycling connection past max lifetime")
		p.dispose(ctx, conn)
		return true
	}

	if p.prePing {
		if err := conn.Ping(ctx); err != nil {
			p.log.WithError(err).
				WithField("connection", conn.ID()).
				Debug("pre-ping failed, replacing stale connection")
			p.dispose(ctx, conn)
			return true
		}
	}

	conn.touch()
	return false
}

func (p *pool) dispose(ctx context.Context, conn *Connection) {
	conn.close(ctx)
	p.forget(ctx)
}

// forget gives a connection slot back and lets one waiter retry.
func (p *pool) forget(_ context.Context) {
	p.mu.Lock()
	p.numOpen--
	p.notifyLocked(nil)
	p.mu.Unlock()
}

// notifyLocked hands conn (or a nil permit) to the oldest waiter.
// Callers must hold p.mu.
func (p *pool) notifyLocked(conn *Connection) bool {
	if len(p.waiters) == 0 {
		return false
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	ch <- conn
	return true
}

// abandonWait withdraws a waiter that timed out or was cancelled. A
// connection raced to it is put back; a raced permit is passed on.
func (p *pool) abandonWait(ctx context.Context, ch chan *Connection) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	select {
	case conn := <-ch:
		if conn != nil {
			p.Release(ctx, conn)
			return
		}
		p.mu.Lock()
		p.notifyLocked(nil)
		p.mu.Unlock()
	default:
	}
}
