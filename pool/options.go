package pool

import (
	"time"

	"github.com/namwodah/depot/config"
)

// Option configures pool behavior.
type Option func(*Options)

// Options holds connection pool configuration.
type Options struct {
	Dialer         Dialer
	Size           int
	Overflow       int
	MaxLifetime    time.Duration
	PrePing        bool
	AcquireTimeout time.Duration

	StatementLogger *StatementLogger
}

// WithDialer sets the dialer used to open physical connections.
func WithDialer(dialer Dialer) Option {
	return func(o *Options) {
		o.Dialer = dialer
	}
}

// WithSize sets the base pool capacity.
func WithSize(size int) Option {
	return func(o *Options) {
		o.Size = size
	}
}

// WithOverflow sets how many extra connections may be opened beyond the
// base capacity. Overflow connections are closed, not pooled, on release.
func WithOverflow(overflow int) Option {
	return func(o *Options) {
		o.Overflow = overflow
	}
}

// WithMaxLifetime sets the age past which a connection is recycled on
// checkout instead of reused.
func WithMaxLifetime(maxLifetime time.Duration) Option {
	return func(o *Options) {
		o.MaxLifetime = maxLifetime
	}
}

// WithPrePing enables a liveness probe before every checkout. A failed
// probe replaces the connection silently.
func WithPrePing(prePing bool) Option {
	return func(o *Options) {
		o.PrePing = prePing
	}
}

// WithAcquireTimeout bounds how long Acquire blocks on a saturated pool.
func WithAcquireTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.AcquireTimeout = timeout
	}
}

// WithStatementLogger attaches a statement logger handed to sessions
// using this pool.
func WithStatementLogger(logger *StatementLogger) Option {
	return func(o *Options) {
		o.StatementLogger = logger
	}
}

// WithConfig applies pool sizing and checkout policy from configuration.
func WithConfig(cfg config.ConfigurationDatabase) Option {
	return func(o *Options) {
		o.Size = cfg.GetDatabasePoolSize()
		o.Overflow = cfg.GetDatabaseMaxOverflow()
		o.MaxLifetime = cfg.GetDatabasePoolRecycle()
		o.PrePing = cfg.CanDatabasePrePing()
		o.AcquireTimeout = cfg.GetDatabaseAcquireTimeout()
	}
}
