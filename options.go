package depot

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/config"
	"github.com/namwodah/depot/pool"
	"github.com/namwodah/depot/registry"
	"github.com/namwodah/depot/workerpool"
)

// WithConfig supplies a custom configuration object. Any object can be
// used provided it implements the config accessor interfaces for the
// components it wants to influence.
func WithConfig(configuration any) Option {
	return func(_ context.Context, s *Store) {
		s.configuration = configuration
	}
}

// WithLogger Option that initializes the store's logger from configuration.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Store) {
		if s.Config() != nil {
			cfg, ok := s.Config().(config.ConfigurationLogLevel)
			if ok {
				logLevel, err := util.ParseLevel(cfg.LoggingLevel())
				if err == nil {
					opts = append(opts, util.WithLogLevel(logLevel))
				}
				opts = append(opts,
					util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
					util.WithLogNoColor(!cfg.LoggingColored()),
					util.WithLogStackTrace())
			}
		}

		log := util.NewLogger(ctx, opts...)
		log.WithField("store", s.Name())
		s.logger = log
	}
}

// Log returns the store's logger bound to the supplied context.
func (s *Store) Log(ctx context.Context) *util.LogEntry {
	return s.logger.WithContext(ctx)
}

// WithRegistry replaces the store's entity registry with a pre-declared one.
func WithRegistry(reg *registry.Registry) Option {
	return func(_ context.Context, s *Store) {
		if reg != nil {
			s.reg = reg
		}
	}
}

// WithDatabaseConnection Option method to store a connection string that
// will be utilized when connecting to the database, overriding configuration.
func WithDatabaseConnection(postgresqlConnection string) Option {
	return func(ctx context.Context, s *Store) {
		dialer, err := pool.NewPgxDialer(postgresqlConnection)
		if err != nil {
			s.Log(ctx).WithError(err).Fatal("error parsing database connection string")
		}
		s.dialer = dialer
	}
}

// WithDialer supplies a custom dialer, mostly useful for tests.
func WithDialer(dialer pool.Dialer) Option {
	return func(_ context.Context, s *Store) {
		s.dialer = dialer
	}
}

// WithPoolOptions provides a way to set custom options for the connection
// pool. They are applied after the configuration derived ones.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(_ context.Context, s *Store) {
		s.poolOpts = append(s.poolOpts, opts...)
	}
}

// WithWorkerPoolOptions sets up the worker pool manager blocking work is
// offloaded to.
func WithWorkerPoolOptions(options ...workerpool.Option) Option {
	return func(ctx context.Context, s *Store) {
		cfg, ok := s.Config().(config.ConfigurationWorkerPool)
		if !ok {
			s.Log(ctx).Error("worker pool configuration is not setup")
			return
		}

		wpm, err := workerpool.NewManager(ctx, cfg, options...)
		if err != nil {
			s.Log(ctx).WithError(err).Fatal("error initiating worker pool manager")
		}
		s.workMan = wpm
	}
}
