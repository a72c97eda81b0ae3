// Package depot ties a connection pool, an entity registry and a unit of
// work factory into a single store that applications configure once and
// pass around through contexts.
package depot

import (
	"context"
	"errors"
	"sync"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/config"
	"github.com/namwodah/depot/pool"
	"github.com/namwodah/depot/registry"
	"github.com/namwodah/depot/session"
	"github.com/namwodah/depot/workerpool"
)

type contextKey string

func (c contextKey) String() string {
	return "depot/" + string(c)
}

const ctxKeyStore = contextKey("storeKey")

// Store holds together all persistence components.
// An instance of this type is scoped to stay for the lifetime of the
// application. It is pushed and pulled from contexts to make it easy to
// pass around.
type Store struct {
	name          string
	logger        *util.LogEntry
	configuration any

	dialer   pool.Dialer
	poolOpts []pool.Option

	dbPool  pool.Pool
	reg     *registry.Registry
	factory *session.Factory
	workMan workerpool.Manager

	cleanup   func(ctx context.Context)
	openOnce  sync.Once
	stopMutex sync.Mutex
}

type Option func(ctx context.Context, s *Store)

// New creates a new instance of Store with the name and supplied options.
// The returned context carries the store, its configuration and its logger.
func New(ctx context.Context, name string, opts ...Option) (context.Context, *Store) {
	defaultLogger := util.Log(ctx)
	ctx = util.ContextWithLogger(ctx, defaultLogger)

	defaultCfg, _ := config.FromEnv[config.Default]()

	s := &Store{
		name:          name,
		logger:        defaultLogger,
		configuration: &defaultCfg,
		reg:           registry.New(),
	}

	opts = append(opts, WithLogger()) // Ensure logger is initialized early

	s.Init(ctx, opts...)

	ctx = ToContext(ctx, s)
	ctx = config.ToContext(ctx, s.configuration)
	ctx = util.ContextWithLogger(ctx, s.logger)
	return ctx, s
}

// ToContext pushes a store instance into the supplied context for easier propagation.
func ToContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKeyStore, s)
}

// FromContext obtains a store instance being propagated through the context.
func FromContext(ctx context.Context) *Store {
	s, ok := ctx.Value(ctxKeyStore).(*Store)
	if !ok {
		return nil
	}
	return s
}

// Init evaluates the options provided as arguments and supplies them to the store object.
func (s *Store) Init(ctx context.Context, opts ...Option) {
	for _, opt := range opts {
		opt(ctx, s)
	}
}

// Name gets the name of the store. Its the second argument used when New is called.
func (s *Store) Name() string {
	return s.name
}

// Config returns the configuration object supplied at setup.
func (s *Store) Config() any {
	return s.configuration
}

// Registry returns the entity registry definitions are declared against.
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// Pool returns the connection pool. It is nil until Open succeeds.
func (s *Store) Pool() pool.Pool {
	return s.dbPool
}

// WorkManager returns the worker pool manager if one was configured.
func (s *Store) WorkManager() workerpool.Manager {
	return s.workMan
}

// AddCleanupMethod adds user defined functions to be run just before
// completely stopping the store.
func (s *Store) AddCleanupMethod(f func(ctx context.Context)) {
	s.stopMutex.Lock()
	defer s.stopMutex.Unlock()

	if s.cleanup == nil {
		s.cleanup = f
		return
	}

	old := s.cleanup
	s.cleanup = func(ctx context.Context) { f(ctx); old(ctx) }
}

// Open establishes the connection pool and the unit of work factory.
// When migration is enabled in configuration the registered schema is
// materialized before Open returns.
func (s *Store) Open(ctx context.Context) error {
	var err error
	s.openOnce.Do(func() {
		err = s.open(ctx)
	})
	return err
}

func (s *Store) open(ctx context.Context) error {
	cfg, _ := s.Config().(config.ConfigurationDatabase)

	if s.dialer == nil {
		if cfg == nil || cfg.GetDatabaseURL() == "" {
			return errors.New("depot: no database url configured and no dialer supplied")
		}

		dialer, err := pool.NewPgxDialer(cfg.GetDatabaseURL())
		if err != nil {
			return err
		}
		s.dialer = dialer
	}

	poolOpts := []pool.Option{pool.WithDialer(s.dialer)}
	if cfg != nil {
		poolOpts = append(poolOpts, pool.WithConfig(cfg))
	}
	if traceCfg, ok := s.Config().(config.ConfigurationDatabaseTracing); ok {
		poolOpts = append(poolOpts, pool.WithStatementLogger(pool.NewStatementLogger(ctx, traceCfg)))
	}
	poolOpts = append(poolOpts, s.poolOpts...)

	dbPool, err := pool.NewPool(ctx, poolOpts...)
	if err != nil {
		return err
	}
	s.dbPool = dbPool

	var factoryOpts []session.FactoryOption
	if s.workMan != nil {
		factoryOpts = append(factoryOpts, session.WithWorkerManager(s.workMan))
	}
	s.factory = session.NewFactory(ctx, dbPool, s.reg, factoryOpts...)

	if cfg != nil && cfg.DoDatabaseMigrate() {
		return s.Migrate(ctx)
	}
	return nil
}

// Migrate materializes the registered schema on the connected database.
// Tables and indexes are created additively so repeat runs are safe. When
// reconciliation is enabled in configuration, columns declared since the
// tables were first created are added as well.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dbPool == nil {
		return errors.New("depot: store is not open")
	}

	conn, err := s.dbPool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.dbPool.Release(ctx, conn)

	if err = s.reg.MaterializeSchema(ctx, conn); err != nil {
		return err
	}

	if cfg, ok := s.Config().(config.ConfigurationDatabase); ok && cfg.DoDatabaseReconcile() {
		return s.reg.ReconcileSchema(ctx, conn)
	}
	return nil
}

// Session begins a new unit of work bound to a pooled connection.
// The caller owns its lifecycle and must finish it with Commit or Rollback.
func (s *Store) Session(ctx context.Context) (*session.UnitOfWork, error) {
	if s.factory == nil {
		return nil, errors.New("depot: store is not open")
	}
	return s.factory.Begin(ctx)
}

// Run executes fn inside a unit of work, committing on success and rolling
// back on error or panic.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, uow *session.UnitOfWork) error) error {
	if s.factory == nil {
		return errors.New("depot: store is not open")
	}
	return s.factory.Run(ctx, fn)
}

// Submit offloads fn to the worker pool as a complete unit of work so the
// caller is never blocked on database writes.
func (s *Store) Submit(
	ctx context.Context,
	fn func(ctx context.Context, uow *session.UnitOfWork) error,
) (workerpool.JobResultPipe[bool], error) {
	if s.factory == nil {
		return nil, errors.New("depot: store is not open")
	}
	return s.factory.Submit(ctx, fn)
}

// SubmitJob used to submit jobs to the store's worker pool for processing.
// Once a job is submitted the end user does not need to do any further tasks.
// One can ideally also wait for the results of their processing for their
// specific job by reading the job's result pipe.
func SubmitJob[T any](ctx context.Context, s *Store, job workerpool.Job[T]) error {
	return workerpool.SubmitJob(ctx, s.workMan, job)
}

// Close gracefully releases all resources held by the store.
func (s *Store) Close(ctx context.Context) {
	s.stopMutex.Lock()
	defer s.stopMutex.Unlock()

	s.Log(ctx).Debug("store stopping")

	if s.cleanup != nil {
		s.cleanup(ctx)
	}

	if s.workMan != nil {
		if err := s.workMan.Shutdown(ctx); err != nil {
			s.Log(ctx).WithError(err).Warn("worker pool did not shut down cleanly")
		}
		s.workMan = nil
	}

	if s.dbPool != nil {
		s.dbPool.Close(ctx)
		s.dbPool = nil
	}
	s.factory = nil
}
