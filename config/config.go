package config

import (
	"context"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "depot/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	// DefaultSlowQueryThreshold is used when the configured threshold cannot be parsed.
	DefaultSlowQueryThreshold = 200 * time.Millisecond
)

// ToContext adds configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts configuration from the supplied context if any exists.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

// Default carries every knob the persistence stack reads at startup.
// Pool sizing defaults mirror the deployment this library was extracted
// from: 20 persistent connections with 30 of overflow, recycled hourly,
// probed before checkout.
type Default struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	DatabaseURL string `env:"DATABASE_URL" yaml:"database_url"`

	DatabasePoolSize       int           `envDefault:"20"   env:"DATABASE_POOL_SIZE"       yaml:"database_pool_size"`
	DatabaseMaxOverflow    int           `envDefault:"30"   env:"DATABASE_MAX_OVERFLOW"    yaml:"database_max_overflow"`
	DatabasePoolRecycle    time.Duration `envDefault:"1h"   env:"DATABASE_POOL_RECYCLE"    yaml:"database_pool_recycle"`
	DatabasePoolPrePing    bool          `envDefault:"true" env:"DATABASE_POOL_PRE_PING"   yaml:"database_pool_pre_ping"`
	DatabaseAcquireTimeout time.Duration `envDefault:"30s"  env:"DATABASE_ACQUIRE_TIMEOUT" yaml:"database_acquire_timeout"`

	DatabaseMigrate   bool `envDefault:"false" env:"DATABASE_MIGRATE"   yaml:"database_migrate"`
	DatabaseReconcile bool `envDefault:"false" env:"DATABASE_RECONCILE" yaml:"database_reconcile"`

	DatabaseTraceQueries          bool   `envDefault:"false" env:"DATABASE_LOG_QUERIES"          yaml:"database_log_queries"`
	DatabaseSlowQueryLogThreshold string `envDefault:"200ms" env:"DATABASE_SLOW_QUERY_THRESHOLD" yaml:"database_slow_query_threshold"`

	// Worker pool settings for blocking persistence work.
	WorkerPoolCPUFactorForWorkerCount int    `envDefault:"10"  env:"WORKER_POOL_CPU_FACTOR_FOR_WORKER_COUNT" yaml:"worker_pool_cpu_factor_for_worker_count"`
	WorkerPoolCapacity                int    `envDefault:"100" env:"WORKER_POOL_CAPACITY"                    yaml:"worker_pool_capacity"`
	WorkerPoolCount                   int    `envDefault:"1"   env:"WORKER_POOL_COUNT"                       yaml:"worker_pool_count"`
	WorkerPoolExpiryDuration          string `envDefault:"1s"  env:"WORKER_POOL_EXPIRY_DURATION"             yaml:"worker_pool_expiry_duration"`
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingTimeFormat() string
	LoggingColored() bool
}

var _ ConfigurationLogLevel = new(Default)

func (c *Default) LoggingLevel() string {
	return c.LogLevel
}

func (c *Default) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *Default) LoggingColored() bool {
	return c.LogColored
}

type ConfigurationDatabase interface {
	GetDatabaseURL() string
	GetDatabasePoolSize() int
	GetDatabaseMaxOverflow() int
	GetDatabasePoolRecycle() time.Duration
	GetDatabaseAcquireTimeout() time.Duration
	CanDatabasePrePing() bool
	DoDatabaseMigrate() bool
	DoDatabaseReconcile() bool
}

var _ ConfigurationDatabase = new(Default)

func (c *Default) GetDatabaseURL() string {
	return c.DatabaseURL
}

func (c *Default) GetDatabasePoolSize() int {
	return c.DatabasePoolSize
}

func (c *Default) GetDatabaseMaxOverflow() int {
	return c.DatabaseMaxOverflow
}

func (c *Default) GetDatabasePoolRecycle() time.Duration {
	return c.DatabasePoolRecycle
}

func (c *Default) GetDatabaseAcquireTimeout() time.Duration {
	return c.DatabaseAcquireTimeout
}

func (c *Default) CanDatabasePrePing() bool {
	return c.DatabasePoolPrePing
}

func (c *Default) DoDatabaseMigrate() bool {
	return c.DatabaseMigrate
}

func (c *Default) DoDatabaseReconcile() bool {
	return c.DatabaseReconcile
}

type ConfigurationDatabaseTracing interface {
	CanDatabaseTraceQueries() bool
	GetDatabaseSlowQueryLogThreshold() time.Duration
}

var _ ConfigurationDatabaseTracing = new(Default)

func (c *Default) CanDatabaseTraceQueries() bool {
	return c.DatabaseTraceQueries
}

func (c *Default) GetDatabaseSlowQueryLogThreshold() time.Duration {
	threshold, err := time.ParseDuration(c.DatabaseSlowQueryLogThreshold)
	if err != nil {
		return DefaultSlowQueryThreshold
	}
	return threshold
}

type ConfigurationWorkerPool interface {
	GetCPUFactor() int
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(Default)

func (c *Default) GetCPUFactor() int {
	if c.WorkerPoolCPUFactorForWorkerCount <= 0 {
		return runtime.NumCPU()
	}
	return c.WorkerPoolCPUFactorForWorkerCount
}

func (c *Default) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *Default) GetCount() int {
	return c.WorkerPoolCount
}

func (c *Default) GetExpiryDuration() time.Duration {
	expiry, err := time.ParseDuration(c.WorkerPoolExpiryDuration)
	if err != nil {
		return time.Second
	}
	return expiry
}
