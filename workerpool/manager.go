package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/namwodah/depot/config"
)

const (
	jobRetryBackoffBaseDelay    = 100 * time.Millisecond
	jobRetryBackoffMaxDelay     = 30 * time.Second
	jobRetryBackoffMaxRunNumber = 10
)

type manager struct {
	pool WorkerPool
}

// NewManager sets up an ants-backed worker pool sized by configuration.
func NewManager(ctx context.Context, cfg config.ConfigurationWorkerPool, opts ...Option) (Manager, error) {
	log := util.Log(ctx)

	poolOpts := defaultWorkerPoolOpts(cfg, log)
	for _, opt := range opts {
		opt(poolOpts)
	}

	pool, err := setupWorkerPool(ctx, poolOpts)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &manager{pool: pool}, nil
}

func (m *manager) GetPool() (WorkerPool, error) {
	if m.pool == nil {
		return nil, errors.New("worker pool is not configured")
	}
	return m.pool, nil
}

func (m *manager) Shutdown(_ context.Context) error {
	pool, err := m.GetPool()
	if err != nil {
		return err
	}
	pool.Shutdown()
	return nil
}

// SubmitJob hands a job to the worker pool for processing. Callers wait
// for results, if any, by reading the job's result channel.
func SubmitJob[T any](ctx context.Context, m Manager, job Job[T]) error {
	if m == nil {
		return errors.New("worker pool manager is nil")
	}

	pool, err := m.GetPool()
	if err != nil {
		return err
	}

	task := createJobExecutionTask(ctx, m, job)
	return pool.Submit(ctx, task)
}

// createJobExecutionTask wraps job execution with error handling and retry logic.
func createJobExecutionTask[T any](ctx context.Context, m Manager, job Job[T]) func() {
	return func() {
		log := util.Log(ctx).
			WithField("job", job.ID()).
			WithField("run", job.Runs())

		if job.F() == nil {
			log.Error("job function is nil")
			_ = job.WriteError(ctx, errors.New("job function is nil"))
			job.Close()
			return
		}

		job.IncreaseRuns()
		executionErr := job.F()(ctx, job)

		if shouldCloseJob(executionErr) {
			job.Close()
			return
		}

		log = log.WithError(executionErr).WithField("can retry", job.CanRun())
		if !job.CanRun() {
			log.Error("job failed; retries exhausted")
			_ = job.WriteError(ctx, executionErr)
			job.Close()
			return
		}

		log.Warn("job failed, attempting to retry it")

		delay := jobRetryBackoffDelay(job.Runs())
		scheduleRetryResubmission(ctx, m, job, delay, log, executionErr)
	}
}

func shouldCloseJob(executionErr error) bool {
	return executionErr == nil || errors.Is(executionErr, context.Canceled) ||
		errors.Is(executionErr, ErrResultChannelClosed)
}

func jobRetryBackoffDelay(run int) time.Duration {
	if run < 1 {
		run = 1
	}
	if run > jobRetryBackoffMaxRunNumber {
		run = jobRetryBackoffMaxRunNumber
	}

	delay := jobRetryBackoffBaseDelay * time.Duration(1<<(run-1))
	if delay > jobRetryBackoffMaxDelay {
		return jobRetryBackoffMaxDelay
	}
	return delay
}

func scheduleRetryResubmission[T any](
	ctx context.Context,
	m Manager,
	job Job[T],
	delay time.Duration,
	log *util.LogEntry,
	executionErr error,
) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			job.Close()
			return
		case <-timer.C:
		}

		resubmitErr := SubmitJob(ctx, m, job)
		if resubmitErr == nil {
			return
		}

		log.WithError(resubmitErr).Error("failed to resubmit job")
		_ = job.WriteError(ctx, fmt.Errorf("failed to resubmit job: %w", executionErr))
		job.Close()
	}()
}
