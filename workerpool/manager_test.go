package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namwodah/depot/config"
	"github.com/namwodah/depot/workerpool"
)

func testPoolConfig() *config.Default {
	return &config.Default{
		WorkerPoolCPUFactorForWorkerCount: 1,
		WorkerPoolCapacity:                10,
		WorkerPoolCount:                   1,
		WorkerPoolExpiryDuration:          "1s",
	}
}

func newTestManager(t *testing.T) workerpool.Manager {
	t.Helper()

	m, err := workerpool.NewManager(context.Background(), testPoolConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestSubmitJobDeliversResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newTestManager(t)

	job := workerpool.NewJob(func(ctx context.Context, result workerpool.JobResultPipe[string]) error {
		return result.WriteResult(ctx, "done")
	})
	require.NoError(t, workerpool.SubmitJob(ctx, m, job))

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, ok := job.ReadResult(readCtx)
	require.True(t, ok)
	require.False(t, res.IsError())
	require.Equal(t, "done", res.Item())
	require.Equal(t, 1, job.Runs())
}

func TestSubmitJobRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newTestManager(t)

	var attempts atomic.Int32
	job := workerpool.NewJobWithRetry(func(ctx context.Context, result workerpool.JobResultPipe[bool]) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return result.WriteResult(ctx, true)
	}, 2)
	require.NoError(t, workerpool.SubmitJob(ctx, m, job))

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, ok := job.ReadResult(readCtx)
	require.True(t, ok)
	require.False(t, res.IsError())
	require.Equal(t, 2, job.Runs())
}

func TestSubmitJobExhaustsRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newTestManager(t)

	boom := errors.New("permanent failure")
	job := workerpool.NewJobWithRetry(func(_ context.Context, _ workerpool.JobResultPipe[bool]) error {
		return boom
	}, 1)
	require.NoError(t, workerpool.SubmitJob(ctx, m, job))

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, ok := job.ReadResult(readCtx)
	require.True(t, ok)
	require.True(t, res.IsError())
	require.ErrorIs(t, res.Error(), boom)
	require.Equal(t, 2, job.Runs())
}

func TestJobWriteAfterClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	job := workerpool.NewJob(func(_ context.Context, _ workerpool.JobResultPipe[bool]) error {
		return nil
	})
	job.Close()

	require.ErrorIs(t, job.WriteResult(ctx, true), workerpool.ErrResultChannelClosed)
	require.ErrorIs(t, job.WriteError(ctx, errors.New("x")), workerpool.ErrResultChannelClosed)
	job.Close() // closing twice is safe
}

func TestSubmitJobWithNilManager(t *testing.T) {
	t.Parallel()

	job := workerpool.NewJob(func(_ context.Context, _ workerpool.JobResultPipe[bool]) error {
		return nil
	})
	err := workerpool.SubmitJob(context.Background(), nil, job)
	require.Error(t, err)
}

func TestManagerRunsConcurrentJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newTestManager(t)

	const jobs = 8
	var completed atomic.Int32

	pipes := make([]workerpool.Job[int], 0, jobs)
	for i := range jobs {
		job := workerpool.NewJob(func(ctx context.Context, result workerpool.JobResultPipe[int]) error {
			completed.Add(1)
			return result.WriteResult(ctx, i)
		})
		require.NoError(t, workerpool.SubmitJob(ctx, m, job))
		pipes = append(pipes, job)
	}

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, job := range pipes {
		_, ok := job.ReadResult(readCtx)
		require.True(t, ok)
	}
	require.Equal(t, int32(jobs), completed.Load())
}
