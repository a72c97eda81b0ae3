// Package workerpool provides the bounded worker pool that blocking
// persistence work is dispatched to. Database calls block on the
// network; running them inline on a cooperative scheduler thread stalls
// unrelated work, so callers submit them here instead.
package workerpool

import (
	"context"
)

const defaultJobResultBufferSize = 10
const defaultJobRetryCount = 0

// JobResult represents the result of a job execution, which can be either a value of type T or an error.
type JobResult[T any] interface {
	IsError() bool
	Error() error
	Item() T
}

// JobResultPipe is a channel-based pipeline for passing job results.
type JobResultPipe[T any] interface {
	ResultBufferSize() int
	ResultChan() <-chan JobResult[T]
	WriteError(ctx context.Context, val error) error
	WriteResult(ctx context.Context, val T) error
	ReadResult(ctx context.Context) (JobResult[T], bool)
	Close()
}

// Job represents a task that can be executed and produce results of type T.
type Job[T any] interface {
	JobResultPipe[T]
	F() func(ctx context.Context, result JobResultPipe[T]) error
	ID() string
	CanRun() bool
	Retries() int
	Runs() int
	IncreaseRuns()
}

type Manager interface {
	GetPool() (WorkerPool, error)
	Shutdown(ctx context.Context) error
}

// WorkerPool defines the common methods for worker pool operations.
type WorkerPool interface {
	Submit(ctx context.Context, task func()) error
	Shutdown()
}
