package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/xid"
)

var ErrResultChannelClosed = errors.New("worker job is already closed")

// jobResult is the internal implementation of JobResult.
type jobResult[T any] struct {
	item  T
	error error
}

func (j *jobResult[T]) IsError() bool {
	return j.error != nil
}

func (j *jobResult[T]) Error() error {
	return j.error
}

func (j *jobResult[T]) Item() T {
	return j.item
}

// JobImpl is the default Job implementation with a buffered result channel.
type JobImpl[T any] struct {
	id               string
	runs             int
	retries          int
	resultBufferSize int
	resultChan       chan JobResult[T]
	resultMu         sync.Mutex
	resultChanDone   bool
	processFunc      func(ctx context.Context, result JobResultPipe[T]) error
}

func NewJob[T any](process func(ctx context.Context, result JobResultPipe[T]) error) Job[T] {
	return NewJobWithBufferAndRetry(process, defaultJobResultBufferSize, defaultJobRetryCount)
}

func NewJobWithRetry[T any](process func(ctx context.Context, result JobResultPipe[T]) error, retries int) Job[T] {
	return NewJobWithBufferAndRetry(process, defaultJobResultBufferSize, retries)
}

func NewJobWithBufferAndRetry[T any](
	process func(ctx context.Context, result JobResultPipe[T]) error,
	resultBufferSize, retries int,
) Job[T] {
	return &JobImpl[T]{
		id:               xid.New().String(),
		retries:          retries,
		processFunc:      process,
		resultBufferSize: resultBufferSize,
		resultChan:       make(chan JobResult[T], resultBufferSize),
	}
}

func (ji *JobImpl[T]) ID() string {
	return ji.id
}

func (ji *JobImpl[T]) F() func(ctx context.Context, result JobResultPipe[T]) error {
	return ji.processFunc
}

func (ji *JobImpl[T]) CanRun() bool {
	return ji.Retries() > (ji.Runs() - 1)
}

func (ji *JobImpl[T]) Retries() int {
	return ji.retries
}

func (ji *JobImpl[T]) Runs() int {
	return ji.runs
}

func (ji *JobImpl[T]) IncreaseRuns() {
	ji.resultMu.Lock()
	defer ji.resultMu.Unlock()

	ji.runs++
}

func (ji *JobImpl[T]) ResultBufferSize() int {
	return ji.resultBufferSize
}

func (ji *JobImpl[T]) ResultChan() <-chan JobResult[T] {
	return ji.resultChan
}

func (ji *JobImpl[T]) ReadResult(ctx context.Context) (JobResult[T], bool) {
	return SafeChannelRead(ctx, ji.resultChan)
}

func (ji *JobImpl[T]) WriteError(ctx context.Context, val error) error {
	if ji.isClosed() {
		return ErrResultChannelClosed
	}
	return SafeChannelWrite(ctx, ji.resultChan, &jobResult[T]{error: val})
}

func (ji *JobImpl[T]) WriteResult(ctx context.Context, val T) error {
	if ji.isClosed() {
		return ErrResultChannelClosed
	}
	return SafeChannelWrite(ctx, ji.resultChan, &jobResult[T]{item: val})
}

func (ji *JobImpl[T]) Close() {
	ji.resultMu.Lock()
	defer ji.resultMu.Unlock()
	if !ji.resultChanDone {
		close(ji.resultChan)
		ji.resultChanDone = true
	}
}

func (ji *JobImpl[T]) isClosed() bool {
	ji.resultMu.Lock()
	defer ji.resultMu.Unlock()
	return ji.resultChanDone
}

// SafeChannelWrite writes a value to a channel, returning an error if the context is canceled.
func SafeChannelWrite[T any](ctx context.Context, ch chan<- JobResult[T], value JobResult[T]) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- value:
		return nil
	}
}

// SafeChannelRead reads a value from a channel without blocking past cancellation.
func SafeChannelRead[T any](ctx context.Context, ch <-chan JobResult[T]) (JobResult[T], bool) {
	select {
	case <-ctx.Done():
		return &jobResult[T]{error: ctx.Err()}, false
	case result, ok := <-ch:
		return result, ok
	}
}
