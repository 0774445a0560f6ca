// Package job runs background work and lets callers wait on its result.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Info is a point-in-time view of a job.
type Info struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Future is the handle to one background computation.
type Future[T any] struct {
	id        string
	kind      string
	createdAt time.Time
	done      chan struct{}

	mu         sync.Mutex
	status     Status
	result     T
	err        error
	finishedAt time.Time
}

// Go starts fn in a new goroutine. Callbacks run after the result is
// recorded and before Done is closed.
func Go[T any](ctx context.Context, kind string, fn func(context.Context) (T, error), callbacks ...func(T, error)) *Future[T] {
	f := &Future[T]{
		id:        uuid.New().String(),
		kind:      kind,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
		status:    StatusQueued,
	}

	go func() {
		defer close(f.done)
		log := zap.L().With(zap.String("component", "job"), zap.String("job_id", f.id), zap.String("kind", kind))

		f.setStatus(StatusRunning)
		res, err := run(ctx, fn)

		f.mu.Lock()
		f.result, f.err = res, err
		f.finishedAt = time.Now().UTC()
		if err != nil {
			f.status = StatusFailed
		} else {
			f.status = StatusComplete
		}
		f.mu.Unlock()

		if err != nil {
			log.Error("job failed", zap.Error(err))
		} else {
			log.Debug("job complete", zap.Duration("elapsed", f.finishedAt.Sub(f.createdAt)))
		}
		for _, cb := range callbacks {
			cb(res, err)
		}
	}()
	return f
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("job: panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (f *Future[T]) setStatus(s Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

// ID returns the job identifier.
func (f *Future[T]) ID() string { return f.id }

// Done is closed once the job has finished and its callbacks have run.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Status returns the current state.
func (f *Future[T]) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Wait blocks until the job finishes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, eris.Wrap(ctx.Err(), "job: wait")
	}
}

// Info returns a snapshot of the job.
func (f *Future[T]) Info() Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := Info{
		ID:        f.id,
		Kind:      f.kind,
		Status:    f.status,
		CreatedAt: f.createdAt,
	}
	switch f.status {
	case StatusComplete:
		info.Result = f.result
	case StatusFailed:
		info.Error = f.err.Error()
	}
	if !f.finishedAt.IsZero() {
		t := f.finishedAt
		info.FinishedAt = &t
	}
	return info
}
