package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"go.viam.com/meshproc/logging"
)

// ErrRunnerClosed is returned when submitting to a closed TaskRunner.
var ErrRunnerClosed = errors.New("task runner is closed")

// Task is a handle on work running in the background.
type Task struct {
	ID   uuid.UUID
	Name string

	done chan struct{}
	err  error
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done. Giving up on a task does not stop it; the
// work it started runs to completion.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskRunner runs long operations on background goroutines and can be shut down with a bounded
// wait. Each Service owns its own runner.
type TaskRunner struct {
	mu         sync.Mutex
	cancelCtx  context.Context
	cancelFunc func()
	active     sync.WaitGroup
	running    map[uuid.UUID]*Task
	logger     logging.Logger
}

// NewTaskRunner returns a runner ready to accept work.
func NewTaskRunner(logger logging.Logger) *TaskRunner {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &TaskRunner{
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		running:    map[uuid.UUID]*Task{},
		logger:     logger,
	}
}

// Submit starts fn in the background. The context handed to fn is cancelled by Close. A panic in
// fn becomes the task's error.
func (r *TaskRunner) Submit(name string, fn func(ctx context.Context) error) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelCtx.Err() != nil {
		return nil, ErrRunnerClosed
	}

	t := &Task{ID: uuid.New(), Name: name, done: make(chan struct{})}
	r.running[t.ID] = t
	r.active.Add(1)
	finish := func(err error) {
		t.err = err
		r.mu.Lock()
		delete(r.running, t.ID)
		r.mu.Unlock()
		close(t.done)
		r.active.Done()
	}
	r.logger.Debugw("task started", "task", name, "id", t.ID)
	goutils.PanicCapturingGo(func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("task %s panicked: %v", name, p)
			}
			finish(err)
		}()
		err = fn(r.cancelCtx)
	})
	return t, nil
}

// Running returns the names of tasks that have not finished.
func (r *TaskRunner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(lo.Values(r.running), func(t *Task, _ int) string { return t.Name })
}

// Close cancels the runner's context and waits up to timeout for running tasks. Tasks that
// ignore cancellation and outlive the timeout are reported in the returned error.
func (r *TaskRunner) Close(timeout time.Duration) error {
	r.mu.Lock()
	r.cancelFunc()
	r.mu.Unlock()

	finished := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		r.active.Wait()
		close(finished)
	})
	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return errors.Errorf("tasks still running after %v: %v", timeout, r.Running())
	}
}
