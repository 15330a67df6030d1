package coflow

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webriots/coro"

	"github.com/webriots/coflow/cancel"
	"github.com/webriots/coflow/faults"
)

// Task is the running side of a spawned operation. It is passed to the
// operator and is only valid inside it.
type Task struct {
	noCopy  noCopy
	id      string
	name    string
	sched   *Scheduler
	ctrl    *cancel.Controller
	ctx     context.Context
	resume  func(struct{}) (struct{}, bool)
	suspend func() struct{}
}

// SpawnOption configures a single Spawn.
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	name string
}

// Named sets the task name used in logs, traces and TaskError.
func Named(name string) SpawnOption {
	return func(o *spawnOptions) { o.name = name }
}

// Spawn starts op as a new task on s and returns its handle, already
// Running. op runs on the scheduler loop, not on the caller's
// goroutine. A nil ctrl gets a fresh controller, carrying the
// scheduler's default timeout if one is configured.
//
// op's outcome decides the terminal state: a nil error completes the
// handle, an error matching faults.ErrCanceled cancels it, any other
// error or a panic faults it. If ctrl is already signaled when the
// task first runs, op is skipped and the handle is Canceled.
func Spawn[T any](s *Scheduler, ctrl *cancel.Controller, op func(*Task) (T, error), opts ...SpawnOption) *Handle[T] {
	if ctrl == nil {
		ctrl = s.controller()
	}

	id := uuid.NewString()
	o := spawnOptions{name: "task-" + id[:8]}
	for _, opt := range opts {
		opt(&o)
	}

	h := newHandle[T](id, o.name, ctrl)
	t := newTask(s, id, o.name, ctrl, func(t *Task) {
		start := time.Now()
		settle(t, h, op)
		state, _, err := h.outcome()
		s.settled(t, state, err, time.Since(start))
	})

	h.start()
	s.spawned(t)
	s.ready(t)
	return h
}

// SpawnTimeout spawns op under a fresh controller that signals after d.
func SpawnTimeout[T any](s *Scheduler, d time.Duration, op func(*Task) (T, error), opts ...SpawnOption) *Handle[T] {
	return Spawn(s, WithTimeout(d), op, opts...)
}

// WithTimeout returns a controller whose deadline is now plus d.
func WithTimeout(d time.Duration) *cancel.Controller {
	return cancel.New(cancel.WithTimeout(d))
}

// Run spawns op on a fresh scheduler under a controller bound to ctx
// and blocks until it settles.
func Run[T any](ctx context.Context, op func(*Task) (T, error), opts ...Option) (T, error) {
	s := New(append([]Option{WithContext(ctx)}, opts...)...)
	h := Spawn(s, cancel.FromContext(ctx), op, Named("run"))
	return h.Wait(Blocking(ctx))
}

func settle[T any](t *Task, h *Handle[T], op func(*Task) (T, error)) {
	if err := t.Err(); err != nil {
		t.Log("CANCELED BEFORE START")
		h.cancel(err)
		return
	}

	val, err := call(t, op)
	switch {
	case err == nil:
		h.complete(val)
	case faults.IsCanceled(err):
		h.cancel(err)
	default:
		h.fault(err)
	}
}

func call[T any](t *Task, op func(*Task) (T, error)) (val T, err error) {
	defer func() {
		if v := recover(); v != nil {
			var zero T
			val, err = zero, faults.NewPanicError(v)
		}
	}()
	return op(t)
}

func newTask(s *Scheduler, id, name string, ctrl *cancel.Controller, body func(*Task)) *Task {
	t := &Task{
		id:    id,
		name:  name,
		sched: s,
		ctrl:  ctrl,
	}

	base := withTaskContext(s.ctx, t)
	t.ctx = base

	t.resume, _ = coro.New(
		func(_ func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
			ctx, release := ctrl.Context(base)
			defer release()
			t.ctx = ctx

			region := trace.StartRegion(t.ctx, taskTraceRegionType)
			defer region.End()

			t.suspend = suspend
			body(t)
			return
		},
	)
	return t
}

func (t *Task) step() {
	t.Log("RUN")
	if _, ok := t.resume(struct{}{}); !ok {
		t.Log("DONE")
	}
}

// ID returns the task identifier, shared with its handle.
func (t *Task) ID() string { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Scheduler returns the scheduler running the task.
func (t *Task) Scheduler() *Scheduler { return t.sched }

// Controller returns the controller the task observes.
func (t *Task) Controller() *cancel.Controller { return t.ctrl }

// Child returns a new controller whose parent is the task's
// controller, for spawning subtasks that stop with this one.
func (t *Task) Child(opts ...cancel.Option) *cancel.Controller {
	return cancel.New(append([]cancel.Option{cancel.WithParent(t.ctrl)}, opts...)...)
}

// Canceled reports whether the task's controller has signaled.
func (t *Task) Canceled() bool { return t.ctrl.IsSignaled() }

// Err returns nil while the task may keep going, and the controller's
// cancellation error once it has signaled.
func (t *Task) Err() error { return t.ctrl.Err() }

// Context returns a context carrying the task that is canceled when
// the task's controller signals.
func (t *Task) Context() context.Context { return t.ctx }

// Yield lets every other ready task run once before this one resumes.
// It returns the cancellation error if the controller has signaled.
func (t *Task) Yield() error {
	if err := t.Err(); err != nil {
		return err
	}
	t.Log("YIELD")
	t.sched.ready(t)
	t.suspend()
	return t.Err()
}

// Sleep suspends the task for d. It returns early with the
// cancellation error when the controller signals.
func (t *Task) Sleep(d time.Duration) error {
	t.Logf("SLEEP %v", d)
	return t.park(func(wake func()) func() {
		timer := time.AfterFunc(d, wake)
		return func() { timer.Stop() }
	})
}

// park suspends the task until wake is called or the controller
// signals. Whichever comes first re-queues the task; later calls are
// ignored.
func (t *Task) park(arm func(wake func()) func()) error {
	if err := t.Err(); err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		armed = true
	)
	wake := func() {
		mu.Lock()
		fire := armed
		armed = false
		mu.Unlock()
		if fire {
			t.sched.ready(t)
		}
	}

	disarm := arm(wake)
	reg := t.ctrl.OnSignal(wake)

	t.Log("PARK")
	t.suspend()

	mu.Lock()
	armed = false
	mu.Unlock()
	reg.Remove()
	disarm()

	return t.Err()
}

// Log writes msg to the execution trace, prefixed with the task name
// and ID, when tracing is enabled.
func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		t.label(&sb)
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

// Logf is Log with formatting.
func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		t.label(&sb)
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func (t *Task) label(sb *strings.Builder) {
	sb.WriteString(t.name)
	sb.WriteRune('|')
	sb.WriteString(t.id)
	sb.WriteRune(' ')
}
