package coflow

import (
	"context"
	"runtime/trace"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"

	"github.com/webriots/coflow/cancel"
)

const (
	taskTraceTaskType   = "coflow-loop"
	taskTraceRegionType = "coflow-task"
	taskTraceCategory   = "coflow"
)

// Scheduler runs tasks cooperatively. Ready tasks wait in a FIFO run
// queue; a single loop goroutine resumes them one at a time, so the
// bodies of tasks on one Scheduler never run in parallel. The loop
// starts when a task becomes ready and exits once the queue drains.
type Scheduler struct {
	name    string
	timeout time.Duration
	log     zerolog.Logger
	ctx     context.Context

	mu      sync.Mutex
	runq    deque.Deque[*Task]
	running bool
	live    int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for task lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithConfig applies cfg: the scheduler name, the default task
// timeout and a logger built from cfg.Log.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		cfg.ApplyDefaults()
		s.name = cfg.Name
		s.timeout = cfg.TaskTimeout
		s.log = NewLogger(cfg.Log, cfg.Name)
	}
}

// WithContext sets the context task contexts derive from. Values on
// ctx are visible to every task; its cancellation is not propagated.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = context.WithoutCancel(ctx) }
}

// New returns an idle Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		name: DefaultName,
		log:  zerolog.Nop(),
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Live returns the number of spawned tasks that have not settled.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// controller returns the controller for a Spawn that supplied none.
func (s *Scheduler) controller() *cancel.Controller {
	if s.timeout > 0 {
		return cancel.New(cancel.WithTimeout(s.timeout))
	}
	return cancel.New()
}

// ready queues t to be resumed and starts the loop if it is idle.
func (s *Scheduler) ready(t *Task) {
	s.mu.Lock()
	s.runq.PushBack(t)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop()
}

func (s *Scheduler) loop() {
	ctx, tracer := trace.NewTask(s.ctx, taskTraceTaskType)
	defer tracer.End()

	trace.Log(ctx, taskTraceCategory, "LOOP")

	for {
		s.mu.Lock()
		if s.runq.Len() == 0 {
			s.running = false
			s.mu.Unlock()
			break
		}
		t := s.runq.PopFront()
		s.mu.Unlock()

		t.step()
	}

	trace.Log(ctx, taskTraceCategory, "LOOP DONE")
}

func (s *Scheduler) spawned(t *Task) {
	s.mu.Lock()
	s.live++
	s.mu.Unlock()

	s.log.Debug().
		Str(FieldTaskID, t.id).
		Str(FieldTask, t.name).
		Msg("task spawned")
}

func (s *Scheduler) settled(t *Task, state State, err error, elapsed time.Duration) {
	var ev *zerolog.Event
	if state == Faulted {
		ev = s.log.Warn().Err(err)
	} else {
		ev = s.log.Debug()
	}
	ev.Str(FieldTaskID, t.id).
		Str(FieldTask, t.name).
		Stringer(FieldState, state).
		Int64(FieldDuration, elapsed.Milliseconds()).
		Msg("task settled")

	s.mu.Lock()
	s.live--
	s.mu.Unlock()
}
