package coflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webriots/coflow/cancel"
	"github.com/webriots/coflow/faults"
)

func testWaiter(t *testing.T) Waiter {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return Blocking(ctx)
}

func sleepThen[T any](d time.Duration, val T, err error) func(*Task) (T, error) {
	return func(t *Task) (T, error) {
		if serr := t.Sleep(d); serr != nil {
			var zero T
			return zero, serr
		}
		return val, err
	}
}

func TestSpawnCompletes(t *testing.T) {
	r := require.New(t)

	s := New()
	h := Spawn(s, nil, func(*Task) (string, error) { return "done", nil }, Named("hello"))

	val, err := h.Wait(testWaiter(t))
	r.NoError(err)
	r.Equal("done", val)
	r.Equal(Completed, h.State())
	r.Equal("hello", h.Name())
	r.NotEmpty(h.ID())

	got, ok := h.Value()
	r.True(ok)
	r.Equal("done", got)
	r.NoError(h.Err())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done must be closed once settled")
	}
}

func TestSpawnReturnsRunningAndCancelStops(t *testing.T) {
	r := require.New(t)

	s := New()
	h := Spawn(s, nil, sleepThen(time.Hour, 1, nil))
	r.Equal(Running, h.State())

	h.Cancel()
	_, err := h.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal(Canceled, h.State())

	_, ok := h.Value()
	r.False(ok)
	r.ErrorIs(h.Err(), faults.ErrCanceled)
}

func TestWhenAllAggregatesFaults(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	s := New()
	fast := Spawn(s, nil, sleepThen(10*time.Millisecond, 5, nil), Named("fast"))
	slow := Spawn(s, nil, sleepThen(30*time.Millisecond, 0, boom), Named("slow"))

	results, err := WhenAll(testWaiter(t), fast, slow)
	r.Error(err)

	var agg *faults.AggregateError
	r.ErrorAs(err, &agg)
	r.Len(agg.Errors, 1)
	r.Empty(agg.Canceled)
	r.ErrorIs(err, faults.ErrAggregate)
	r.ErrorIs(err, boom)
	r.NotErrorIs(err, faults.ErrCanceled)

	var te *TaskError
	r.ErrorAs(agg.Errors[0], &te)
	r.Equal(1, te.Index)
	r.Equal("slow", te.Name)
	r.Equal(Faulted, te.State)
	r.Equal("boom", CauseOf(agg.Errors[0]).Error())

	r.Equal(5, results[0])
	r.Equal(Completed, fast.State())
	r.Equal(Faulted, slow.State())
}

func TestWhenAllReportsEveryFaultInHandleOrder(t *testing.T) {
	r := require.New(t)

	s := New()
	handles := []*Handle[int]{
		Spawn(s, nil, sleepThen(40*time.Millisecond, 0, errors.New("last")), Named("h0")),
		Spawn(s, nil, sleepThen(20*time.Millisecond, 1, nil), Named("h1")),
		Spawn(s, nil, sleepThen(0, 0, errors.New("first")), Named("h2")),
	}

	results, err := WhenAll(testWaiter(t), handles...)
	var agg *faults.AggregateError
	r.ErrorAs(err, &agg)
	r.Len(agg.Errors, 2)

	var indices []int
	var causes []string
	for _, e := range agg.Errors {
		var te *TaskError
		r.ErrorAs(e, &te)
		indices = append(indices, te.Index)
		causes = append(causes, CauseOf(e).Error())
	}
	r.Equal([]int{0, 2}, indices)
	r.Equal([]string{"last", "first"}, causes)
	r.Equal(1, results[1])
	r.Greater(handles[0].settledAt(), handles[2].settledAt())
}

func TestWhenAllValuesInHandleOrder(t *testing.T) {
	r := require.New(t)

	s := New()
	handles := []*Handle[int]{
		Spawn(s, nil, sleepThen(30*time.Millisecond, 1, nil)),
		Spawn(s, nil, sleepThen(10*time.Millisecond, 2, nil)),
		Spawn(s, nil, sleepThen(20*time.Millisecond, 3, nil)),
	}

	results, err := WhenAll(testWaiter(t), handles...)
	r.NoError(err)
	r.Equal([]int{1, 2, 3}, results)

	none, err := WhenAll[int](testWaiter(t))
	r.NoError(err)
	r.Empty(none)
}

func TestWhenAllCanceledOnly(t *testing.T) {
	r := require.New(t)

	s := New()
	ok := Spawn(s, nil, sleepThen(0, 1, nil))
	stopped := Spawn(s, nil, sleepThen(time.Hour, 2, nil), Named("stopped"))
	stopped.Cancel()

	_, err := WhenAll(testWaiter(t), ok, stopped)
	r.Error(err)

	var agg *faults.AggregateError
	r.ErrorAs(err, &agg)
	r.False(agg.Faulted())
	r.Len(agg.Canceled, 1)
	r.ErrorIs(err, faults.ErrCanceled)
}

func TestWhenAnyLeavesLosersRunning(t *testing.T) {
	r := require.New(t)

	s := New()
	slow := Spawn(s, nil, sleepThen(150*time.Millisecond, "slow", nil), Named("slow"))
	fast := Spawn(s, nil, sleepThen(10*time.Millisecond, "fast", nil), Named("fast"))

	first, rest, err := WhenAny(testWaiter(t), slow, fast)
	r.NoError(err)
	r.Same(fast, first)
	r.Equal([]*Handle[string]{slow}, rest)
	r.Equal(Running, slow.State())

	val, err := slow.Wait(testWaiter(t))
	r.NoError(err)
	r.Equal("slow", val)

	_, _, err = WhenAny[int](testWaiter(t))
	r.ErrorIs(err, faults.ErrInvalidArgument)
}

func TestWhenAnyReturnsFirstToSettle(t *testing.T) {
	r := require.New(t)

	s := New()
	root := Spawn(s, nil, func(t *Task) (string, error) {
		b := Spawn(t.Scheduler(), nil, func(*Task) (string, error) { return "b", nil })
		a := Spawn(t.Scheduler(), nil, func(*Task) (string, error) { return "a", nil })
		if err := t.Yield(); err != nil {
			return "", err
		}
		first, rest, err := WhenAny(t, a, b)
		if err != nil {
			return "", err
		}
		if len(rest) != 1 || rest[0] != a {
			return "", errors.New("rest must hold the other handle")
		}
		v, _ := first.Value()
		return v, nil
	})

	val, err := root.Wait(testWaiter(t))
	r.NoError(err)
	r.Equal("b", val)
}

// flipSettler reports Running on its first State call and Completed on
// every later one. It never calls subscribers, so only a re-check of
// the ready condition can wake the waiter.
type flipSettler struct {
	mu    sync.Mutex
	calls int
}

func (f *flipSettler) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return Running
	}
	return Completed
}

func (f *flipSettler) settledAt() uint64 {
	if f.State().Terminal() {
		return 1
	}
	return 0
}

func (f *flipSettler) subscribe(func()) (func(), bool) { return func() {}, true }

func TestAwaitSeesSettleBetweenCheckAndSubscribe(t *testing.T) {
	r := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := &flipSettler{}
	start := time.Now()
	err := await(Blocking(ctx), []settler{h}, func() bool { return h.State().Terminal() })
	r.NoError(err)
	r.Less(time.Since(start), time.Second)
}

func TestWhenAnyAlreadySettled(t *testing.T) {
	r := require.New(t)

	s := New()
	done := Spawn(s, nil, func(*Task) (int, error) { return 7, nil })
	_, err := done.Wait(testWaiter(t))
	r.NoError(err)

	pending := Spawn(s, nil, sleepThen(time.Hour, 0, nil))
	defer pending.Cancel()

	first, rest, err := WhenAny(testWaiter(t), pending, done)
	r.NoError(err)
	r.Same(done, first)
	r.Len(rest, 1)
}

func TestTimeoutCancelsTask(t *testing.T) {
	r := require.New(t)

	s := New()
	h := SpawnTimeout(s, 20*time.Millisecond, sleepThen(time.Hour, 1, nil))

	_, err := h.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrDeadlineExceeded)
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal(Canceled, h.State())
}

func TestConfiguredTaskTimeout(t *testing.T) {
	r := require.New(t)

	s := New(WithConfig(Config{TaskTimeout: 20 * time.Millisecond}))
	h := Spawn(s, nil, sleepThen(time.Hour, 1, nil))

	_, err := h.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrDeadlineExceeded)

	explicit := cancel.New()
	h = Spawn(s, explicit, sleepThen(40*time.Millisecond, 2, nil))
	val, err := h.Wait(testWaiter(t))
	r.NoError(err)
	r.Equal(2, val)
}

func TestPreSignaledControllerSkipsOperator(t *testing.T) {
	r := require.New(t)

	ctrl := cancel.New()
	ctrl.Signal()

	ran := false
	h := Spawn(New(), ctrl, func(*Task) (int, error) {
		ran = true
		return 1, nil
	})

	_, err := h.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal(Canceled, h.State())
	r.False(ran)
}

func TestPanicFaultsHandle(t *testing.T) {
	r := require.New(t)

	h := Spawn(New(), nil, func(*Task) (int, error) {
		panic("kaboom")
	})

	_, err := h.Wait(testWaiter(t))
	r.Equal(Faulted, h.State())

	var pe *faults.PanicError
	r.ErrorAs(err, &pe)
	r.Equal("kaboom", pe.Value)
	r.Contains(pe.Stack, "goroutine")
}

func TestTasksInterleaveAtYield(t *testing.T) {
	r := require.New(t)

	var trace []string
	worker := func(name string) func(*Task) (int, error) {
		return func(t *Task) (int, error) {
			for i := 1; i <= 3; i++ {
				trace = append(trace, fmt.Sprintf("%s%d", name, i))
				if err := t.Yield(); err != nil {
					return 0, err
				}
			}
			return 0, nil
		}
	}

	s := New()
	root := Spawn(s, nil, func(t *Task) (int, error) {
		a := Spawn(t.Scheduler(), nil, worker("a"))
		b := Spawn(t.Scheduler(), nil, worker("b"))
		_, err := WhenAll(t, a, b)
		return len(trace), err
	})

	n, err := root.Wait(testWaiter(t))
	r.NoError(err)
	r.Equal(6, n)
	r.Equal([]string{"a1", "b1", "a2", "b2", "a3", "b3"}, trace)
}

func TestCancellationCascadesToChildTasks(t *testing.T) {
	r := require.New(t)

	s := New()
	parent := cancel.New()
	children := make(chan Group[int], 1)

	root := Spawn(s, parent, func(t *Task) (int, error) {
		g := NewGroup(
			Spawn(t.Scheduler(), t.Child(), sleepThen(time.Hour, 1, nil), Named("c1")),
			Spawn(t.Scheduler(), t.Child(), sleepThen(time.Hour, 2, nil), Named("c2")),
		)
		children <- g
		_, err := g.WhenAll(t)
		return 0, err
	})

	g := <-children
	r.Equal(2, g.Len())
	r.Equal([]State{Running, Running}, g.States())

	parent.Signal()

	_, err := g.WhenAll(testWaiter(t))
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal([]State{Canceled, Canceled}, g.States())

	_, err = root.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal(Canceled, root.State())
}

func TestGroupCancel(t *testing.T) {
	r := require.New(t)

	s := New()
	g := NewGroup(
		Spawn(s, nil, sleepThen(time.Hour, 1, nil)),
		Spawn(s, nil, sleepThen(time.Hour, 2, nil)),
	)
	g.Cancel()

	first, rest, err := g.WhenAny(testWaiter(t))
	r.NoError(err)
	r.Equal(Canceled, first.State())
	r.Len(rest, 1)

	handles := g.Handles()
	handles[0] = nil
	r.NotNil(g.Handles()[0])
}

func TestWaitingTaskStopsWhenItsControllerSignals(t *testing.T) {
	r := require.New(t)

	s := New()
	long := Spawn(s, nil, sleepThen(time.Hour, 1, nil))
	defer long.Cancel()

	waiter := Spawn(s, nil, func(t *Task) (int, error) {
		return long.Wait(t)
	})
	r.Eventually(func() bool { return waiter.State() == Running }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	waiter.Cancel()
	_, err := waiter.Wait(testWaiter(t))
	r.ErrorIs(err, faults.ErrCanceled)
	r.Equal(Running, long.State())
}

func TestBlockingWaiterGivesUp(t *testing.T) {
	r := require.New(t)

	h := Spawn(New(), nil, sleepThen(time.Hour, 1, nil))
	defer h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Wait(Blocking(ctx))
	r.ErrorIs(err, faults.ErrDeadlineExceeded)
	r.Equal(Running, h.State())
}

func TestTaskContext(t *testing.T) {
	r := require.New(t)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	val, err := Run(ctx, func(t *Task) (string, error) {
		got, ok := TaskFromContext(t.Context())
		if !ok || got != t {
			return "", errors.New("task missing from context")
		}
		if t.Canceled() {
			return "", t.Err()
		}
		return t.Context().Value(key{}).(string), nil
	})
	r.NoError(err)
	r.Equal("v", val)
}

func TestTaskContextCanceledOnSignal(t *testing.T) {
	r := require.New(t)

	h := Spawn(New(), nil, func(t *Task) (error, error) {
		t.Controller().Signal()
		<-t.Context().Done()
		return context.Cause(t.Context()), nil
	})

	cause, err := h.Wait(testWaiter(t))
	r.NoError(err)
	r.ErrorIs(cause, faults.ErrCanceled)
}

func TestRunHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, sleepThen(time.Hour, 1, nil))
	assert.ErrorIs(t, err, faults.ErrDeadlineExceeded)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSchedulerLogsLifecycle(t *testing.T) {
	r := require.New(t)

	var out syncBuffer
	s := New(WithLogger(zerolog.New(&out).Level(zerolog.DebugLevel)))

	ok := Spawn(s, nil, func(*Task) (int, error) { return 1, nil }, Named("fine"))
	bad := Spawn(s, nil, func(*Task) (int, error) { return 0, errors.New("broken") }, Named("bad"))
	_, _ = WhenAll(testWaiter(t), ok, bad)

	r.Eventually(func() bool { return s.Live() == 0 }, time.Second, time.Millisecond)

	logs := out.String()
	r.Contains(logs, `"message":"task spawned"`)
	r.Contains(logs, `"task":"fine"`)
	r.Contains(logs, `"state":"Completed"`)
	r.Contains(logs, `"level":"warn"`)
	r.Contains(logs, `"error":"broken"`)
	r.Contains(logs, `"task_id":"`+bad.ID()+`"`)
	r.Contains(logs, `"duration_ms":`)
}

func TestStateTransitionsAreMonotonic(t *testing.T) {
	r := require.New(t)

	h := newHandle[int]("id", "name", cancel.New())
	r.Equal(Pending, h.State())
	r.True(h.start())
	r.False(h.start())
	r.True(h.complete(3))
	r.False(h.fault(errors.New("late")))
	r.False(h.cancel(faults.ErrCanceled))
	r.Equal(Completed, h.State())
	r.True(Completed.Terminal())
	r.False(Running.Terminal())
	r.Equal("Faulted", Faulted.String())
}
