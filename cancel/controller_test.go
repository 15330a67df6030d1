package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webriots/coflow/faults"
)

func TestSignalIsIdempotent(t *testing.T) {
	c := New()
	require.False(t, c.IsSignaled())
	require.NoError(t, c.Err())

	calls := 0
	c.OnSignal(func() { calls++ })

	c.Signal()
	c.Signal()

	assert.True(t, c.IsSignaled())
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, c.Err(), faults.ErrCanceled)

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSignalCascadesToChildren(t *testing.T) {
	root := New()
	mid := New(WithParent(root))
	leaf := New(WithParent(mid))
	other := New()

	require.Equal(t, 1, root.Children())

	root.Signal()

	assert.True(t, mid.IsSignaled())
	assert.True(t, leaf.IsSignaled())
	assert.False(t, other.IsSignaled())
	assert.Equal(t, 0, root.Children())
}

func TestChildOfSignaledParentStartsSignaled(t *testing.T) {
	parent := New()
	parent.Signal()

	child := New(WithParent(parent))
	assert.True(t, child.IsSignaled())

	fired := false
	child.OnSignal(func() { fired = true })
	assert.True(t, fired)
}

func TestSignalingChildLeavesParent(t *testing.T) {
	parent := New()
	child := New(WithParent(parent))

	child.Signal()

	assert.False(t, parent.IsSignaled())
	assert.Equal(t, 0, parent.Children())
}

func TestCallbacksRunInRegistrationOrder(t *testing.T) {
	c := New()
	var order []int
	c.OnSignal(func() { order = append(order, 1) })
	removed := c.OnSignal(func() { order = append(order, 2) })
	c.OnSignal(func() { order = append(order, 3) })

	removed.Remove()
	c.Signal()

	assert.Equal(t, []int{1, 3}, order)
}

func TestDeadlineSignals(t *testing.T) {
	c := New(WithTimeout(20 * time.Millisecond))
	_, ok := c.Deadline()
	require.True(t, ok)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire")
	}

	assert.ErrorIs(t, c.Err(), faults.ErrDeadlineExceeded)
	assert.ErrorIs(t, c.Err(), faults.ErrCanceled)
}

func TestPastDeadlineSignalsImmediately(t *testing.T) {
	c := New(WithDeadline(time.Now().Add(-time.Second)))
	assert.True(t, c.IsSignaled())
	assert.ErrorIs(t, c.Err(), faults.ErrDeadlineExceeded)
}

func TestTimeoutOptionResolvedAtConstruction(t *testing.T) {
	opt := WithTimeout(30 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	c := New(opt)
	assert.False(t, c.IsSignaled())
	deadline, ok := c.Deadline()
	require.True(t, ok)
	assert.True(t, deadline.After(time.Now()))
	c.Signal()

	earliest := New(WithTimeout(time.Hour), WithDeadline(time.Now().Add(-time.Second)))
	assert.ErrorIs(t, earliest.Err(), faults.ErrDeadlineExceeded)
}

func TestParentDeadlineReachesChild(t *testing.T) {
	parent := New(WithTimeout(10 * time.Millisecond))
	child := New(WithParent(parent))

	<-child.Done()
	assert.ErrorIs(t, child.Err(), faults.ErrDeadlineExceeded)
}

func TestConcurrentSignalAndRegistration(t *testing.T) {
	for i := 0; i < 100; i++ {
		c := New()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fired := 0

		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				New(WithParent(c)).OnSignal(func() {
					mu.Lock()
					fired++
					mu.Unlock()
				})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Signal()
		}()
		wg.Wait()

		mu.Lock()
		assert.Equal(t, 8, fired)
		mu.Unlock()
	}
}

func TestContextBridge(t *testing.T) {
	c := New()
	ctx, release := c.Context(context.Background())
	defer release()

	c.Signal()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), faults.ErrCanceled)
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := FromContext(ctx)
	require.False(t, c.IsSignaled())

	cancel()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("controller not signaled by context")
	}
	assert.ErrorIs(t, c.Err(), faults.ErrCanceled)

	dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer dcancel()
	dc := FromContext(dctx)
	<-dc.Done()
	assert.ErrorIs(t, dc.Err(), faults.ErrDeadlineExceeded)
}
