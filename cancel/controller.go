// Package cancel provides a cooperative cancellation controller with
// parent/child linkage and optional deadlines.
//
// A [Controller] is a process-local signal. Signaling it marks it and
// every live child as signaled and runs the callbacks registered with
// [Controller.OnSignal] in registration order. Nothing is interrupted:
// work that holds a controller must check [Controller.IsSignaled] (or
// wait on [Controller.Done]) at its own suspension points.
//
//	parent := cancel.New(cancel.WithTimeout(2 * time.Second))
//	child := cancel.New(cancel.WithParent(parent))
//	reg := child.OnSignal(func() { log.Print("stopping") })
//	defer reg.Remove()
package cancel

import (
	"context"
	"sync"
	"time"

	"github.com/webriots/coflow/faults"
)

// Controller is a signal broadcaster. The zero value is not usable;
// create controllers with [New].
type Controller struct {
	mu        sync.Mutex
	signaled  bool
	reason    error
	done      chan struct{}
	deadline  time.Time
	timer     *time.Timer
	parent    *Controller
	children  map[*Controller]struct{}
	callbacks []*Registration
}

// Option configures a Controller at construction.
type Option func(*options)

type options struct {
	parent   *Controller
	deadline time.Time
	timeouts []time.Duration
}

// WithParent links the new controller under parent. Signaling parent
// signals the child; a child created from a signaled parent starts
// signaled.
func WithParent(parent *Controller) Option {
	return func(o *options) { o.parent = parent }
}

// WithDeadline signals the controller at t.
func WithDeadline(t time.Time) Option {
	return func(o *options) {
		if o.deadline.IsZero() || t.Before(o.deadline) {
			o.deadline = t
		}
	}
}

// WithTimeout signals the controller d after construction. The
// deadline is fixed when New runs, so an option value can be reused.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeouts = append(o.timeouts, d) }
}

// New creates a controller.
func New(opts ...Option) *Controller {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	now := time.Now()
	for _, d := range o.timeouts {
		WithDeadline(now.Add(d))(&o)
	}

	c := &Controller{
		done:     make(chan struct{}),
		deadline: o.deadline,
		parent:   o.parent,
	}

	if c.parent != nil && !c.parent.adopt(c) {
		// parent already signaled; inherit its state.
		c.signaled = true
		c.reason = c.parent.Err()
		close(c.done)
		c.parent = nil
		return c
	}

	if !c.deadline.IsZero() {
		d := time.Until(c.deadline)
		if d <= 0 {
			c.signal(faults.ErrDeadlineExceeded)
			return c
		}
		c.mu.Lock()
		if !c.signaled {
			c.timer = time.AfterFunc(d, func() { c.signal(faults.ErrDeadlineExceeded) })
		}
		c.mu.Unlock()
	}

	return c
}

// Signal marks the controller and all of its live children as
// signaled. Calling Signal more than once has no further effect.
func (c *Controller) Signal() {
	c.signal(faults.ErrCanceled)
}

func (c *Controller) signal(reason error) {
	c.mu.Lock()
	if c.signaled {
		c.mu.Unlock()
		return
	}
	c.signaled = true
	c.reason = reason
	close(c.done)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	children := make([]*Controller, 0, len(c.children))
	for child := range c.children {
		children = append(children, child)
	}
	c.children = nil
	callbacks := c.callbacks
	c.callbacks = nil
	parent := c.parent
	c.parent = nil
	c.mu.Unlock()

	if parent != nil {
		parent.disown(c)
	}

	for _, child := range children {
		child.signal(reason)
	}

	for _, reg := range callbacks {
		reg.fire()
	}
}

// IsSignaled reports whether the controller has been signaled.
func (c *Controller) IsSignaled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signaled
}

// Done returns a channel that is closed once the controller is
// signaled.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns nil until the controller is signaled. Afterwards it
// returns [faults.ErrDeadlineExceeded] if a deadline fired (this one's
// or an ancestor's) and [faults.ErrCanceled] otherwise.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Deadline returns the controller's own deadline, if it has one.
func (c *Controller) Deadline() (time.Time, bool) {
	return c.deadline, !c.deadline.IsZero()
}

// OnSignal registers fn to run once when the controller is signaled.
// If the controller is already signaled fn runs immediately on the
// calling goroutine. Callbacks run in registration order on the
// goroutine that signals.
func (c *Controller) OnSignal(fn func()) *Registration {
	reg := &Registration{owner: c, fn: fn}

	c.mu.Lock()
	if c.signaled {
		c.mu.Unlock()
		reg.fire()
		return reg
	}
	c.callbacks = append(c.callbacks, reg)
	c.mu.Unlock()

	return reg
}

// Children returns the number of live children.
func (c *Controller) Children() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

// Context returns a context derived from parent that is canceled when
// the controller is signaled. The returned CancelFunc releases the
// link and must be called.
func (c *Controller) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	reg := c.OnSignal(func() { cancel(c.Err()) })
	return ctx, func() {
		reg.Remove()
		cancel(context.Canceled)
	}
}

// FromContext returns a controller that is signaled when ctx is done.
// A context deadline is carried over as the controller's deadline.
func FromContext(ctx context.Context) *Controller {
	var opts []Option
	if d, ok := ctx.Deadline(); ok {
		opts = append(opts, WithDeadline(d))
	}
	c := New(opts...)
	stop := context.AfterFunc(ctx, func() {
		if ctx.Err() == context.DeadlineExceeded {
			c.signal(faults.ErrDeadlineExceeded)
			return
		}
		c.Signal()
	})
	c.OnSignal(func() { stop() })
	return c
}

func (c *Controller) adopt(child *Controller) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signaled {
		return false
	}
	if c.children == nil {
		c.children = make(map[*Controller]struct{})
	}
	c.children[child] = struct{}{}
	return true
}

func (c *Controller) disown(child *Controller) {
	c.mu.Lock()
	delete(c.children, child)
	c.mu.Unlock()
}

func (c *Controller) unregister(reg *Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.callbacks {
		if r == reg {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
}

// Registration is a callback registered with [Controller.OnSignal].
type Registration struct {
	owner *Controller
	once  sync.Once
	fn    func()
}

// Remove unregisters the callback. It is safe to call after the
// callback has fired.
func (r *Registration) Remove() {
	r.owner.unregister(r)
}

func (r *Registration) fire() {
	r.once.Do(r.fn)
}
