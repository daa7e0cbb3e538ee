package backend

import (
	"context"
	"errors"
	"sync"
)

// ErrUnresolved is returned by Handle.Wait when the handle was resolved
// without an id.
var ErrUnresolved = errors.New("handle resolved without id")

// Handle is an asynchronous reference to a remote launch or item id.
// It is returned before the backend answers and resolved exactly once.
type Handle struct {
	parent *Handle
	done   chan struct{}
	once   sync.Once
	id     string
	err    error

	mu       sync.Mutex
	children []*Completion
}

// NewHandle creates an unresolved handle whose item lives under parent.
// parent may be nil for launches and launch-root items.
func NewHandle(parent *Handle) *Handle {
	return &Handle{
		parent: parent,
		done:   make(chan struct{}),
	}
}

// ResolvedHandle creates a handle that is already resolved to id.
func ResolvedHandle(parent *Handle, id string) *Handle {
	h := NewHandle(parent)
	h.Resolve(id, nil)
	return h
}

// Resolve sets the remote id or the error that prevented obtaining it.
// Only the first call has an effect.
func (h *Handle) Resolve(id string, err error) {
	h.once.Do(func() {
		h.id = id
		h.err = err
		if err == nil && id == "" {
			h.err = ErrUnresolved
		}
		close(h.done)
	})
}

// Parent returns the handle of the parent item, if any.
func (h *Handle) Parent() *Handle {
	return h.parent
}

// Done is closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is resolved or ctx is done.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.id, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ID returns the remote id without blocking. ok is false while unresolved
// or when resolution failed.
func (h *Handle) ID() (id string, ok bool) {
	select {
	case <-h.done:
		return h.id, h.err == nil
	default:
		return "", false
	}
}

// Track registers the finish completion of a child item. Finishing this
// handle's item waits for every tracked completion first.
func (h *Handle) Track(c *Completion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.children = append(h.children, c)
}

// Pending returns the completions registered with Track.
func (h *Handle) Pending() []*Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Completion, len(h.children))
	copy(out, h.children)
	return out
}

// Completion is the future of a finish operation.
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewCompletion creates an incomplete completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns a completion that is already done with err.
func Completed(err error) *Completion {
	c := NewCompletion()
	c.Complete(err)
	return c
}

// Complete marks the operation done. Only the first call has an effect.
func (c *Completion) Complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the operation completes.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the operation completes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits for every completion and returns the first error.
func WaitAll(ctx context.Context, completions []*Completion) error {
	var first error
	for _, c := range completions {
		if err := c.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
