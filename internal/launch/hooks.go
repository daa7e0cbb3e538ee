package launch

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rpmirror/pkg/logging"
)

// ExitHooks collects functions that must run before the process exits,
// whether the run ends normally or is interrupted.
type ExitHooks struct {
	mu    sync.Mutex
	hooks []func(context.Context)
	once  sync.Once
}

// NewExitHooks creates an empty hook set.
func NewExitHooks() *ExitHooks {
	return &ExitHooks{}
}

// Register adds a hook.
func (h *ExitHooks) Register(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Len returns the number of registered hooks.
func (h *ExitHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// RunAll runs every hook once, in registration order. Later calls are no-ops.
func (h *ExitHooks) RunAll(ctx context.Context) {
	h.once.Do(func() {
		h.mu.Lock()
		hooks := make([]func(context.Context), len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		logging.Debug("Launch", "Running %d exit hooks", len(hooks))
		for _, fn := range hooks {
			fn(ctx)
		}
	})
}

// NotifyOnSignal runs the hooks and calls onSignal when the process receives
// SIGINT or SIGTERM. The returned function stops listening.
func (h *ExitHooks) NotifyOnSignal(ctx context.Context, onSignal func()) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logging.Warn("Launch", "Received %s, finishing launches", sig)
			h.RunAll(context.WithoutCancel(ctx))
			if onSignal != nil {
				onSignal()
			}
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
		})
	}
}
