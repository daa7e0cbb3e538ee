package observer

import (
	"context"
	"sync/atomic"

	"rpmirror/internal/backend"
	"rpmirror/internal/launch"
)

type lifecycle int32

const (
	notStarted lifecycle = iota
	started
	finished
)

func (l lifecycle) String() string {
	switch l {
	case notStarted:
		return "NOT_STARTED"
	case started:
		return "STARTED"
	case finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// nodeState is the per-node record owned by the observer. The failed flag
// only ever goes from false to true.
type nodeState struct {
	state  atomic.Int32
	failed atomic.Bool

	// children reported as disabled / executed
	disabled atomic.Int32
	executed atomic.Int32

	started atomic.Pointer[startedItem]
	ready   chan struct{}
}

func newNodeState() *nodeState {
	return &nodeState{ready: make(chan struct{})}
}

// startedItem is what a node needs after its start: its handle and launch.
type startedItem struct {
	handle *backend.Handle
	launch *launch.Launch
}

// publish records the started item and releases waiting finishes. It is
// called once, by the start that won the NOT_STARTED to STARTED transition.
func (s *nodeState) publish(si *startedItem) {
	s.started.Store(si)
	close(s.ready)
}

// item waits for the started item.
func (s *nodeState) item(ctx context.Context) (*startedItem, error) {
	select {
	case <-s.ready:
		return s.started.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *nodeState) current() lifecycle {
	return lifecycle(s.state.Load())
}

func (s *nodeState) transition(from, to lifecycle) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// status aggregates the terminal status of a container.
func (s *nodeState) status() backend.Status {
	switch {
	case s.failed.Load():
		return backend.StatusFailed
	case s.disabled.Load() > 0 && s.executed.Load() == 0:
		return backend.StatusSkipped
	default:
		return backend.StatusPassed
	}
}
