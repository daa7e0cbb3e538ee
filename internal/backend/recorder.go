package backend

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Operation names recorded by Recorder.
const (
	OpStartLaunch  = "startLaunch"
	OpFinishLaunch = "finishLaunch"
	OpStartItem    = "startItem"
	OpFinishItem   = "finishItem"
	OpEmitLog      = "emitLog"
)

// Call is one recorded backend call.
type Call struct {
	Op       string
	ID       string
	ParentID string
	// Name is the item or launch name; for finish and log calls it is the
	// name the item was started with.
	Name     string
	Type     ItemType
	UniqueID string
	Status   Status
	Level    LogLevel
	Message  string
	Start    *StartItemRQ
	Launch   *StartLaunchRQ
}

// Recorder is an in-memory Client that resolves every handle immediately
// and records the call sequence. It backs dry runs and tests.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	names map[string]string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{names: make(map[string]string)}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Op == OpStartItem || c.Op == OpStartLaunch {
		r.names[c.ID] = c.Name
	} else if c.Name == "" {
		c.Name = r.names[c.ID]
	}
	r.calls = append(r.calls, c)
}

// StartLaunch records the request and returns a resolved handle.
func (r *Recorder) StartLaunch(_ context.Context, rq StartLaunchRQ) *Handle {
	id := rq.UUID
	if id == "" {
		id = uuid.NewString()
	}
	r.record(Call{Op: OpStartLaunch, ID: id, Name: rq.Name, Launch: &rq})
	return ResolvedHandle(nil, id)
}

// StartItem records the request and returns a resolved handle.
func (r *Recorder) StartItem(_ context.Context, _ *Handle, parent *Handle, rq StartItemRQ) *Handle {
	id := rq.UUID
	if id == "" {
		id = uuid.NewString()
	}
	var parentID string
	if parent != nil {
		parentID, _ = parent.ID()
	}
	r.record(Call{
		Op:       OpStartItem,
		ID:       id,
		ParentID: parentID,
		Name:     rq.Name,
		Type:     rq.Type,
		UniqueID: rq.UniqueID,
		Start:    &rq,
	})
	return ResolvedHandle(parent, id)
}

// FinishItem records the request and returns a completed completion.
func (r *Recorder) FinishItem(_ context.Context, _ *Handle, item *Handle, rq FinishItemRQ) *Completion {
	var id string
	if item != nil {
		id, _ = item.ID()
	}
	r.record(Call{Op: OpFinishItem, ID: id, Status: rq.Status})
	return Completed(nil)
}

// FinishLaunch records the request and returns a completed completion.
func (r *Recorder) FinishLaunch(_ context.Context, launch *Handle, _ FinishLaunchRQ) *Completion {
	id, _ := launch.ID()
	r.record(Call{Op: OpFinishLaunch, ID: id})
	return Completed(nil)
}

// EmitLog records the log entry.
func (r *Recorder) EmitLog(_ context.Context, _ *Handle, item *Handle, rq LogRQ) {
	var id string
	if item != nil {
		id, _ = item.ID()
	}
	r.record(Call{Op: OpEmitLog, ID: id, Level: rq.Level, Message: rq.Message})
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Find returns the first recorded call of op for the item with the given name.
func (r *Recorder) Find(op, name string) (Call, bool) {
	for _, c := range r.Calls() {
		if c.Op == op && c.Name == name {
			return c, true
		}
	}
	return Call{}, false
}

// Reset clears the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.names = make(map[string]string)
}
