package correlation

import (
	"sync"
	"time"

	"rpmirror/internal/backend"
)

// Leaf is one item recorded in the tree.
type Leaf struct {
	Key          string
	Name         string
	Type         backend.ItemType
	ParentKey    string
	ParentHandle *backend.Handle
	Handle       *backend.Handle
	StartTime    time.Time

	// Set when the item finishes
	Status  backend.Status
	Finish  *backend.Completion
	EndTime time.Time
}

// Finished reports whether the leaf has a terminal status.
func (l Leaf) Finished() bool {
	return l.Status != ""
}

// Tree records item starts and finishes for callback consumers. Leaves keep
// the order in which they were started. A key started again (a re-entrant
// hook) adds a new leaf; Get returns the latest one.
type Tree struct {
	mu       sync.RWMutex
	launch   *backend.Handle
	leaves   []*Leaf
	byKey    map[string]*Leaf
	byHandle map[*backend.Handle]*Leaf
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		byKey:    make(map[string]*Leaf),
		byHandle: make(map[*backend.Handle]*Leaf),
	}
}

// SetLaunch records the launch handle. Only the first launch is kept.
func (t *Tree) SetLaunch(h *backend.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.launch == nil {
		t.launch = h
	}
}

// Launch returns the launch handle, if any.
func (t *Tree) Launch() *backend.Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.launch
}

// Start records a started item.
func (t *Tree) Start(l Leaf) {
	t.mu.Lock()
	defer t.mu.Unlock()
	leaf := l
	t.leaves = append(t.leaves, &leaf)
	t.byKey[l.Key] = &leaf
	if l.Handle != nil {
		t.byHandle[l.Handle] = &leaf
	}
}

// Finish records the terminal status of the item of h. Unknown handles are
// ignored.
func (t *Tree) Finish(h *backend.Handle, status backend.Status, c *backend.Completion, end time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.byHandle[h]
	if !ok {
		return false
	}
	l.Status = status
	l.Finish = c
	l.EndTime = end
	return true
}

// Get returns a copy of the latest leaf of key.
func (t *Tree) Get(key string) (Leaf, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.byKey[key]
	if !ok {
		return Leaf{}, false
	}
	return *l, true
}

// Leaves returns copies of all leaves in start order.
func (t *Tree) Leaves() []Leaf {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Leaf, 0, len(t.leaves))
	for _, l := range t.leaves {
		out = append(out, *l)
	}
	return out
}
