// Package correlation maps execution node keys to remote item handles and
// keeps the item tree exposed to callback consumers.
package correlation

import (
	"sync"

	"rpmirror/internal/backend"
)

// Table maps node keys to item handles. It is safe for concurrent use and
// never evicts entries.
type Table struct {
	items sync.Map // string -> *backend.Handle
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Put records the handle of key, replacing any previous handle.
func (t *Table) Put(key string, h *backend.Handle) {
	t.items.Store(key, h)
}

// PutIfAbsent records h unless key already has a handle. It returns the
// handle stored under key and whether h was stored.
func (t *Table) PutIfAbsent(key string, h *backend.Handle) (*backend.Handle, bool) {
	actual, loaded := t.items.LoadOrStore(key, h)
	return actual.(*backend.Handle), !loaded
}

// Get returns the handle of key.
func (t *Table) Get(key string) (*backend.Handle, bool) {
	v, ok := t.items.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*backend.Handle), true
}

// Len returns the number of recorded keys.
func (t *Table) Len() int {
	n := 0
	t.items.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
