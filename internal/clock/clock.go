// Package clock abstracts time so that start/finish timestamps of reported
// items can be controlled in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	// Now returns the current time according to this clock
	Now() time.Time
}

// Real implements Clock using the actual system time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Mock implements Clock with a controllable time value.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
	step    time.Duration
}

// NewMock creates a new mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewMock(t time.Time) *Mock {
	if t.IsZero() {
		t = time.Now()
	}
	return &Mock{current: t}
}

// Now returns the current time according to this mock clock. When an
// auto-step is configured the clock advances by it after each call.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.current
	m.current = m.current.Add(m.step)
	return now
}

// Advance moves the clock forward by the given duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to a specific time.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// AutoStep makes every Now call advance the clock by d, so consecutive
// timestamps are strictly increasing.
func (m *Mock) AutoStep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = d
}
