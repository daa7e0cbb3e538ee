// Package gotest drives the observer from the JSON event stream of
// `go test -json`.
//
// Node layout:
//
//	[engine:go-test]                             root, never reported
//	  /[package:example.com/pkg]                 container, one per package
//	    /[test:TestLogin]                        step, method pkg.TestLogin
//	      /[subtest:admin]                       dynamic step
//
// Packages are started lazily on their first test, so packages without
// tests are not reported unless they fail.
package gotest

import (
	"sync"
	"time"
)

// Actions emitted by test2json.
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPause  = "pause"
	ActionCont   = "cont"
	ActionPass   = "pass"
	ActionBench  = "bench"
	ActionFail   = "fail"
	ActionOutput = "output"
	ActionSkip   = "skip"
)

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time        time.Time `json:"Time"`
	Action      string    `json:"Action"`
	Package     string    `json:"Package"`
	Test        string    `json:"Test"`
	Elapsed     float64   `json:"Elapsed"`
	Output      string    `json:"Output"`
	FailedBuild string    `json:"FailedBuild,omitempty"`
}

// EventClock reports the time of the last consumed event, so replayed
// streams keep their original timestamps. Before the first event it falls
// back to the system time.
type EventClock struct {
	mu   sync.RWMutex
	last time.Time
}

// NewEventClock creates an event clock.
func NewEventClock() *EventClock {
	return &EventClock{}
}

// Observe moves the clock to t. Zero and earlier times are ignored.
func (c *EventClock) Observe(t time.Time) {
	if t.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t
	}
}

// Now returns the time of the last observed event.
func (c *EventClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last.IsZero() {
		return time.Now()
	}
	return c.last
}
