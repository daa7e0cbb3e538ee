// Package launch owns the reporting launches of a run: one launch per root
// execution id, created lazily and finished exactly once.
package launch

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	"rpmirror/internal/backend"
	"rpmirror/internal/clock"
	"rpmirror/pkg/logging"
)

// Options describes the launches to start.
type Options struct {
	Name        string
	Description string
	Mode        backend.LaunchMode
	Attributes  []backend.Attribute
	Rerun       bool
	RerunOf     string
	// SkippedAnIssue is reported as the skippedIssue system attribute
	SkippedAnIssue bool
	AgentName      string
	AgentVersion   string
}

// SystemAttributes describes the reporting agent and its environment.
func SystemAttributes(opts Options) []backend.Attribute {
	attrs := []backend.Attribute{
		{Key: "os", Value: runtime.GOOS + "|" + runtime.GOARCH, System: true},
		{Key: "runtime", Value: runtime.Version(), System: true},
		{Key: "skippedIssue", Value: strconv.FormatBool(opts.SkippedAnIssue), System: true},
	}
	if opts.AgentName != "" {
		attrs = append(attrs, backend.Attribute{Key: "agent", Value: opts.AgentName + "|" + opts.AgentVersion, System: true})
	}
	return attrs
}

// StartRequest builds the start request of a launch from opts.
func StartRequest(opts Options, c clock.Clock) backend.StartLaunchRQ {
	attrs := make([]backend.Attribute, 0, len(opts.Attributes)+4)
	seen := make(map[backend.Attribute]struct{})
	for _, a := range append(append([]backend.Attribute(nil), opts.Attributes...), SystemAttributes(opts)...) {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		attrs = append(attrs, a)
	}

	mode := opts.Mode
	if mode == "" {
		mode = backend.LaunchModeDefault
	}
	return backend.StartLaunchRQ{
		Name:        opts.Name,
		Description: opts.Description,
		Mode:        mode,
		Attributes:  attrs,
		StartTime:   c.Now(),
		Rerun:       opts.Rerun,
		RerunOf:     opts.RerunOf,
	}
}

// Launch is one started launch.
type Launch struct {
	RootID string
	Name   string

	client backend.Client
	clock  clock.Clock
	handle *backend.Handle

	finishOnce sync.Once
	finished   *backend.Completion
}

// Handle returns the launch handle.
func (l *Launch) Handle() *backend.Handle {
	return l.handle
}

// StartItem starts an item under parent, or as a launch root when parent is nil.
func (l *Launch) StartItem(ctx context.Context, parent *backend.Handle, rq backend.StartItemRQ) *backend.Handle {
	return l.client.StartItem(ctx, l.handle, parent, rq)
}

// FinishItem finishes an item.
func (l *Launch) FinishItem(ctx context.Context, item *backend.Handle, rq backend.FinishItemRQ) *backend.Completion {
	return l.client.FinishItem(ctx, l.handle, item, rq)
}

// EmitLog attaches a log entry to item.
func (l *Launch) EmitLog(ctx context.Context, item *backend.Handle, rq backend.LogRQ) {
	l.client.EmitLog(ctx, l.handle, item, rq)
}

// Finish finishes the launch. Only the first call sends a request; later
// calls return the same completion.
func (l *Launch) Finish(ctx context.Context) *backend.Completion {
	l.finishOnce.Do(func() {
		logging.Info("Launch", "Finishing launch %q for root %s", l.Name, l.RootID)
		l.finished = l.client.FinishLaunch(ctx, l.handle, backend.FinishLaunchRQ{EndTime: l.clock.Now()})
	})
	return l.finished
}
