package launch

import (
	"context"
	"sort"
	"sync"

	"rpmirror/internal/backend"
	"rpmirror/internal/clock"
	"rpmirror/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// Registry creates and caches one launch per root execution id.
type Registry struct {
	client backend.Client
	opts   Options
	clock  clock.Clock
	hooks  *ExitHooks

	// OnStart is called once for every created launch
	OnStart func(*Launch)

	launches sync.Map // root id -> *Launch
	group    singleflight.Group
}

// NewRegistry creates a registry. hooks may be nil; otherwise every created
// launch registers a hook that finishes it.
func NewRegistry(client backend.Client, opts Options, c clock.Clock, hooks *ExitHooks) *Registry {
	if c == nil {
		c = clock.Real{}
	}
	return &Registry{
		client: client,
		opts:   opts,
		clock:  c,
		hooks:  hooks,
	}
}

// Get returns the launch of rootID, starting it on first use. Concurrent
// first calls for the same id start exactly one launch.
func (r *Registry) Get(ctx context.Context, rootID string) *Launch {
	if v, ok := r.launches.Load(rootID); ok {
		return v.(*Launch)
	}

	v, _, _ := r.group.Do(rootID, func() (interface{}, error) {
		// A previous flight may have stored it between Load and Do.
		if v, ok := r.launches.Load(rootID); ok {
			return v, nil
		}
		l := r.start(ctx, rootID)
		r.launches.Store(rootID, l)
		return l, nil
	})
	return v.(*Launch)
}

func (r *Registry) start(ctx context.Context, rootID string) *Launch {
	rq := StartRequest(r.opts, r.clock)
	logging.Info("Launch", "Starting launch %q for root %s", rq.Name, rootID)

	l := &Launch{
		RootID: rootID,
		Name:   rq.Name,
		client: r.client,
		clock:  r.clock,
		handle: r.client.StartLaunch(ctx, rq),
	}
	if r.hooks != nil {
		r.hooks.Register(func(ctx context.Context) {
			if err := l.Finish(ctx).Wait(ctx); err != nil {
				logging.Warn("Launch", "Launch %s finished with error on exit: %v", rootID, err)
			}
		})
	}
	if r.OnStart != nil {
		r.OnStart(l)
	}
	return l
}

// Launches returns the created launches ordered by root id.
func (r *Registry) Launches() []*Launch {
	var out []*Launch
	r.launches.Range(func(_, v interface{}) bool {
		out = append(out, v.(*Launch))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RootID < out[j].RootID })
	return out
}

// Count returns the number of created launches.
func (r *Registry) Count() int {
	return len(r.Launches())
}

// FinishAll finishes every launch and waits for the completions.
func (r *Registry) FinishAll(ctx context.Context) error {
	launches := r.Launches()
	completions := make([]*backend.Completion, 0, len(launches))
	for _, l := range launches {
		completions = append(completions, l.Finish(ctx))
	}
	return backend.WaitAll(ctx, completions)
}
