// Package observer mirrors test framework lifecycle events to the reporting
// backend.
//
// A framework driver calls the Observer for every container and step it
// runs. The Observer resolves node identities, obtains the launch of the
// node's root, links every item to its parent's handle and decides the
// terminal status of containers from the failures reported below them.
// Failures of the observed code are logged to the backend and returned to
// the caller unchanged; reporting never alters the outcome of a test.
package observer

import (
	"context"
	"fmt"
	"sync"

	"rpmirror/internal/backend"
	"rpmirror/internal/clock"
	"rpmirror/internal/correlation"
	"rpmirror/internal/identity"
	"rpmirror/internal/launch"
	"rpmirror/internal/node"
	"rpmirror/pkg/logging"
)

// NoCauseMessage is logged when a step fails without an error value.
const NoCauseMessage = "Test has failed without exception"

// Hook item types accepted by InterceptHook.
const (
	BeforeClass  = backend.ItemTypeBeforeClass
	BeforeMethod = backend.ItemTypeBeforeMethod
	AfterClass   = backend.ItemTypeAfterClass
	AfterMethod  = backend.ItemTypeAfterMethod
)

// Options configures an Observer.
type Options struct {
	Client backend.Client
	Launch launch.Options
	// ReportDisabledTests reports disabled nodes as SKIPPED steps
	ReportDisabledTests bool
	// CallbackReportingEnabled records every item in the item tree
	CallbackReportingEnabled bool
	// Clock defaults to the system clock
	Clock clock.Clock
	// Hooks receives a finish hook per launch; may be nil
	Hooks *launch.ExitHooks
}

// Outcome is the result of a finished step.
type Outcome struct {
	// Failed marks the step failed even without Err
	Failed bool
	// Err is the failure raised by the step
	Err error
	// Skipped marks a step aborted by the framework
	Skipped bool
}

// Observer is the run context: it owns the launch registry, the item
// correlation table and the per-node state of one run.
type Observer struct {
	opts     Options
	clock    clock.Clock
	registry *launch.Registry
	items    *correlation.Table
	tree     *correlation.Tree

	states sync.Map // node key -> *nodeState

	templateMu sync.Mutex
	templates  sync.Map // template key -> *node.Node
}

// New creates an Observer.
func New(opts Options) *Observer {
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}

	o := &Observer{
		opts:     opts,
		clock:    c,
		registry: launch.NewRegistry(opts.Client, opts.Launch, c, opts.Hooks),
		items:    correlation.NewTable(),
	}
	if opts.CallbackReportingEnabled {
		o.tree = correlation.NewTree()
		o.registry.OnStart = func(l *launch.Launch) {
			o.tree.SetLaunch(l.Handle())
		}
	}
	return o
}

// Registry returns the launch registry.
func (o *Observer) Registry() *launch.Registry {
	return o.registry
}

// Items returns the item correlation table.
func (o *Observer) Items() *correlation.Table {
	return o.items
}

// Tree returns the item tree, or nil when callback reporting is disabled.
func (o *Observer) Tree() *correlation.Tree {
	return o.tree
}

// ContainerStarted reports the start of a suite-like node.
func (o *Observer) ContainerStarted(ctx context.Context, n *node.Node) {
	v := variantContainer
	if n.Kind == node.KindTemplate {
		v = variantTemplate
	}
	o.start(ctx, item{variant: v, node: n, key: n.UniqueID, parentKey: n.ParentID()})
}

// ContainerFinished reports the end of a suite-like node. err is a failure
// of the container itself, outside of its children. Pending template groups
// below the container are finished first with the container's status.
func (o *Observer) ContainerFinished(ctx context.Context, n *node.Node, err error) {
	o.templates.Delete(n.UniqueID)
	st := o.state(n.UniqueID)
	if err != nil {
		o.emitFailure(ctx, n.UniqueID, err)
		st.failed.Store(true)
	}

	templates := o.pendingTemplates(n)
	for _, tpl := range templates {
		if o.state(tpl.UniqueID).failed.Load() {
			st.failed.Store(true)
		}
	}

	status := st.status()
	for _, tpl := range templates {
		o.finish(ctx, tpl.UniqueID, status)
		o.templates.Delete(tpl.UniqueID)
	}

	o.finish(ctx, n.UniqueID, status)
	o.countExecuted(n)
	if status == backend.StatusFailed {
		o.markParentFailed(n)
	}
}

// StepStarted reports the start of a test, a template invocation or a
// dynamic test. When n is the first invocation of a template, the template
// group is started before it.
func (o *Observer) StepStarted(ctx context.Context, n *node.Node, args []interface{}) {
	o.ensureTemplate(ctx, n)
	v := variantStep
	if n.Kind == node.KindDynamic {
		v = variantDynamic
	}
	o.start(ctx, item{variant: v, node: n, key: n.UniqueID, parentKey: n.ParentID(), args: args})
}

// StepFinished reports the end of a step. A failed step marks its parent
// failed. A step with children is failed when one of them failed.
func (o *Observer) StepFinished(ctx context.Context, n *node.Node, out Outcome) {
	st := o.state(n.UniqueID)

	var status backend.Status
	switch {
	case out.Err != nil || out.Failed:
		o.emitFailure(ctx, n.UniqueID, out.Err)
		status = backend.StatusFailed
	case st.failed.Load():
		status = backend.StatusFailed
	case out.Skipped:
		status = backend.StatusSkipped
	default:
		status = backend.StatusPassed
	}

	o.finish(ctx, n.UniqueID, status)
	o.countExecuted(n)
	if status == backend.StatusFailed {
		o.markParentFailed(n)
	}
}

// InterceptStep starts the step, runs invoke and returns its error
// unchanged. The step is finished by StepFinished; failures of test
// factories and templates surface in the enclosing container.
func (o *Observer) InterceptStep(ctx context.Context, n *node.Node, args []interface{}, invoke func() error) error {
	o.StepStarted(ctx, n, args)
	return invoke()
}

// InterceptDynamic reports a dynamically generated test around invoke. A
// failure is logged, the step finished FAILED and the error returned
// unchanged.
func (o *Observer) InterceptDynamic(ctx context.Context, n *node.Node, invoke func() error) error {
	o.start(ctx, item{variant: variantDynamic, node: n, key: n.UniqueID, parentKey: n.ParentID()})
	if err := invoke(); err != nil {
		o.emitFailure(ctx, n.UniqueID, err)
		o.finish(ctx, n.UniqueID, backend.StatusFailed)
		o.countExecuted(n)
		o.markParentFailed(n)
		return err
	}
	o.finish(ctx, n.UniqueID, o.state(n.UniqueID).status())
	o.countExecuted(n)
	return nil
}

// InterceptHook reports a before/after hook around invoke. For class hooks
// n is the container; for method hooks n is the test the hook runs for. A
// failure is logged, the hook finished FAILED and the error returned
// unchanged.
func (o *Observer) InterceptHook(ctx context.Context, n *node.Node, hookType backend.ItemType, m *node.Method, invoke func() error) error {
	parentKey := n.UniqueID
	switch hookType {
	case BeforeClass, AfterClass:
	case BeforeMethod, AfterMethod:
		o.ensureTemplate(ctx, n)
		parentKey = n.ParentID()
	default:
		logging.Warn("Observer", "Not reporting hook %s of %s: unsupported hook type %q", m.Name, n.UniqueID, hookType)
		return invoke()
	}

	// Hooks of parallel tests share a key, so the invocation keeps its own state.
	key := identity.HookKey(parentKey, m.Name)
	st := o.start(ctx, item{variant: variantHook, node: n, key: key, parentKey: parentKey, hookType: hookType, method: m})
	if st == nil {
		return invoke()
	}

	if err := invoke(); err != nil {
		if si := st.started.Load(); si != nil {
			o.emitFailureTo(ctx, si, err)
		}
		o.finishState(ctx, key, st, backend.StatusFailed)
		return err
	}
	o.finishState(ctx, key, st, backend.StatusPassed)
	return nil
}

// TestDisabled reports a disabled node as a SKIPPED step when disabled
// reporting is enabled. The node's body is never run by the observer.
func (o *Observer) TestDisabled(ctx context.Context, n *node.Node, reason string) {
	if !o.opts.ReportDisabledTests {
		logging.Debug("Observer", "Ignoring disabled node %s", n.UniqueID)
		return
	}
	if reason == "" {
		reason = n.DisplayName
	}

	o.start(ctx, item{variant: variantDisabled, node: n, key: n.UniqueID, parentKey: n.ParentID(), reason: reason})
	o.finish(ctx, n.UniqueID, backend.StatusSkipped)
	if !n.IsRoot() {
		o.state(n.Parent.UniqueID).disabled.Add(1)
	}
}

// EmitLog attaches a log entry to the item of n, or to the launch when n has
// no item.
func (o *Observer) EmitLog(ctx context.Context, n *node.Node, level backend.LogLevel, message string) {
	o.emit(ctx, n.Root().UniqueID, n.UniqueID, level, message)
}

// Finish finishes every launch and waits until the backend has completed
// them.
func (o *Observer) Finish(ctx context.Context) error {
	return o.registry.FinishAll(ctx)
}

func (o *Observer) state(key string) *nodeState {
	if v, ok := o.states.Load(key); ok {
		return v.(*nodeState)
	}
	v, _ := o.states.LoadOrStore(key, newNodeState())
	return v.(*nodeState)
}

func (o *Observer) startedItem(key string) *startedItem {
	v, ok := o.states.Load(key)
	if !ok {
		return nil
	}
	return v.(*nodeState).started.Load()
}

func (o *Observer) markParentFailed(n *node.Node) {
	if n.IsRoot() {
		return
	}
	o.state(n.Parent.UniqueID).failed.Store(true)
}

func (o *Observer) countExecuted(n *node.Node) {
	if n.IsRoot() {
		return
	}
	o.state(n.Parent.UniqueID).executed.Add(1)
}

// ensureTemplate starts the template group of n's parent once, before the
// first invocation.
func (o *Observer) ensureTemplate(ctx context.Context, n *node.Node) {
	tpl := n.Parent
	if tpl == nil || tpl.Kind != node.KindTemplate {
		return
	}
	if _, ok := o.items.Get(tpl.UniqueID); ok {
		return
	}

	o.templateMu.Lock()
	defer o.templateMu.Unlock()
	if _, ok := o.items.Get(tpl.UniqueID); ok {
		return
	}
	o.start(ctx, item{variant: variantTemplate, node: tpl, key: tpl.UniqueID, parentKey: tpl.ParentID()})
}

// pendingTemplates returns the started, unfinished templates below n.
func (o *Observer) pendingTemplates(n *node.Node) []*node.Node {
	var out []*node.Node
	o.templates.Range(func(_, v interface{}) bool {
		tpl := v.(*node.Node)
		for p := tpl.Parent; p != nil; p = p.Parent {
			if p.UniqueID == n.UniqueID {
				out = append(out, tpl)
				break
			}
		}
		return true
	})
	return out
}

func (o *Observer) emitFailure(ctx context.Context, key string, err error) {
	it := o.startedItem(key)
	if it == nil {
		logging.Warn("Observer", "Dropping failure log of unstarted item %s: %v", key, err)
		return
	}
	o.emitFailureTo(ctx, it, err)
}

// emitFailureTo logs err at ERROR level to the item of si.
func (o *Observer) emitFailureTo(ctx context.Context, si *startedItem, err error) {
	msg := NoCauseMessage
	if err != nil {
		msg = fmt.Sprintf("%+v", err)
	}
	si.launch.EmitLog(ctx, si.handle, backend.LogRQ{
		Level:   backend.LogLevelError,
		Message: msg,
		Time:    o.clock.Now(),
	})
}

func (o *Observer) emit(ctx context.Context, rootID, key string, level backend.LogLevel, message string) {
	rq := backend.LogRQ{Level: level, Message: message, Time: o.clock.Now()}
	if it := o.startedItem(key); it != nil {
		it.launch.EmitLog(ctx, it.handle, rq)
		return
	}
	o.registry.Get(ctx, rootID).EmitLog(ctx, nil, rq)
}
