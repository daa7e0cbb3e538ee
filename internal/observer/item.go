package observer

import (
	"context"

	"rpmirror/internal/backend"
	"rpmirror/internal/correlation"
	"rpmirror/internal/identity"
	"rpmirror/internal/node"
	"rpmirror/pkg/logging"
)

type variant int

const (
	variantContainer variant = iota
	variantTemplate
	variantStep
	variantDynamic
	variantHook
	variantDisabled
)

// item is one start request in the making. Every kind of reported node goes
// through start.
type item struct {
	variant   variant
	node      *node.Node
	key       string
	parentKey string
	args      []interface{}
	reason    string
	hookType  backend.ItemType
	method    *node.Method
}

// request builds the start request of it.
func (o *Observer) request(it item) backend.StartItemRQ {
	n := it.node

	if it.variant == variantHook {
		m := it.method
		caseID := identity.HookCaseIdentity(m)
		tags := identity.Attributes(&node.Node{Tags: n.Tags})
		return backend.StartItemRQ{
			Name:         identity.TruncateName(m.Name + "()"),
			Description:  m.Name,
			UniqueID:     it.key,
			Type:         it.hookType,
			CodeRef:      identity.MethodReference(m),
			TestCaseID:   caseID.ID,
			TestCaseHash: caseID.Hash,
			Attributes:   tags,
		}
	}

	ti := identity.Resolve(n, it.reason)
	rq := backend.StartItemRQ{
		Name:        ti.Name,
		Description: ti.Description,
		UniqueID:    ti.UniqueID,
		Retry:       identity.IsRetry(n),
		Attributes:  ti.Attributes,
	}

	switch it.variant {
	case variantContainer, variantTemplate:
		rq.Type = backend.ItemTypeSuite
		if n.TestClass != "" {
			caseID := identity.ClassCaseIdentity(n.TestClass)
			rq.CodeRef = n.TestClass
			rq.TestCaseID, rq.TestCaseHash = caseID.ID, caseID.Hash
		}
	default:
		rq.Type = backend.ItemTypeStep
		m := n.TestMethod()
		rq.CodeRef = identity.CodeReference(n)
		caseID := identity.CaseIdentity(m, rq.CodeRef, it.args)
		rq.TestCaseID, rq.TestCaseHash = caseID.ID, caseID.Hash
		if m != nil && n.Method == nil {
			rq.Attributes = mergeAttributes(rq.Attributes, m.Attributes)
		}
	}
	return rq
}

func mergeAttributes(base, extra []backend.Attribute) []backend.Attribute {
	seen := make(map[backend.Attribute]struct{}, len(base))
	for _, a := range base {
		seen[a] = struct{}{}
	}
	out := base
	for _, a := range extra {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// start moves the node of it from NOT_STARTED to STARTED and starts its item
// under the parent's handle, or as a launch root when the parent has none.
// Hook keys are re-entrant: every hook invocation starts a fresh item and
// gets its own state, which is returned to the caller. start returns nil
// when the node was already started.
func (o *Observer) start(ctx context.Context, it item) *nodeState {
	var st *nodeState
	if it.variant == variantHook {
		st = newNodeState()
		o.states.Store(it.key, st)
	} else {
		st = o.state(it.key)
	}
	if !st.transition(notStarted, started) {
		logging.Warn("Observer", "Ignoring start of %s: already %s", it.key, st.current())
		return nil
	}
	if it.variant == variantContainer || it.variant == variantTemplate {
		st.failed.Store(false)
	}

	l := o.registry.Get(ctx, it.node.Root().UniqueID)
	rq := o.request(it)
	rq.StartTime = o.clock.Now()

	parent, ok := o.items.Get(it.parentKey)
	if !ok {
		parent = nil
		if it.parentKey != "" {
			logging.Debug("Observer", "No item for parent %s, starting %s as launch root", it.parentKey, it.key)
		}
	}

	h := l.StartItem(ctx, parent, rq)
	if it.variant == variantHook {
		o.items.Put(it.key, h)
	} else if _, stored := o.items.PutIfAbsent(it.key, h); !stored {
		logging.Warn("Observer", "Item of %s already recorded, keeping the first handle", it.key)
	}
	if it.variant == variantTemplate {
		o.templates.Store(it.key, it.node)
	}

	if o.tree != nil {
		o.tree.Start(correlation.Leaf{
			Key:          it.key,
			Name:         rq.Name,
			Type:         rq.Type,
			ParentKey:    it.parentKey,
			ParentHandle: parent,
			Handle:       h,
			StartTime:    rq.StartTime,
		})
	}
	st.publish(&startedItem{handle: h, launch: l})

	logging.Debug("Observer", "Started %s %q (%s)", rq.Type, rq.Name, it.key)
	return st
}

// finish moves the node of key from STARTED to FINISHED and finishes its
// item. Finishing an unstarted or finished node is ignored.
func (o *Observer) finish(ctx context.Context, key string, status backend.Status) *backend.Completion {
	v, ok := o.states.Load(key)
	if !ok {
		logging.Warn("Observer", "Ignoring finish of unknown item %s", key)
		return nil
	}
	return o.finishState(ctx, key, v.(*nodeState), status)
}

// finishState finishes the item of st. A finish racing the start of the same
// node waits until the start has published the item.
func (o *Observer) finishState(ctx context.Context, key string, st *nodeState, status backend.Status) *backend.Completion {
	if !st.transition(started, finished) {
		logging.Warn("Observer", "Ignoring finish of %s: %s", key, st.current())
		return nil
	}

	si, err := st.item(ctx)
	if err != nil {
		logging.Warn("Observer", "Dropping finish of %s: %v", key, err)
		return nil
	}
	end := o.clock.Now()
	c := si.launch.FinishItem(ctx, si.handle, backend.FinishItemRQ{Status: status, EndTime: end})
	logging.Debug("Observer", "Finished %s with %s", key, status)

	if o.tree != nil {
		o.tree.Finish(si.handle, status, c, end)
	}
	return c
}
