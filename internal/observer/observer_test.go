package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rpmirror/internal/backend"
	"rpmirror/internal/clock"
	"rpmirror/internal/node"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootID = "[engine:junit]"

func newTestObserver(t *testing.T, mutate func(*Options)) (*Observer, *backend.Recorder) {
	t.Helper()
	rec := backend.NewRecorder()
	mock := clock.NewMock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	mock.AutoStep(time.Millisecond)
	opts := Options{
		Client: rec,
		Clock:  mock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts), rec
}

type tree struct {
	root *node.Node
}

func newTree() *tree {
	return &tree{root: &node.Node{UniqueID: rootID, DisplayName: "JUnit", Kind: node.KindContainer}}
}

func (tr *tree) class(parent *node.Node, name string) *node.Node {
	if parent == nil {
		parent = tr.root
	}
	return &node.Node{
		UniqueID:    parent.UniqueID + "/[class:" + name + "]",
		Parent:      parent,
		DisplayName: name,
		TestClass:   "com.example." + name,
		Kind:        node.KindContainer,
	}
}

func method(parent *node.Node, name string) *node.Node {
	return &node.Node{
		UniqueID:    parent.UniqueID + "/[method:" + name + "()]",
		Parent:      parent,
		DisplayName: name + "()",
		Kind:        node.KindTest,
		Method:      &node.Method{DeclaringType: parent.TestClass, Name: name},
	}
}

func ops(rec *backend.Recorder) []string {
	var out []string
	for _, c := range rec.Calls() {
		switch c.Op {
		case backend.OpStartLaunch, backend.OpFinishLaunch:
			continue
		case backend.OpFinishItem:
			out = append(out, fmt.Sprintf("%s(%s,%s)", c.Op, c.Name, c.Status))
		case backend.OpEmitLog:
			out = append(out, fmt.Sprintf("%s(%s,%s)", c.Op, c.Name, c.Level))
		default:
			out = append(out, fmt.Sprintf("%s(%s)", c.Op, c.Name))
		}
	}
	return out
}

func finishStatus(t *testing.T, rec *backend.Recorder, name string) backend.Status {
	t.Helper()
	call, ok := rec.Find(backend.OpFinishItem, name)
	require.True(t, ok, "no finish call for %s", name)
	return call.Status
}

func TestObserver_EndToEnd(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	tr := newTree()

	c := tr.class(nil, "C")
	s1 := method(c, "s1")
	s2 := method(c, "s2")
	boom := errors.New("assertion failed: expected 1, got 2")

	o.ContainerStarted(ctx, c)
	require.NoError(t, o.InterceptStep(ctx, s1, nil, func() error { return nil }))
	o.StepFinished(ctx, s1, Outcome{})
	err := o.InterceptStep(ctx, s2, nil, func() error { return boom })
	assert.Same(t, boom, err, "failure is returned unchanged")
	o.StepFinished(ctx, s2, Outcome{Err: err})
	o.ContainerFinished(ctx, c, nil)

	assert.Equal(t, []string{
		"startItem(C)",
		"startItem(s1())",
		"finishItem(s1(),PASSED)",
		"startItem(s2())",
		"emitLog(s2(),ERROR)",
		"finishItem(s2(),FAILED)",
		"finishItem(C,FAILED)",
	}, ops(rec))

	logCall, ok := rec.Find(backend.OpEmitLog, "s2()")
	require.True(t, ok)
	assert.Contains(t, logCall.Message, "expected 1, got 2")

	require.NoError(t, o.Finish(ctx))
	assert.Equal(t, 1, rec.Count(backend.OpStartLaunch))
	assert.Equal(t, 1, rec.Count(backend.OpFinishLaunch))
}

func TestObserver_StartRequests(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	tr := newTree()

	c := tr.class(nil, "LoginTest")
	s := method(c, "login")
	s.Tags = []string{"smoke"}
	s.Method.Attributes = []backend.Attribute{{Key: "owner", Value: "qa"}}

	o.ContainerStarted(ctx, c)
	o.StepStarted(ctx, s, []interface{}{"admin", 3})

	suite, ok := rec.Find(backend.OpStartItem, "LoginTest")
	require.True(t, ok)
	assert.Equal(t, backend.ItemTypeSuite, suite.Type)
	assert.Equal(t, "", suite.ParentID, "class without started parent is a launch root")
	assert.Equal(t, "com.example.LoginTest", suite.Start.CodeRef)
	assert.Equal(t, "com.example.LoginTest", suite.Start.TestCaseID)

	step, ok := rec.Find(backend.OpStartItem, "login()")
	require.True(t, ok)
	assert.Equal(t, suite.ID, step.ParentID)
	assert.Equal(t, backend.ItemTypeStep, step.Type)
	assert.Equal(t, s.UniqueID, step.UniqueID)
	assert.Equal(t, "com.example.LoginTest.login", step.Start.CodeRef)
	assert.Equal(t, "com.example.LoginTest.login[admin, 3]", step.Start.TestCaseID)
	assert.False(t, step.Start.Retry)
	assert.Equal(t, []backend.Attribute{{Value: "smoke"}, {Key: "owner", Value: "qa"}}, step.Start.Attributes)
	assert.False(t, step.Start.StartTime.IsZero())
}

func TestObserver_FailureBubblesThroughNestedContainers(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	tr := newTree()

	outer := tr.class(nil, "Outer")
	inner := tr.class(outer, "Inner")
	passing := method(outer, "ok")
	failing := method(inner, "broken")

	o.ContainerStarted(ctx, outer)
	o.StepStarted(ctx, passing, nil)
	o.StepFinished(ctx, passing, Outcome{})
	o.ContainerStarted(ctx, inner)
	o.StepStarted(ctx, failing, nil)
	o.StepFinished(ctx, failing, Outcome{Err: errors.New("boom")})
	o.ContainerFinished(ctx, inner, nil)
	o.ContainerFinished(ctx, outer, nil)

	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "ok()"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "broken()"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "Inner"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "Outer"), "grandchild failure reaches the grandparent")

	innerStart, _ := rec.Find(backend.OpStartItem, "Inner")
	outerStart, _ := rec.Find(backend.OpStartItem, "Outer")
	assert.Equal(t, outerStart.ID, innerStart.ParentID)
}

func TestObserver_SiblingContainersDoNotShareFlags(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	tr := newTree()

	a := tr.class(nil, "A")
	b := tr.class(nil, "B")
	fa := method(a, "fails")
	pb := method(b, "passes")

	o.ContainerStarted(ctx, a)
	o.ContainerStarted(ctx, b)
	o.StepStarted(ctx, fa, nil)
	o.StepStarted(ctx, pb, nil)
	o.StepFinished(ctx, fa, Outcome{Failed: true})
	o.StepFinished(ctx, pb, Outcome{})
	o.ContainerFinished(ctx, b, nil)
	o.ContainerFinished(ctx, a, nil)

	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "A"))
	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "B"))
}

func TestObserver_FailedWithoutError(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	s := method(c, "s")

	o.ContainerStarted(ctx, c)
	o.StepStarted(ctx, s, nil)
	o.StepFinished(ctx, s, Outcome{Failed: true})

	logCall, ok := rec.Find(backend.OpEmitLog, "s()")
	require.True(t, ok)
	assert.Equal(t, NoCauseMessage, logCall.Message)
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "s()"))
}

func TestObserver_SkippedStepDoesNotFailParent(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	s := method(c, "s")

	o.ContainerStarted(ctx, c)
	o.StepStarted(ctx, s, nil)
	o.StepFinished(ctx, s, Outcome{Skipped: true})
	o.ContainerFinished(ctx, c, nil)

	assert.Equal(t, backend.StatusSkipped, finishStatus(t, rec, "s()"))
	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "C"))
	assert.Equal(t, 0, rec.Count(backend.OpEmitLog))
}

func TestObserver_ContainerError(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	tr := newTree()
	outer := tr.class(nil, "Outer")
	inner := tr.class(outer, "Inner")

	o.ContainerStarted(ctx, outer)
	o.ContainerStarted(ctx, inner)
	o.ContainerFinished(ctx, inner, errors.New("setup panicked"))
	o.ContainerFinished(ctx, outer, nil)

	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "Inner"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "Outer"))
	logCall, ok := rec.Find(backend.OpEmitLog, "Inner")
	require.True(t, ok)
	assert.Equal(t, "setup panicked", logCall.Message)
}

func TestObserver_DisabledTests(t *testing.T) {
	t.Run("not reported by default", func(t *testing.T) {
		o, rec := newTestObserver(t, nil)
		c := newTree().class(nil, "C")
		o.TestDisabled(context.Background(), method(c, "off"), "flaky")

		assert.Empty(t, rec.Calls())
	})

	t.Run("reported as skipped step", func(t *testing.T) {
		o, rec := newTestObserver(t, func(opts *Options) { opts.ReportDisabledTests = true })
		ctx := context.Background()
		c := newTree().class(nil, "C")
		off := method(c, "off")

		o.ContainerStarted(ctx, c)
		o.TestDisabled(ctx, off, "flaky on CI")
		o.ContainerFinished(ctx, c, nil)

		assert.Equal(t, []string{
			"startItem(C)",
			"startItem(off())",
			"finishItem(off(),SKIPPED)",
			"finishItem(C,SKIPPED)",
		}, ops(rec))

		start, _ := rec.Find(backend.OpStartItem, "off()")
		assert.Equal(t, backend.ItemTypeStep, start.Type)
		assert.Equal(t, "flaky on CI", start.Start.Description)
	})

	t.Run("reason defaults to display name", func(t *testing.T) {
		o, rec := newTestObserver(t, func(opts *Options) { opts.ReportDisabledTests = true })
		off := method(newTree().class(nil, "C"), "off")
		o.TestDisabled(context.Background(), off, "")

		start, ok := rec.Find(backend.OpStartItem, "off()")
		require.True(t, ok)
		assert.Equal(t, "off()", start.Start.Description)
	})

	t.Run("executed sibling keeps container passed", func(t *testing.T) {
		o, rec := newTestObserver(t, func(opts *Options) { opts.ReportDisabledTests = true })
		ctx := context.Background()
		c := newTree().class(nil, "C")
		run := method(c, "run")

		o.ContainerStarted(ctx, c)
		o.TestDisabled(ctx, method(c, "off"), "")
		o.StepStarted(ctx, run, nil)
		o.StepFinished(ctx, run, Outcome{})
		o.ContainerFinished(ctx, c, nil)

		assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "C"))
	})
}

func TestObserver_HookFailure(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	setUp := &node.Method{DeclaringType: "com.example.C", Name: "setUp"}
	boom := errors.New("database unavailable")

	o.ContainerStarted(ctx, c)
	err := o.InterceptHook(ctx, c, BeforeClass, setUp, func() error { return boom })
	assert.Same(t, boom, err)

	start, ok := rec.Find(backend.OpStartItem, "setUp()")
	require.True(t, ok)
	suite, _ := rec.Find(backend.OpStartItem, "C")
	assert.Equal(t, suite.ID, start.ParentID)
	assert.Equal(t, backend.ItemTypeBeforeClass, start.Type)
	assert.Equal(t, c.UniqueID+"/[method:setUp()]", start.UniqueID)
	assert.Equal(t, "setUp", start.Start.Description)
	assert.Equal(t, "com.example.C.setUp", start.Start.CodeRef)
	assert.Equal(t, "com.example.C.setUp", start.Start.TestCaseID)

	logCall, ok := rec.Find(backend.OpEmitLog, "setUp()")
	require.True(t, ok)
	assert.Equal(t, backend.LogLevelError, logCall.Level)
	assert.Contains(t, logCall.Message, "database unavailable")
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "setUp()"))
}

func TestObserver_MethodHooksAreReentrant(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	each := &node.Method{DeclaringType: "com.example.C", Name: "beforeEach"}

	o.ContainerStarted(ctx, c)
	for _, name := range []string{"a", "b"} {
		s := method(c, name)
		require.NoError(t, o.InterceptHook(ctx, s, BeforeMethod, each, func() error { return nil }))
		o.StepStarted(ctx, s, nil)
		o.StepFinished(ctx, s, Outcome{})
	}
	o.ContainerFinished(ctx, c, nil)

	assert.Equal(t, 2, countOps(rec, backend.OpStartItem, "beforeEach()"))
	assert.Equal(t, 2, countOps(rec, backend.OpFinishItem, "beforeEach()"))

	suite, _ := rec.Find(backend.OpStartItem, "C")
	hook, _ := rec.Find(backend.OpStartItem, "beforeEach()")
	assert.Equal(t, suite.ID, hook.ParentID, "method hooks hang under the class")
	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "C"))
}

func TestObserver_OverlappingMethodHooks(t *testing.T) {
	o, rec := newTestObserver(t, func(opts *Options) { opts.CallbackReportingEnabled = true })
	ctx := context.Background()
	c := newTree().class(nil, "C")
	each := &node.Method{DeclaringType: "com.example.C", Name: "beforeEach"}
	o.ContainerStarted(ctx, c)

	aRunning := make(chan struct{})
	releaseA := make(chan struct{})
	errA := make(chan error, 1)
	go func() {
		errA <- o.InterceptHook(ctx, method(c, "a"), BeforeMethod, each, func() error {
			close(aRunning)
			<-releaseA
			return errors.New("a failed")
		})
	}()

	<-aRunning
	require.NoError(t, o.InterceptHook(ctx, method(c, "b"), BeforeMethod, each, func() error { return nil }))
	close(releaseA)
	require.EqualError(t, <-errA, "a failed")

	var started []string
	finished := map[string]backend.Status{}
	logged := map[string]string{}
	for _, call := range rec.Calls() {
		if call.Name != "beforeEach()" {
			continue
		}
		switch call.Op {
		case backend.OpStartItem:
			started = append(started, call.ID)
		case backend.OpFinishItem:
			finished[call.ID] = call.Status
		case backend.OpEmitLog:
			logged[call.ID] = call.Message
		}
	}
	require.Len(t, started, 2)
	require.Len(t, finished, 2)
	assert.Equal(t, backend.StatusFailed, finished[started[0]])
	assert.Equal(t, backend.StatusPassed, finished[started[1]])
	assert.Contains(t, logged[started[0]], "a failed")
	assert.NotContains(t, logged, started[1])

	var hooks []backend.Status
	for _, leaf := range o.Tree().Leaves() {
		if leaf.Name == "beforeEach()" {
			hooks = append(hooks, leaf.Status)
		}
	}
	assert.Equal(t, []backend.Status{backend.StatusFailed, backend.StatusPassed}, hooks)
}

func TestNodeState_FinishWaitsForStart(t *testing.T) {
	st := newNodeState()
	require.True(t, st.transition(notStarted, started))
	require.True(t, st.transition(started, finished))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := st.item(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	si := &startedItem{handle: backend.ResolvedHandle(nil, "x")}
	got := make(chan *startedItem, 1)
	go func() {
		it, _ := st.item(context.Background())
		got <- it
	}()
	st.publish(si)
	assert.Same(t, si, <-got)
}

func TestObserver_UnsupportedHookTypeStillRuns(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	c := newTree().class(nil, "C")
	called := false
	err := o.InterceptHook(context.Background(), c, backend.ItemTypeStep, &node.Method{Name: "x"}, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, rec.Calls())
}

func countOps(rec *backend.Recorder, op, name string) int {
	n := 0
	for _, c := range rec.Calls() {
		if c.Op == op && c.Name == name {
			n++
		}
	}
	return n
}

func templateTree() (class, tpl *node.Node, invocations []*node.Node) {
	class = newTree().class(nil, "ParamTest")
	tpl = &node.Node{
		UniqueID:    class.UniqueID + "/[test-template:check(int)]",
		Parent:      class,
		DisplayName: "check(int)",
		Kind:        node.KindTemplate,
		Method:      &node.Method{DeclaringType: "com.example.ParamTest", Name: "check"},
	}
	for i := 1; i <= 2; i++ {
		invocations = append(invocations, &node.Node{
			UniqueID:    fmt.Sprintf("%s/[test-template-invocation:#%d]", tpl.UniqueID, i),
			Parent:      tpl,
			DisplayName: fmt.Sprintf("[%d] %d", i, i),
			Kind:        node.KindTest,
			Method:      tpl.Method,
		})
	}
	return class, tpl, invocations
}

func TestObserver_TemplateGroup(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	class, _, inv := templateTree()

	o.ContainerStarted(ctx, class)
	o.StepStarted(ctx, inv[0], []interface{}{1})
	o.StepFinished(ctx, inv[0], Outcome{})
	o.StepStarted(ctx, inv[1], []interface{}{2})
	o.StepFinished(ctx, inv[1], Outcome{Err: errors.New("2 is even")})
	o.ContainerFinished(ctx, class, nil)

	assert.Equal(t, []string{
		"startItem(ParamTest)",
		"startItem(check(int))",
		"startItem([1] 1)",
		"finishItem([1] 1,PASSED)",
		"startItem([2] 2)",
		"emitLog([2] 2,ERROR)",
		"finishItem([2] 2,FAILED)",
		"finishItem(check(int),FAILED)",
		"finishItem(ParamTest,FAILED)",
	}, ops(rec))

	tplStart, _ := rec.Find(backend.OpStartItem, "check(int)")
	assert.Equal(t, backend.ItemTypeSuite, tplStart.Type)
	first, _ := rec.Find(backend.OpStartItem, "[1] 1")
	assert.Equal(t, tplStart.ID, first.ParentID)
	assert.Equal(t, "com.example.ParamTest.check[1]", first.Start.TestCaseID)
}

func TestObserver_TemplateStartsOnceUnderConcurrency(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	class, tpl, _ := templateTree()
	o.ContainerStarted(ctx, class)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := &node.Node{
				UniqueID:    fmt.Sprintf("%s/[test-template-invocation:#%d]", tpl.UniqueID, i),
				Parent:      tpl,
				DisplayName: fmt.Sprintf("[%d]", i),
				Kind:        node.KindTest,
				Method:      tpl.Method,
			}
			o.StepStarted(ctx, n, []interface{}{i})
			o.StepFinished(ctx, n, Outcome{})
		}(i)
	}
	wg.Wait()
	o.ContainerFinished(ctx, class, nil)

	assert.Equal(t, 1, countOps(rec, backend.OpStartItem, "check(int)"))
	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "check(int)"))
	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "ParamTest"))
}

func TestObserver_RepeatedTestsReportParentIdentity(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	class, tpl, inv := templateTree()
	tpl.Method = &node.Method{DeclaringType: "com.example.ParamTest", Name: "check", Repeated: true}
	for _, n := range inv {
		n.Method = tpl.Method
	}

	o.ContainerStarted(ctx, class)
	for _, n := range inv {
		o.StepStarted(ctx, n, nil)
		o.StepFinished(ctx, n, Outcome{})
	}
	o.ContainerFinished(ctx, class, nil)

	var repetitions []backend.Call
	for _, c := range rec.Calls() {
		if c.Op == backend.OpStartItem && c.Type == backend.ItemTypeStep {
			repetitions = append(repetitions, c)
		}
	}
	require.Len(t, repetitions, 2)
	for _, c := range repetitions {
		assert.Equal(t, "check(int)", c.Name)
		assert.Equal(t, tpl.UniqueID, c.UniqueID)
		assert.True(t, c.Start.Retry)
	}
	assert.NotEqual(t, repetitions[0].ID, repetitions[1].ID, "each repetition gets its own item")
	assert.Equal(t, 3, countOps(rec, backend.OpFinishItem, "check(int)"), "two repetitions plus the template")
}

func TestObserver_Dynamic(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	factory := method(c, "factory")
	dyn := func(i int) *node.Node {
		return &node.Node{
			UniqueID:    fmt.Sprintf("%s/[dynamic-test:#%d]", factory.UniqueID, i),
			Parent:      factory,
			DisplayName: fmt.Sprintf("dyn %d", i),
			Kind:        node.KindDynamic,
		}
	}

	o.ContainerStarted(ctx, c)
	require.NoError(t, o.InterceptStep(ctx, factory, nil, func() error { return nil }))
	require.NoError(t, o.InterceptDynamic(ctx, dyn(1), func() error { return nil }))
	boom := errors.New("dynamic failure")
	err := o.InterceptDynamic(ctx, dyn(2), func() error { return boom })
	assert.Same(t, boom, err)
	o.StepFinished(ctx, factory, Outcome{})
	o.ContainerFinished(ctx, c, nil)

	assert.Equal(t, backend.StatusPassed, finishStatus(t, rec, "dyn 1"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "dyn 2"))
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "factory()"), "a failed dynamic test fails its factory")
	assert.Equal(t, backend.StatusFailed, finishStatus(t, rec, "C"))

	d2, _ := rec.Find(backend.OpStartItem, "dyn 2")
	assert.Equal(t, "com.example.C.factory$dyn 2", d2.Start.CodeRef)
	f, _ := rec.Find(backend.OpStartItem, "factory()")
	assert.Equal(t, f.ID, d2.ParentID)
}

func TestObserver_IgnoresDuplicateTransitions(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	s := method(c, "s")

	o.ContainerStarted(ctx, c)
	o.ContainerStarted(ctx, c)
	o.StepFinished(ctx, s, Outcome{})
	o.StepStarted(ctx, s, nil)
	o.StepFinished(ctx, s, Outcome{})
	o.StepFinished(ctx, s, Outcome{})

	assert.Equal(t, 1, countOps(rec, backend.OpStartItem, "C"))
	assert.Equal(t, 1, countOps(rec, backend.OpStartItem, "s()"))
	assert.Equal(t, 1, countOps(rec, backend.OpFinishItem, "s()"))
}

func TestObserver_ConcurrentRootsCreateOneLaunchEach(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()

	const roots = 4
	const classes = 16
	var wg sync.WaitGroup
	for r := 0; r < roots; r++ {
		root := &node.Node{UniqueID: fmt.Sprintf("[engine:e%d]", r), DisplayName: "engine"}
		for i := 0; i < classes; i++ {
			c := &node.Node{
				UniqueID:    fmt.Sprintf("%s/[class:C%d]", root.UniqueID, i),
				Parent:      root,
				DisplayName: fmt.Sprintf("C%d", i),
				Kind:        node.KindContainer,
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.ContainerStarted(ctx, c)
				o.ContainerFinished(ctx, c, nil)
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, roots, rec.Count(backend.OpStartLaunch))
	assert.Equal(t, roots*classes, rec.Count(backend.OpStartItem))
	assert.Equal(t, roots, o.Registry().Count())
}

func TestObserver_CallbackTree(t *testing.T) {
	o, _ := newTestObserver(t, func(opts *Options) { opts.CallbackReportingEnabled = true })
	ctx := context.Background()
	c := newTree().class(nil, "C")
	s := method(c, "s")

	o.ContainerStarted(ctx, c)
	o.StepStarted(ctx, s, nil)
	o.StepFinished(ctx, s, Outcome{})
	o.ContainerFinished(ctx, c, nil)

	tree := o.Tree()
	require.NotNil(t, tree)
	require.NotNil(t, tree.Launch())

	leaves := tree.Leaves()
	require.Len(t, leaves, 2)
	assert.Equal(t, c.UniqueID, leaves[0].Key)
	assert.Equal(t, backend.StatusPassed, leaves[1].Status)
	assert.Same(t, leaves[0].Handle, leaves[1].ParentHandle)
	require.NotNil(t, leaves[1].Finish)
	assert.NoError(t, leaves[1].Finish.Wait(ctx))

	h, ok := o.Items().Get(s.UniqueID)
	require.True(t, ok)
	assert.Same(t, leaves[1].Handle, h)
}

func TestObserver_TreeDisabledByDefault(t *testing.T) {
	o, _ := newTestObserver(t, nil)
	assert.Nil(t, o.Tree())
}

func TestObserver_EmitLog(t *testing.T) {
	o, rec := newTestObserver(t, nil)
	ctx := context.Background()
	c := newTree().class(nil, "C")
	s := method(c, "s")

	o.ContainerStarted(ctx, c)
	o.StepStarted(ctx, s, nil)
	o.EmitLog(ctx, s, backend.LogLevelInfo, "step output")
	o.EmitLog(ctx, method(c, "never-started"), backend.LogLevelWarn, "launch level")

	logCall, ok := rec.Find(backend.OpEmitLog, "s()")
	require.True(t, ok)
	assert.Equal(t, "step output", logCall.Message)

	var launchLevel []backend.Call
	for _, call := range rec.Calls() {
		if call.Op == backend.OpEmitLog && call.ID == "" {
			launchLevel = append(launchLevel, call)
		}
	}
	require.Len(t, launchLevel, 1)
	assert.Equal(t, "launch level", launchLevel[0].Message)
}
