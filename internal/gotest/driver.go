package gotest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"rpmirror/internal/backend"
	"rpmirror/internal/node"
	"rpmirror/internal/observer"
	"rpmirror/pkg/logging"
)

// DefaultRootID is the unique id of the run root.
const DefaultRootID = "[engine:go-test]"

const maxLineSize = 4 * 1024 * 1024

// Options configures a Driver.
type Options struct {
	// RootID overrides DefaultRootID
	RootID string
	// LogOutput forwards test output lines as INFO logs
	LogOutput bool
	// Clock is advanced with the time of every event; may be nil
	Clock *EventClock
}

type packageState struct {
	node        *node.Node
	started     bool
	output      []string
	failedTests int
}

type testState struct {
	node     *node.Node
	run      int
	running  bool
	finished bool
	output   []string
}

// Summary counts finished tests by result.
type Summary struct {
	Passed  int
	Failed  int
	Skipped int
}

// Driver turns test2json events into observer calls.
type Driver struct {
	obs  *observer.Observer
	opts Options
	root *node.Node

	mu       sync.Mutex
	packages map[string]*packageState
	tests    map[string]*testState
	summary  Summary
	failed   bool
}

// NewDriver creates a driver reporting to obs.
func NewDriver(obs *observer.Observer, opts Options) *Driver {
	rootID := opts.RootID
	if rootID == "" {
		rootID = DefaultRootID
	}
	return &Driver{
		obs:      obs,
		opts:     opts,
		root:     &node.Node{UniqueID: rootID, DisplayName: "go test", Kind: node.KindContainer},
		packages: make(map[string]*packageState),
		tests:    make(map[string]*testState),
	}
}

// Failed reports whether any test or package failed.
func (d *Driver) Failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

// Summary returns the counts of finished tests.
func (d *Driver) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary
}

// Consume reads events from r until EOF. Lines that are not JSON events are
// logged and skipped.
func (d *Driver) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev TestEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logging.Debug("GoTest", "Skipping non-JSON line: %s", strings.TrimSpace(string(line)))
			continue
		}
		d.HandleEvent(ctx, ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read test events: %w", err)
	}
	return nil
}

// HandleEvent applies one event.
func (d *Driver) HandleEvent(ctx context.Context, ev TestEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.Clock != nil {
		d.opts.Clock.Observe(ev.Time)
	}
	if ev.Package == "" {
		return
	}

	if ev.Test == "" {
		d.handlePackageEvent(ctx, ev)
		return
	}

	switch ev.Action {
	case ActionRun:
		d.startTest(ctx, ev.Package, ev.Test)
	case ActionOutput:
		d.testOutput(ctx, ev)
	case ActionPass, ActionFail, ActionSkip:
		d.finishTest(ctx, ev)
	case ActionPause, ActionCont, ActionBench:
	default:
		logging.Debug("GoTest", "Ignoring action %q for %s", ev.Action, ev.Test)
	}
}

func (d *Driver) handlePackageEvent(ctx context.Context, ev TestEvent) {
	pkg := d.pkg(ev.Package)
	switch ev.Action {
	case ActionOutput:
		pkg.output = append(pkg.output, ev.Output)
	case ActionPass, ActionSkip:
		if !pkg.started {
			return
		}
		d.closeTests(ctx, ev.Package)
		d.obs.ContainerFinished(ctx, pkg.node, nil)
		pkg.started = false
	case ActionFail:
		d.failed = true
		if !pkg.started {
			d.startPackage(ctx, pkg)
		}
		hadFailures := d.closeTests(ctx, ev.Package)

		var err error
		if !hadFailures {
			output := strings.Join(filterOutput(pkg.output), "")
			if ev.FailedBuild != "" && output == "" {
				output = "build failed: " + ev.FailedBuild
			}
			err = &FailureError{Package: ev.Package, Output: output}
		}
		d.obs.ContainerFinished(ctx, pkg.node, err)
		pkg.started = false
	}
}

func (d *Driver) pkg(importPath string) *packageState {
	if p, ok := d.packages[importPath]; ok {
		return p
	}
	p := &packageState{
		node: &node.Node{
			UniqueID:    d.root.UniqueID + "/[package:" + importPath + "]",
			Parent:      d.root,
			DisplayName: importPath,
			TestClass:   importPath,
			Kind:        node.KindContainer,
		},
	}
	d.packages[importPath] = p
	return p
}

func (d *Driver) startPackage(ctx context.Context, p *packageState) {
	p.started = true
	d.obs.ContainerStarted(ctx, p.node)
}

func testKey(pkg, test string) string {
	return pkg + "\x00" + test
}

// testNode returns the state of a test, creating the nodes of its parents.
func (d *Driver) testNode(pkgPath, name string) *testState {
	if ts, ok := d.tests[testKey(pkgPath, name)]; ok {
		return ts
	}
	return d.newTestNode(pkgPath, name, 1)
}

// newTestNode creates the node of the run-th execution of a test. Repeated
// executions (-count) get distinct unique ids under the same display name.
func (d *Driver) newTestNode(pkgPath, name string, run int) *testState {
	var n *node.Node
	if i := strings.LastIndex(name, "/"); i >= 0 {
		parent := d.testNode(pkgPath, name[:i])
		seg := name[i+1:]
		n = &node.Node{
			UniqueID:    parent.node.UniqueID + "/[subtest:" + runSuffix(seg, run) + "]",
			Parent:      parent.node,
			DisplayName: seg,
			Kind:        node.KindDynamic,
		}
	} else {
		pkg := d.pkg(pkgPath)
		n = &node.Node{
			UniqueID:    pkg.node.UniqueID + "/[test:" + runSuffix(name, run) + "]",
			Parent:      pkg.node,
			DisplayName: name,
			Kind:        node.KindTest,
			Method:      &node.Method{DeclaringType: pkgPath, Name: name},
		}
	}

	ts := &testState{node: n, run: run}
	d.tests[testKey(pkgPath, name)] = ts
	return ts
}

func runSuffix(name string, run int) string {
	if run <= 1 {
		return name
	}
	return fmt.Sprintf("%s#%d", name, run)
}

func (d *Driver) startTest(ctx context.Context, pkgPath, name string) {
	pkg := d.pkg(pkgPath)
	if !pkg.started {
		d.startPackage(ctx, pkg)
	}
	ts := d.testNode(pkgPath, name)
	if ts.running {
		return
	}
	if ts.finished {
		ts = d.newTestNode(pkgPath, name, ts.run+1)
	}
	ts.running = true
	d.obs.StepStarted(ctx, ts.node, nil)
}

func (d *Driver) testOutput(ctx context.Context, ev TestEvent) {
	ts, ok := d.tests[testKey(ev.Package, ev.Test)]
	if !ok || !ts.running {
		return
	}
	ts.output = append(ts.output, ev.Output)
	if d.opts.LogOutput && !isMarker(ev.Output) {
		d.obs.EmitLog(ctx, ts.node, backend.LogLevelInfo, strings.TrimRight(ev.Output, "\n"))
	}
}

func (d *Driver) finishTest(ctx context.Context, ev TestEvent) {
	ts, ok := d.tests[testKey(ev.Package, ev.Test)]
	if ev.Action == ActionSkip && (!ok || (!ts.running && !ts.finished)) {
		d.disableTest(ctx, ev)
		return
	}
	if !ok || !ts.running {
		d.startTest(ctx, ev.Package, ev.Test)
		ts = d.tests[testKey(ev.Package, ev.Test)]
	}
	ts.running = false
	ts.finished = true

	var out observer.Outcome
	switch ev.Action {
	case ActionFail:
		d.failed = true
		d.summary.Failed++
		d.pkg(ev.Package).failedTests++
		out.Err = &FailureError{Package: ev.Package, Test: ev.Test, Output: strings.Join(filterOutput(ts.output), "")}
	case ActionSkip:
		d.summary.Skipped++
		out.Skipped = true
	default:
		d.summary.Passed++
	}
	d.obs.StepFinished(ctx, ts.node, out)
}

// disableTest reports a skip of a test that never ran as a disabled node.
// The observer drops it unless disabled tests are reported.
func (d *Driver) disableTest(ctx context.Context, ev TestEvent) {
	pkg := d.pkg(ev.Package)
	if !pkg.started {
		d.startPackage(ctx, pkg)
	}
	ts := d.testNode(ev.Package, ev.Test)
	ts.finished = true
	d.summary.Skipped++
	d.obs.TestDisabled(ctx, ts.node, "")
}

// closeTests fails the still running tests of a package, deepest first, and
// reports whether any test of the package failed.
func (d *Driver) closeTests(ctx context.Context, pkgPath string) bool {
	var running []string
	for key, ts := range d.tests {
		if ts.running && strings.HasPrefix(key, pkgPath+"\x00") {
			running = append(running, key)
		}
	}
	sort.Slice(running, func(i, j int) bool {
		di, dj := strings.Count(running[i], "/"), strings.Count(running[j], "/")
		if di != dj {
			return di > dj
		}
		return running[i] < running[j]
	})

	for _, key := range running {
		ts := d.tests[key]
		ts.running = false
		ts.finished = true
		d.summary.Failed++
		test := key[len(pkgPath)+1:]
		logging.Warn("GoTest", "Test %s in %s did not finish", test, pkgPath)
		d.obs.StepFinished(ctx, ts.node, observer.Outcome{Err: &FailureError{
			Package: pkgPath,
			Test:    test,
			Output:  strings.Join(filterOutput(ts.output), "") + "test did not finish\n",
		}})
	}

	pkg := d.pkg(pkgPath)
	pkg.failedTests += len(running)
	return pkg.failedTests > 0
}

// Close finishes everything still open, for streams that end before their
// packages do.
func (d *Driver) Close(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	paths := make([]string, 0, len(d.packages))
	for path, p := range d.packages {
		if p.started {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		p := d.packages[path]
		d.failed = true
		hadFailures := d.closeTests(ctx, path)
		var err error
		if !hadFailures {
			err = &FailureError{Package: path, Output: "package did not finish\n"}
		}
		d.obs.ContainerFinished(ctx, p.node, err)
		p.started = false
	}
}

// Run executes `go test -json` with args in dir and consumes its output.
// A failing test run is not an error; check Failed.
func (d *Driver) Run(ctx context.Context, dir string, args []string) error {
	cmd := Command(ctx, dir, args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open test output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start go test: %w", err)
	}
	logging.Info("GoTest", "Running %s", strings.Join(cmd.Args, " "))

	consumeErr := d.Consume(ctx, stdout)
	waitErr := cmd.Wait()
	d.Close(ctx)

	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && d.Failed() {
			return nil
		}
		return fmt.Errorf("go test failed: %w", waitErr)
	}
	return nil
}

// Command builds the `go test -json` command.
func Command(ctx context.Context, dir string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "go", append([]string{"test", "-json"}, args...)...)
	cmd.Dir = dir
	return cmd
}

// isMarker reports test2json framing lines such as "=== RUN".
func isMarker(line string) bool {
	return strings.HasPrefix(line, "=== ")
}

func filterOutput(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !isMarker(l) {
			out = append(out, l)
		}
	}
	return out
}
