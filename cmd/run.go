package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"rpmirror/internal/backend"
	"rpmirror/internal/backend/rest"
	"rpmirror/internal/config"
	"rpmirror/internal/formatting"
	"rpmirror/internal/gotest"
	"rpmirror/internal/launch"
	"rpmirror/internal/observer"
	"rpmirror/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// TestsFailedError is returned by run when the run was reported but at
// least one test or package failed.
type TestsFailedError struct {
	Failed int
}

func (e *TestsFailedError) Error() string {
	if e.Failed == 0 {
		return "test run failed"
	}
	return fmt.Sprintf("%d tests failed", e.Failed)
}

type runOptions struct {
	configPath string
	input      string
	dir        string
	dryRun     bool
	debug      bool
	format     string
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] [-- go test args...]",
		Short: "Run go test and mirror the results to the reporting service",
		Long: `Runs go test -json with the given arguments and mirrors every package,
test and subtest to the reporting service as they run. With --input the
events are read from a file (or "-" for stdin) instead.

The launch is finished when the stream ends or when the process is
interrupted, then a summary is printed. The exit code is 2 when tests failed.

Configuration is read from rpmirror.yaml in --config (default: current
directory) and RP_* environment variables.

Examples:
  rpmirror run -- ./...
  rpmirror run --config ci -- -race -count=1 ./internal/...
  go test -json ./... | rpmirror run --input -
  rpmirror run --dry-run --input events.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", ".", "Directory containing rpmirror.yaml")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Read go test -json events from a file, - for stdin")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Working directory for go test")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Record the reporting calls in memory instead of sending them")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "table", "Summary format (table|console|json|yaml)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the summary totals")
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions, args []string) error {
	level := logging.LevelInfo
	if opts.debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(!opts.dryRun); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := newBackendClient(cfg, opts.dryRun)
	if err != nil {
		return err
	}

	eventClock := gotest.NewEventClock()
	launchOpts, err := cfg.LaunchOptions(GetVersion(), eventClock.Now())
	if err != nil {
		return fmt.Errorf("invalid launch configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	hooks := launch.NewExitHooks()
	stop := hooks.NotifyOnSignal(ctx, cancel)
	defer stop()

	obs := observer.New(observer.Options{
		Client:                   client,
		Launch:                   launchOpts,
		ReportDisabledTests:      cfg.ReportDisabledTests,
		CallbackReportingEnabled: true,
		Clock:                    eventClock,
		Hooks:                    hooks,
	})
	driver := gotest.NewDriver(obs, gotest.Options{LogOutput: cfg.LogOutput, Clock: eventClock})

	runErr := drive(ctx, driver, opts, args, cmd.InOrStdin())
	if err := finishRun(cmd, obs, hooks, opts.quiet); err != nil {
		logging.Error("CLI", err, "Failed to finish launch")
		if runErr == nil {
			runErr = fmt.Errorf("failed to finish launch: %w", err)
		}
	} else {
		logging.Debug("CLI", "Finished %d launches", obs.Registry().Count())
	}
	if runErr != nil {
		return runErr
	}

	report := formatting.NewReport(launchOpts.Name, obs.Tree().Leaves())
	formatter := formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: formatting.ParseFormat(opts.format),
		Quiet:  opts.quiet,
		Color:  isTerminal(cmd.OutOrStdout()),
	})
	if err := formatter.FormatReport(cmd.OutOrStdout(), report); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}

	if recorder, ok := client.(*backend.Recorder); ok {
		logging.Info("CLI", "Dry run recorded %d reporting calls", len(recorder.Calls()))
	}

	if driver.Failed() {
		return &TestsFailedError{Failed: driver.Summary().Failed}
	}
	return nil
}

func newBackendClient(cfg config.Config, dryRun bool) (backend.Client, error) {
	if dryRun {
		return backend.NewRecorder(), nil
	}
	client, err := rest.New(rest.Options{
		Endpoint: cfg.Endpoint,
		Project:  cfg.Project,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reporting client: %w", err)
	}
	return client, nil
}

// drive feeds the driver from --input or from a go test child process.
func drive(ctx context.Context, driver *gotest.Driver, opts *runOptions, args []string, stdin io.Reader) error {
	if opts.input == "" {
		return driver.Run(ctx, opts.dir, args)
	}

	r := stdin
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	err := driver.Consume(ctx, r)
	driver.Close(ctx)
	return err
}

// finishRun finishes every launch through the exit hooks and waits for the
// backend to acknowledge them.
func finishRun(cmd *cobra.Command, obs *observer.Observer, hooks *launch.ExitHooks, quiet bool) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 2*time.Minute)
	defer cancel()

	var s *spinner.Spinner
	if !quiet && isTerminal(cmd.ErrOrStderr()) {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Finishing launch..."
		s.Start()
		defer s.Stop()
	}

	hooks.RunAll(ctx)
	return obs.Finish(ctx)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
