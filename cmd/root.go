package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates the run was reported but tests failed.
	ExitCodeTestsFailed = 2
)

// rootCmd represents the base command for the rpmirror application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = baseRootCmd()

func init() {
	addSubcommands(rootCmd)
}

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rpmirror",
		Short: "Mirror go test runs to a test reporting service",
		Long: `rpmirror runs go test (or reads a recorded go test -json stream) and
mirrors the test tree to a ReportPortal-style reporting service: packages
become suites, tests and subtests become steps, and failures are attached
as error logs.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
	}
}

func addSubcommands(root *cobra.Command) {
	root.AddCommand(newVersionCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newMockServerCmd())
}

// newRootCmd builds a fresh command tree carrying the current version, so
// tests can execute commands without sharing flag state.
func newRootCmd() *cobra.Command {
	root := baseRootCmd()
	root.Version = GetVersion()
	addSubcommands(root)
	return root
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rpmirror version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var testsFailed *TestsFailedError
	if errors.As(err, &testsFailed) {
		return ExitCodeTestsFailed
	}
	return ExitCodeError
}
