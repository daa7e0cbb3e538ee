// Package logging provides the diagnostic logger used across rpmirror.
//
// It is a thin layer over Go's slog package: every entry carries a subsystem
// attribute so output from the observer, the launch registry, the backend
// client and the go test driver can be told apart and filtered.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Launch", "Started launch for root %s", rootID)
//	logging.Debug("Observer", "Correlated %s -> %s", key, itemID)
//	logging.Warn("GoTest", "Ignoring malformed event line")
//	logging.Error("Backend", err, "Finish item %s failed", itemID)
//
// # Subsystems
//
//   - Observer: lifecycle coordinator decisions
//   - Launch: launch creation and finalization
//   - Backend: reporting client requests and failures
//   - GoTest: go test -json stream handling
//   - Config: configuration loading and validation
//   - MockServer: the in-memory reporting server
//   - CLI: command execution
//
// Diagnostic logs are unrelated to the log entries that are attached to
// reported items; those go through the backend client.
//
// Before InitForCLI is called only ERROR entries are written (to stderr), so
// the packages can be used as a library without configuring logging.
//
// The logger is safe for concurrent use.
package logging
