package formatting

import (
	"fmt"
	"io"
	"strings"

	"rpmirror/internal/backend"
)

// ConsoleFormatter provides simple console output formatting
type ConsoleFormatter struct {
	options Options
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(options Options) Formatter {
	return &ConsoleFormatter{
		options: options,
	}
}

// FormatReport lists failed and unfinished items, then the totals.
func (f *ConsoleFormatter) FormatReport(w io.Writer, report Report) error {
	var output []string
	if !f.options.Quiet {
		for _, item := range report.Items {
			switch {
			case item.Status == "":
				output = append(output, fmt.Sprintf("  UNFINISHED %s", item.Name))
			case item.Status == backend.StatusFailed && item.Type == backend.ItemTypeStep:
				output = append(output, fmt.Sprintf("  FAILED     %s", item.Name))
			}
		}
	}
	c := report.Counts
	summary := fmt.Sprintf("%d tests: %d passed, %d failed, %d skipped", c.Total, c.Passed, c.Failed, c.Skipped)
	if c.Unfinished > 0 {
		summary += fmt.Sprintf(", %d unfinished", c.Unfinished)
	}
	if report.Launch != "" {
		summary = report.Launch + ": " + summary
	}
	output = append(output, summary)

	_, err := fmt.Fprintln(w, strings.Join(output, "\n"))
	return err
}

// SetOptions updates the formatter options
func (f *ConsoleFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *ConsoleFormatter) GetOptions() Options {
	return f.options
}
