// Package formatting renders the outcome of a mirrored run for the terminal
// or for machines, in console, table, JSON or YAML form.
package formatting

import (
	"io"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatConsole OutputFormat = "console" // Simple console output
	FormatJSON    OutputFormat = "json"    // JSON output
	FormatYAML    OutputFormat = "yaml"    // YAML output
	FormatTable   OutputFormat = "table"   // Rich table output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Only print the totals
	Color  bool // Enable colored output
}

// Formatter renders a run report
type Formatter interface {
	FormatReport(w io.Writer, report Report) error

	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		return NewTableFormatter(options)
	case FormatConsole:
		fallthrough
	default:
		return NewConsoleFormatter(options)
	}
}

// ParseFormat converts a flag value to an OutputFormat. Unknown values
// fall back to the table format.
func ParseFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatConsole, FormatJSON, FormatYAML, FormatTable:
		return OutputFormat(s)
	default:
		return FormatTable
	}
}
