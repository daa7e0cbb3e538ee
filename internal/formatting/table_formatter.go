package formatting

import (
	"fmt"
	"io"
	"strings"

	"rpmirror/internal/backend"
	rpstrings "rpmirror/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatReport renders the items as an indented tree table followed by the totals.
func (f *TableFormatter) FormatReport(w io.Writer, report Report) error {
	if !f.options.Quiet {
		if len(report.Items) == 0 {
			fmt.Fprintln(w, f.paint(text.FgYellow, "No items reported"))
		} else {
			f.itemsTable(w, report).Render()
		}
	}
	f.countsTable(w, report).Render()
	return nil
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) itemsTable(w io.Writer, report Report) table.Writer {
	t := f.createTable(w)
	if report.Launch != "" {
		t.SetTitle(report.Launch)
	}
	t.AppendHeader(table.Row{
		f.paint(text.FgHiCyan, "ITEM"),
		f.paint(text.FgHiCyan, "TYPE"),
		f.paint(text.FgHiCyan, "STATUS"),
		f.paint(text.FgHiCyan, "DURATION"),
	})
	for _, item := range report.Items {
		name := strings.Repeat("  ", item.Depth) + rpstrings.TruncateLine(item.Name, rpstrings.DefaultItemNameMaxLen)
		duration := ""
		if item.Status != "" {
			duration = item.Duration.String()
		}
		t.AppendRow(table.Row{name, string(item.Type), f.status(item.Status), duration})
	}
	return t
}

func (f *TableFormatter) countsTable(w io.Writer, report Report) table.Writer {
	t := f.createTable(w)
	header := table.Row{
		f.paint(text.FgHiCyan, "TOTAL"),
		f.paint(text.FgHiGreen, "PASSED"),
		f.paint(text.FgHiRed, "FAILED"),
		f.paint(text.FgHiYellow, "SKIPPED"),
	}
	row := table.Row{report.Counts.Total, report.Counts.Passed, report.Counts.Failed, report.Counts.Skipped}
	if report.Counts.Unfinished > 0 {
		header = append(header, f.paint(text.FgHiMagenta, "UNFINISHED"))
		row = append(row, report.Counts.Unfinished)
	}
	t.AppendHeader(header)
	t.AppendRow(row)
	return t
}

func (f *TableFormatter) status(s backend.Status) string {
	switch s {
	case backend.StatusPassed:
		return f.paint(text.FgGreen, string(s))
	case backend.StatusFailed:
		return f.paint(text.FgRed, string(s))
	case backend.StatusSkipped:
		return f.paint(text.FgYellow, string(s))
	case "":
		return f.paint(text.FgHiMagenta, "UNFINISHED")
	default:
		return string(s)
	}
}

func (f *TableFormatter) paint(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}
