package gotest

import (
	"fmt"
	"strings"
)

// FailureError describes a failed test or package together with the output
// it produced.
type FailureError struct {
	Package string
	Test    string
	Output  string
}

func (e *FailureError) Error() string {
	subject := e.Package
	if e.Test != "" {
		subject = e.Test + " in " + e.Package
	}
	out := strings.TrimRight(e.Output, "\n")
	if out == "" {
		return fmt.Sprintf("%s failed", subject)
	}
	return fmt.Sprintf("%s failed:\n%s", subject, out)
}
