package mapping

import (
	"fmt"
	"strings"
)

// Severity of a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted location inside the
// configuration, e.g. "outputs.product_features.fields.fvalue".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// ConfigError is the fatal configuration error. It aborts a run before any
// row is processed. Entity and Field locate the first error; Issues carries
// every error-severity finding.
type ConfigError struct {
	Entity string
	Field  string
	Reason string
	Issues []Issue
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Entity != "" {
		b.WriteString(": entity=" + e.Entity)
	}
	if e.Field != "" {
		b.WriteString(" field=" + e.Field)
	}
	b.WriteString(": " + e.Reason)
	if n := len(e.Issues); n > 1 {
		fmt.Fprintf(&b, " (and %d more)", n-1)
	}
	return b.String()
}
