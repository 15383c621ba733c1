package diag

import (
	"fmt"
	"strings"
)

// Diagnostic is one reportable finding: a pipeline error or a lint warning.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Pos      Position `json:"pos"`
	Path     string   `json:"path,omitempty"`
	Source   string   `json:"source,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Source != "" {
		b.WriteString(d.Source)
		b.WriteByte(':')
	}
	if d.Pos.IsValid() {
		b.WriteString(d.Pos.String())
		b.WriteByte(':')
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%s: %s", d.Severity, d.Message)
	if d.Path != "" {
		fmt.Fprintf(&b, " [%s]", d.Path)
	}
	if d.Code != "" {
		fmt.Fprintf(&b, " (%s)", d.Code)
	}
	return b.String()
}

// Diagnostics is the complete report of a run.
type Diagnostics []Diagnostic

// FromError converts a pipeline error into error-severity diagnostics.
func FromError(err error) Diagnostics {
	errs := Flatten(err)
	out := make(Diagnostics, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if e.Err != nil {
			msg = msg + ": " + e.Err.Error()
		}
		out = append(out, Diagnostic{
			Severity: SeverityError,
			Kind:     e.Kind,
			Code:     e.Code,
			Message:  msg,
			Pos:      e.Pos,
			Path:     e.Path,
		})
	}
	return out
}

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	return ds.Count(SeverityError) > 0
}

// Count returns the number of diagnostics with the given severity.
func (ds Diagnostics) Count(sev Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// WithSource returns a copy with Source set on every entry.
func (ds Diagnostics) WithSource(source string) Diagnostics {
	out := make(Diagnostics, len(ds))
	for i, d := range ds {
		d.Source = source
		out[i] = d
	}
	return out
}

func (ds Diagnostics) String() string {
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
