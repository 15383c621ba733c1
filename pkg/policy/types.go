package policy

import (
	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// Policy is a named Rego module whose deny set produces lint findings.
type Policy struct {
	// Name is the unique name of the policy. It becomes the diagnostic code.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity of the findings. Lint findings never fail a run, so only
	// warning and info are meaningful.
	Severity diag.Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the translator.
	Builtin bool `json:"builtin"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Subject names the offending section, e.g. "backend/app".
	Subject string `json:"subject,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Line is the DSL line of the subject, zero when unknown.
	Line int `json:"line,omitempty"`

	// Severity is the violation severity level.
	Severity diag.Severity `json:"severity"`
}

// Diagnostic converts v into a lint diagnostic.
func (v Violation) Diagnostic() diag.Diagnostic {
	return diag.Diagnostic{
		Severity: v.Severity,
		Kind:     diag.KindValidation,
		Code:     v.Policy,
		Message:  v.Message,
		Pos:      diag.Position{Line: v.Line},
		Path:     v.Subject,
	}
}
