// Package diag defines the located error taxonomy shared by every stage of the
// translation pipeline and the diagnostics list reported to callers.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error by the pipeline stage that raised it.
type Kind string

const (
	// KindParse is malformed DSL syntax. One per run; aborts immediately.
	KindParse Kind = "parse"

	// KindBuild is a syntactically valid tree with an invalid shape,
	// e.g. a server block outside any backend.
	KindBuild Kind = "build"

	// KindResolution is an unresolved or circular variable reference, or a
	// loop whose bounds cannot be expanded.
	KindResolution Kind = "resolution"

	// KindValidation is a semantic violation found by the validator.
	KindValidation Kind = "validation"

	// KindInternal means a pipeline invariant was violated, for example an
	// unresolved value reaching the generator.
	KindInternal Kind = "internal"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Common error codes.
const (
	CodeSyntax            = "SYNTAX"
	CodeMisplaced         = "MISPLACED_BLOCK"
	CodeInvalidShape      = "INVALID_SHAPE"
	CodeUndefinedVariable = "UNDEFINED_VARIABLE"
	CodeCircularVariable  = "CIRCULAR_VARIABLE"
	CodeMissingEnv        = "MISSING_ENV"
	CodeBadExpression     = "BAD_EXPRESSION"
	CodeBadRange          = "BAD_RANGE"
	CodeDuplicateLoopName = "DUPLICATE_LOOP_NAME"
	CodeShadowedLoopVar   = "SHADOWED_LOOP_VARIABLE"
	CodeUndefinedRef      = "UNDEFINED_REFERENCE"
	CodeTemplateChain     = "TEMPLATE_CHAIN"
	CodeOutOfRange        = "OUT_OF_RANGE"
	CodeInvalidEnum       = "INVALID_ENUM"
	CodeDuplicate         = "DUPLICATE"
	CodeUnresolved        = "UNRESOLVED_VALUE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Position is a location in DSL source.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsValid reports whether the position points into the source.
func (p Position) IsValid() bool {
	return p.Line > 0
}

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Error is a located, classified pipeline error.
type Error struct {
	// Kind is the taxonomy class.
	Kind Kind `json:"kind"`

	// Code is a stable machine-readable code.
	Code string `json:"code,omitempty"`

	// Message is the human-readable message.
	Message string `json:"message"`

	// Pos is the source position of the offending construct.
	Pos Position `json:"pos"`

	// Path is the node path (e.g. "backend web/server web1"), when known.
	Path string `json:"path,omitempty"`

	// Token is the offending token text for parse errors.
	Token string `json:"token,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, " at %s", e.Pos)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Token != "" {
		fmt.Fprintf(&b, " (near %q)", e.Token)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// WithPath adds a node path to the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithCode sets the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Newf creates an error of the given kind.
func Newf(kind Kind, pos Position, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// ParseError creates a syntax error pointing at tok.
func ParseError(pos Position, tok string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    CodeSyntax,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
		Token:   tok,
	}
}

// BuildError creates an IR construction error.
func BuildError(pos Position, format string, args ...interface{}) *Error {
	return Newf(KindBuild, pos, format, args...).WithCode(CodeInvalidShape)
}

// ResolutionError creates a variable or loop resolution error.
func ResolutionError(pos Position, code string, format string, args ...interface{}) *Error {
	return Newf(KindResolution, pos, format, args...).WithCode(code)
}

// ValidationError creates a single semantic violation.
func ValidationError(pos Position, code string, format string, args ...interface{}) *Error {
	return Newf(KindValidation, pos, format, args...).WithCode(code)
}

// InternalError creates an invariant violation.
func InternalError(pos Position, format string, args ...interface{}) *Error {
	return Newf(KindInternal, pos, format, args...).WithCode(CodeInternal)
}

// List is a set of errors reported together. The validator returns one List
// holding every violation it found.
type List []*Error

// Error implements the error interface.
func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(l))
	for _, e := range l {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Sort orders the list by position, then message, for stable reporting.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Pos.Line != l[j].Pos.Line {
			return l[i].Pos.Line < l[j].Pos.Line
		}
		if l[i].Pos.Column != l[j].Pos.Column {
			return l[i].Pos.Column < l[j].Pos.Column
		}
		return l[i].Message < l[j].Message
	})
}

// Err returns nil for an empty list and the list otherwise.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Unwrap exposes the individual errors to errors.Is / errors.As.
func (l List) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsParse reports whether err is a parse error.
func IsParse(err error) bool { return isKind(err, KindParse) }

// IsBuild reports whether err is a build error.
func IsBuild(err error) bool { return isKind(err, KindBuild) }

// IsResolution reports whether err is a resolution error.
func IsResolution(err error) bool { return isKind(err, KindResolution) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool { return isKind(err, KindInternal) }

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Flatten returns every *Error contained in err, expanding Lists.
func Flatten(err error) []*Error {
	if err == nil {
		return nil
	}
	var list List
	if errors.As(err, &list) {
		return list
	}
	var e *Error
	if errors.As(err, &e) {
		return []*Error{e}
	}
	return []*Error{{Kind: KindInternal, Code: CodeInternal, Message: err.Error()}}
}
