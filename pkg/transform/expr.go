package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// Evaluator computes arithmetic inside ${...} interpolations with an
// embedded Starlark interpreter. Integers and durations are supported:
// int op int gives an int, duration +/- duration and duration * or / int
// give a duration; anything else is an error.
type Evaluator struct {
	maxSteps uint64
}

// NewEvaluator creates an evaluator. maxSteps bounds the work done by a
// single expression; zero selects a default.
func NewEvaluator(maxSteps uint64) *Evaluator {
	if maxSteps == 0 {
		maxSteps = 10000
	}
	return &Evaluator{maxSteps: maxSteps}
}

var durationToken = regexp.MustCompile(`\b([0-9]+)(us|ms|s|m|h|d)\b`)

// Eval evaluates expr with the given variable values.
func (e *Evaluator) Eval(expr string, vars map[string]ir.Value) (ir.Value, error) {
	src := prepare(expr)

	thread := &starlark.Thread{
		Name: "interpolation",
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print
		},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	env := starlark.StringDict{
		"duration": starlark.NewBuiltin("duration", builtinDuration),
	}
	for _, name := range Identifiers(expr) {
		v, ok := vars[name]
		if !ok {
			return ir.Value{}, fmt.Errorf("undefined name %q", name)
		}
		sv, err := toStarlarkValue(v)
		if err != nil {
			return ir.Value{}, fmt.Errorf("variable %q: %w", name, err)
		}
		env[name] = sv
	}

	result, err := starlark.Eval(thread, "interpolation", src, env)
	if err != nil {
		return ir.Value{}, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	return fromStarlarkValue(result)
}

// prepare rewrites DSL arithmetic into Starlark: duration literals become
// duration() calls and '/' becomes floor division.
func prepare(expr string) string {
	src := durationToken.ReplaceAllString(expr, `duration($1, "$2")`)

	var b strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case inQuote != 0:
			if ch == inQuote {
				inQuote = 0
			}
			b.WriteByte(ch)
		case ch == '"' || ch == '\'':
			inQuote = ch
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			b.WriteString("//")
			i++
		case ch == '/':
			b.WriteString("//")
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// identSpan is the location of an identifier inside an expression.
type identSpan struct {
	name       string
	start, end int
}

func scanIdentifiers(expr string) []identSpan {
	var out []identSpan
	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == '"' || ch == '\'':
			j := i + 1
			for j < len(expr) && expr[j] != ch {
				j++
			}
			i = j + 1
		case isDigit(ch):
			for i < len(expr) && (isDigit(expr[i]) || isIdentStart(expr[i])) {
				i++
			}
		case isIdentStart(ch):
			j := i
			for j < len(expr) && (isIdentStart(expr[j]) || isDigit(expr[j])) {
				j++
			}
			out = append(out, identSpan{name: expr[i:j], start: i, end: j})
			i = j
		default:
			i++
		}
	}
	return out
}

// Identifiers returns the distinct variable names referenced by expr, in
// order of first use.
func Identifiers(expr string) []string {
	var names []string
	seen := map[string]bool{}
	for _, s := range scanIdentifiers(expr) {
		if !seen[s.name] {
			seen[s.name] = true
			names = append(names, s.name)
		}
	}
	return names
}

// IsBareName reports whether expr is a single identifier.
func IsBareName(expr string) bool {
	spans := scanIdentifiers(expr)
	return len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(expr)
}

// replaceIdentifier substitutes every occurrence of name in expr.
func replaceIdentifier(expr, name, replacement string) string {
	var b strings.Builder
	last := 0
	for _, s := range scanIdentifiers(expr) {
		if s.name != name {
			continue
		}
		b.WriteString(expr[last:s.start])
		b.WriteString(replacement)
		last = s.end
	}
	b.WriteString(expr[last:])
	return b.String()
}

// literal renders v as expression source.
func literal(v ir.Value) string {
	switch v.Kind {
	case ir.IntValue, ir.DurationValue:
		return v.Text()
	case ir.StringValue, ir.WordValue:
		if _, ok := numeric(v.Str); ok {
			return v.Str
		}
	}
	return strconv.Quote(v.Text())
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// numeric parses text as an integer or duration value.
func numeric(s string) (ir.Value, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(i), true
	}
	if d, err := ir.ParseDuration(s); err == nil {
		return ir.Duration(d, s), true
	}
	return ir.Value{}, false
}

func toStarlarkValue(v ir.Value) (starlark.Value, error) {
	switch v.Kind {
	case ir.IntValue:
		return starlark.MakeInt64(v.Int), nil
	case ir.DurationValue:
		return durationValue(v.Dur), nil
	case ir.BoolValue:
		return starlark.Bool(v.Bool), nil
	case ir.StringValue, ir.WordValue:
		if n, ok := numeric(v.Str); ok {
			return toStarlarkValue(n)
		}
		return starlark.String(v.Str), nil
	default:
		return nil, fmt.Errorf("%s value cannot be used in arithmetic", v.Kind)
	}
}

func fromStarlarkValue(v starlark.Value) (ir.Value, error) {
	switch val := v.(type) {
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return ir.Value{}, fmt.Errorf("integer too large")
		}
		return ir.Int(i), nil
	case durationValue:
		return ir.Duration(time.Duration(val), ""), nil
	case starlark.String:
		return ir.String(string(val)), nil
	default:
		return ir.Value{}, fmt.Errorf("expression produced %s, want int or duration", v.Type())
	}
}

// builtinDuration implements duration(n, unit), emitted by prepare for
// duration literals.
func builtinDuration(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int64
	var unit string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &n, "unit", &unit); err != nil {
		return nil, err
	}
	d, err := ir.ParseDuration(strconv.FormatInt(n, 10) + unit)
	if err != nil {
		return nil, err
	}
	return durationValue(d), nil
}

// durationValue is a Starlark value carrying a time.Duration.
type durationValue time.Duration

var (
	_ starlark.HasBinary = durationValue(0)
	_ starlark.HasUnary  = durationValue(0)
)

func (d durationValue) String() string        { return ir.FormatDuration(time.Duration(d)) }
func (d durationValue) Type() string          { return "duration" }
func (d durationValue) Freeze()               {}
func (d durationValue) Truth() starlark.Bool  { return d != 0 }
func (d durationValue) Hash() (uint32, error) { return uint32(d) ^ uint32(int64(d)>>32), nil }

// Binary implements duration arithmetic. Returning nil, nil lets Starlark
// report an unsupported operand combination.
func (d durationValue) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch other := y.(type) {
	case durationValue:
		switch op {
		case syntax.PLUS:
			return d + other, nil
		case syntax.MINUS:
			if side == starlark.Left {
				return d - other, nil
			}
			return other - d, nil
		}
	case starlark.Int:
		n, ok := other.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		switch op {
		case syntax.STAR:
			return d * durationValue(n), nil
		case syntax.SLASHSLASH:
			if side != starlark.Left {
				return nil, nil
			}
			if n == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return d / durationValue(n), nil
		}
	}
	return nil, nil
}

// Unary implements negation.
func (d durationValue) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return -d, nil
	case syntax.PLUS:
		return d, nil
	}
	return nil, nil
}
