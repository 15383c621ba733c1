package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	StringValue ValueKind = iota
	IntValue
	FloatValue
	BoolValue
	DurationValue
	WordValue
	ListValue
	ObjectValue
	InterpValue
	EnvValue
)

func (k ValueKind) String() string {
	switch k {
	case StringValue:
		return "string"
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case BoolValue:
		return "bool"
	case DurationValue:
		return "duration"
	case WordValue:
		return "word"
	case ListValue:
		return "list"
	case ObjectValue:
		return "object"
	case InterpValue:
		return "interpolation"
	case EnvValue:
		return "env"
	default:
		return "unknown"
	}
}

// Part is a piece of an interpolated value: literal text or the source of a
// ${...} expression.
type Part struct {
	Text string `json:"text"`
	Expr bool   `json:"expr,omitempty"`
}

// Value is a tagged property value.
type Value struct {
	Kind ValueKind

	// Str holds String and Word text, the source spelling of a Duration and
	// the key of an Env value.
	Str string

	Int   int64
	Float float64
	Bool  bool
	Dur   time.Duration

	Items  []Value
	Fields Properties

	// Parts holds an unresolved interpolation.
	Parts []Part

	// Default is the fallback of an Env value.
	Default *Value

	Pos diag.Position
}

// String returns a string value.
func String(s string) Value { return Value{Kind: StringValue, Str: s} }

// Word returns a bare-word value.
func Word(s string) Value { return Value{Kind: WordValue, Str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: IntValue, Int: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{Kind: FloatValue, Float: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: BoolValue, Bool: b} }

// Duration returns a duration value. The spelling is kept when given so that
// literals render exactly as written.
func Duration(d time.Duration, spelling string) Value {
	return Value{Kind: DurationValue, Dur: d, Str: spelling}
}

// List returns a list value.
func List(items ...Value) Value { return Value{Kind: ListValue, Items: items} }

// Object returns an object value.
func Object(fields Properties) Value { return Value{Kind: ObjectValue, Fields: fields} }

// Interp returns an interpolation. Parts without any expression collapse into
// a plain string.
func Interp(parts []Part) Value {
	hasExpr := false
	for _, p := range parts {
		if p.Expr {
			hasExpr = true
			break
		}
	}
	if !hasExpr {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.Text)
		}
		return String(b.String())
	}
	return Value{Kind: InterpValue, Parts: parts}
}

// Env returns an environment lookup with an optional default.
func Env(key string, def *Value) Value {
	return Value{Kind: EnvValue, Str: key, Default: def}
}

// At returns a copy of v positioned at pos.
func (v Value) At(pos diag.Position) Value {
	v.Pos = pos
	return v
}

// IsScalar reports whether v is a single resolved scalar.
func (v Value) IsScalar() bool {
	switch v.Kind {
	case StringValue, IntValue, FloatValue, BoolValue, DurationValue, WordValue:
		return true
	}
	return false
}

// IsResolved reports whether no interpolation or env lookup remains at any
// depth.
func (v Value) IsResolved() bool {
	switch v.Kind {
	case InterpValue, EnvValue:
		return false
	case ListValue:
		for _, item := range v.Items {
			if !item.IsResolved() {
				return false
			}
		}
	case ObjectValue:
		resolved := true
		v.Fields.Each(func(_ string, f Value) {
			if !f.IsResolved() {
				resolved = false
			}
		})
		return resolved
	}
	return true
}

// SingleExpr returns the expression source when v is an interpolation that
// consists of exactly one ${...} and nothing else.
func (v Value) SingleExpr() (string, bool) {
	if v.Kind != InterpValue || len(v.Parts) != 1 || !v.Parts[0].Expr {
		return "", false
	}
	return v.Parts[0].Text, true
}

// Text renders the value as target text, without quoting.
func (v Value) Text() string {
	switch v.Kind {
	case StringValue, WordValue:
		return v.Str
	case IntValue:
		return strconv.FormatInt(v.Int, 10)
	case FloatValue:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case BoolValue:
		return strconv.FormatBool(v.Bool)
	case DurationValue:
		if v.Str != "" {
			return v.Str
		}
		return FormatDuration(v.Dur)
	case ListValue:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	case ObjectValue:
		var parts []string
		v.Fields.Each(func(k string, f Value) {
			parts = append(parts, k+": "+f.Text())
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case InterpValue:
		var b strings.Builder
		for _, p := range v.Parts {
			if p.Expr {
				b.WriteString("${")
				b.WriteString(p.Text)
				b.WriteString("}")
				continue
			}
			b.WriteString(p.Text)
		}
		return b.String()
	case EnvValue:
		if v.Default != nil {
			return fmt.Sprintf("env(%q, %s)", v.Str, v.Default.Text())
		}
		return fmt.Sprintf("env(%q)", v.Str)
	}
	return ""
}

// Interface returns the value as plain Go data for encoding.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case IntValue:
		return v.Int
	case FloatValue:
		return v.Float
	case BoolValue:
		return v.Bool
	case ListValue:
		items := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			items[i] = item.Interface()
		}
		return items
	case ObjectValue:
		return v.Fields.Interface()
	default:
		return v.Text()
	}
}

var durationLiteral = regexp.MustCompile(`^(-?[0-9]+)(us|ms|s|m|h|d)$`)

var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
	{"us", time.Microsecond},
}

// ParseDuration parses a duration literal such as 5s or 100ms.
func ParseDuration(s string) (time.Duration, error) {
	m := durationLiteral.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	for _, u := range durationUnits {
		if u.suffix == m[2] {
			return time.Duration(n) * u.unit, nil
		}
	}
	return 0, fmt.Errorf("invalid duration unit in %q", s)
}

// FormatDuration renders d in the largest unit that represents it exactly.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	for _, u := range durationUnits {
		if d%u.unit == 0 {
			return strconv.FormatInt(int64(d/u.unit), 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d/time.Microsecond), 10) + "us"
}
