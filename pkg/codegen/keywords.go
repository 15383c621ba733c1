package codegen

import (
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// renderer turns IR values into HAProxy tokens. The first error is kept and
// later calls become no-ops.
type renderer struct {
	err error
}

// value renders v as one token, or as space-separated tokens for lists.
// Raw values are written verbatim; other strings are quoted when needed.
func (r *renderer) value(v ir.Value, raw bool) string {
	if r.err != nil {
		return ""
	}
	switch v.Kind {
	case ir.InterpValue, ir.EnvValue:
		r.err = diag.InternalError(v.Pos, "unresolved value %q reached code generation", v.Text())
		return ""
	case ir.StringValue:
		if raw {
			return v.Str
		}
		return quote(v.Str)
	case ir.ListValue:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = r.value(item, raw)
		}
		return strings.Join(parts, " ")
	case ir.ObjectValue:
		var parts []string
		v.Fields.Each(func(key string, f ir.Value) {
			parts = append(parts, key, r.value(f, raw))
		})
		return strings.Join(parts, " ")
	}
	return v.Text()
}

func (r *renderer) values(vs []ir.Value, raw bool) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s := r.value(v, raw); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// property renders one modeled property as zero or more lines.
func (r *renderer) property(spec ir.KeywordSpec, v ir.Value) []string {
	switch spec.Shape {
	case ir.ShapeBool:
		if v.Kind == ir.BoolValue && !v.Bool {
			return nil
		}
		if v.Kind == ir.BoolValue {
			return []string{spec.Keyword}
		}
		return []string{spec.Keyword + " " + r.value(v, spec.Raw)}

	case ir.ShapeListLines:
		items := []ir.Value{v}
		if v.Kind == ir.ListValue {
			items = v.Items
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, spec.Keyword+" "+r.value(item, spec.Raw))
		}
		return lines

	case ir.ShapeListJoin:
		return []string{spec.Keyword + " " + r.joined(v, spec.Raw)}

	case ir.ShapeObjectLines:
		if v.Kind != ir.ObjectValue {
			return []string{spec.Keyword + " " + r.value(v, spec.Raw)}
		}
		var lines []string
		v.Fields.Each(func(key string, f ir.Value) {
			lines = append(lines, spec.Keyword+" "+key+" "+r.value(f, spec.Raw))
		})
		return lines
	}
	return []string{spec.Keyword + " " + r.value(v, spec.Raw)}
}

// option renders a property inline on a server, bind or stick-table line.
func (r *renderer) option(spec ir.KeywordSpec, v ir.Value) []string {
	switch spec.Shape {
	case ir.ShapeBool:
		if v.Kind == ir.BoolValue {
			if v.Bool {
				return []string{spec.Keyword}
			}
			return nil
		}
	case ir.ShapeListJoin:
		return []string{spec.Keyword, r.joined(v, spec.Raw)}
	}
	return []string{spec.Keyword, r.value(v, spec.Raw)}
}

func (r *renderer) joined(v ir.Value, raw bool) string {
	if v.Kind != ir.ListValue {
		return r.value(v, raw)
	}
	parts := make([]string, len(v.Items))
	for i, item := range v.Items {
		parts[i] = r.value(item, true)
	}
	return strings.Join(parts, ",")
}

// directive renders an extra as "keyword args". Property-style extras use
// the hyphenated keyword and write their value verbatim; a boolean value
// renders as the bare keyword when true and as nothing when false.
func (r *renderer) directive(d ir.Directive) (string, bool) {
	if !d.FromProperty {
		return joinTokens(d.Keyword, r.values(d.Args, false)...), true
	}
	keyword := ir.Hyphenate(d.Keyword)
	if len(d.Args) == 1 && d.Args[0].Kind == ir.BoolValue {
		return keyword, d.Args[0].Bool
	}
	return joinTokens(keyword, r.values(d.Args, true)...), true
}

func joinTokens(head string, rest ...string) string {
	if len(rest) == 0 {
		return head
	}
	return head + " " + strings.Join(rest, " ")
}

// quote double-quotes s when HAProxy would otherwise split or misread it.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'#\\") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, ch := range s {
		switch ch {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(ch)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}
