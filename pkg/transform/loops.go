package transform

import (
	"strconv"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// Unroll replaces every Loop in the tree with one copy of its body per
// iteration, substituting the loop variable. Nested loops unroll outer to
// inner. The input tree is not modified.
func Unroll(cfg *ir.Config, eval *Evaluator) (*ir.Config, error) {
	if eval == nil {
		eval = NewEvaluator(0)
	}
	u := &unroller{eval: eval}
	children, err := u.children(cfg.Children)
	if err != nil {
		return nil, err
	}
	return ir.RebuildConfig(cfg, children), nil
}

type unroller struct {
	eval *Evaluator
}

func (u *unroller) children(nodes []ir.Node) ([]ir.Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}
	out := make([]ir.Node, 0, len(nodes))
	for _, n := range nodes {
		if loop, ok := n.(*ir.Loop); ok {
			expanded, err := u.loop(loop)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}

		kids := ir.Common(n).Children
		if len(kids) == 0 {
			out = append(out, n)
			continue
		}
		unrolled, err := u.children(kids)
		if err != nil {
			return nil, err
		}
		out = append(out, ir.WithChildren(n, unrolled))
	}
	return out, nil
}

func (u *unroller) loop(loop *ir.Loop) ([]ir.Node, error) {
	values, err := iterationValues(loop)
	if err != nil {
		return nil, err
	}
	if err := checkShadowing(loop); err != nil {
		return nil, err
	}

	var out []ir.Node
	for _, value := range values {
		sub := u.substituter(loop.Var, value)
		for _, body := range loop.Children {
			mapped, err := ir.MapValues(body, sub)
			if err != nil {
				return nil, err
			}
			unrolled, err := u.children([]ir.Node{mapped})
			if err != nil {
				return nil, err
			}
			out = append(out, unrolled...)
		}
	}

	if err := checkDuplicates(loop, out); err != nil {
		return nil, err
	}
	return out, nil
}

// iterationValues returns the values a loop variable takes.
func iterationValues(loop *ir.Loop) ([]ir.Value, error) {
	if loop.Range == nil {
		return loop.Items, nil
	}

	lo, errLo := strconv.ParseInt(strings.TrimSpace(loop.Range.Lo), 10, 64)
	hi, errHi := strconv.ParseInt(strings.TrimSpace(loop.Range.Hi), 10, 64)
	if errLo != nil || errHi != nil {
		return nil, diag.ResolutionError(loop.Pos, diag.CodeBadRange,
			"loop range %s..%s must have integer bounds", loop.Range.Lo, loop.Range.Hi).WithPath(string(ir.KindLoop))
	}
	if hi < lo-1 {
		return nil, diag.ResolutionError(loop.Pos, diag.CodeBadRange,
			"loop range %d..%d is reversed", lo, hi).WithPath(string(ir.KindLoop))
	}

	values := make([]ir.Value, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		values = append(values, ir.Int(i).At(loop.Range.Pos))
	}
	return values, nil
}

func checkShadowing(loop *ir.Loop) error {
	var err error
	for _, body := range loop.Children {
		ir.Walk(body, func(n ir.Node) bool {
			if inner, ok := n.(*ir.Loop); ok && inner.Var == loop.Var && err == nil {
				err = diag.ResolutionError(inner.Pos, diag.CodeShadowedLoopVar,
					"loop variable %q shadows an enclosing loop", inner.Var)
			}
			return err == nil
		})
	}
	return err
}

func checkDuplicates(loop *ir.Loop, nodes []ir.Node) error {
	seen := map[string]bool{}
	for _, n := range nodes {
		if n.Label() == "" {
			continue
		}
		key := string(n.Kind()) + "\x00" + n.Label()
		if seen[key] {
			return diag.ResolutionError(loop.Pos, diag.CodeDuplicateLoopName,
				"loop generates duplicate name %q for %s", n.Label(), n.Kind())
		}
		seen[key] = true
	}
	return nil
}

// substituter returns a value mapper that replaces the loop variable.
func (u *unroller) substituter(name string, value ir.Value) ir.ValueFunc {
	var sub ir.ValueFunc
	sub = func(v ir.Value) (ir.Value, error) {
		switch v.Kind {
		case ir.ListValue:
			items := make([]ir.Value, len(v.Items))
			for i, item := range v.Items {
				mapped, err := sub(item)
				if err != nil {
					return ir.Value{}, err
				}
				items[i] = mapped
			}
			out := v
			out.Items = items
			return out, nil

		case ir.ObjectValue:
			fields, err := v.Fields.Map(func(_ string, f ir.Value) (ir.Value, error) { return sub(f) })
			if err != nil {
				return ir.Value{}, err
			}
			out := v
			out.Fields = fields
			return out, nil

		case ir.InterpValue:
			return u.substituteParts(v, name, value)
		}
		return v, nil
	}
	return sub
}

func (u *unroller) substituteParts(v ir.Value, name string, value ir.Value) (ir.Value, error) {
	whole := len(v.Parts) == 1
	parts := make([]ir.Part, 0, len(v.Parts))

	for _, p := range v.Parts {
		if !p.Expr || !mentions(p.Text, name) {
			parts = append(parts, p)
			continue
		}

		var result ir.Value
		switch {
		case IsBareName(p.Text):
			result = value
		case value.Kind == ir.InterpValue:
			// The item still interpolates; defer the arithmetic to the resolver.
			expr, ok := value.SingleExpr()
			if !ok {
				return ir.Value{}, diag.ResolutionError(v.Pos, diag.CodeBadExpression,
					"loop value %q of %s cannot be used in expression ${%s}", value.Text(), name, p.Text)
			}
			parts = append(parts, ir.Part{Text: replaceIdentifier(p.Text, name, "("+expr+")"), Expr: true})
			continue
		default:
			rewritten := replaceIdentifier(p.Text, name, literal(value))
			if len(Identifiers(rewritten)) > 0 {
				parts = append(parts, ir.Part{Text: rewritten, Expr: true})
				continue
			}
			evaluated, err := u.eval.Eval(rewritten, nil)
			if err != nil {
				return ir.Value{}, diag.ResolutionError(v.Pos, diag.CodeBadExpression,
					"invalid expression ${%s}", p.Text).WithCause(err)
			}
			result = evaluated
		}

		if whole {
			return result.At(v.Pos), nil
		}
		switch {
		case result.Kind == ir.InterpValue:
			parts = append(parts, result.Parts...)
		case !result.IsScalar():
			return ir.Value{}, diag.ResolutionError(v.Pos, diag.CodeBadExpression,
				"cannot interpolate %s value of ${%s} into a string", result.Kind, p.Text)
		default:
			parts = append(parts, ir.Part{Text: result.Text()})
		}
	}
	return ir.Interp(parts).At(v.Pos), nil
}

func mentions(expr, name string) bool {
	for _, id := range Identifiers(expr) {
		if id == name {
			return true
		}
	}
	return false
}
