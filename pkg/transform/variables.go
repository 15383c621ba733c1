package transform

import (
	"os"
	"sort"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// DefaultMaxPasses bounds the fixpoint iteration of variable resolution.
const DefaultMaxPasses = 10

// EnvLookup returns the value of an environment variable.
type EnvLookup func(key string) (string, bool)

// OSEnv looks variables up in the process environment.
func OSEnv() EnvLookup {
	return os.LookupEnv
}

// MapEnv looks variables up in a fixed map.
func MapEnv(m map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// ResolveOptions configures variable resolution.
type ResolveOptions struct {
	// MaxPasses bounds the number of substitution passes over the variable
	// bindings. Zero selects DefaultMaxPasses.
	MaxPasses int

	// Evaluator computes arithmetic expressions. Nil selects a default.
	Evaluator *Evaluator
}

// Resolve substitutes every ${...} reference and env() lookup in the tree.
//
// Bindings are resolved first: env() values are looked up, then bindings are
// substituted into one another one level per pass until nothing changes or
// MaxPasses is reached. Anything still unresolved after that is a circular
// reference. Template nodes are left untouched.
func Resolve(cfg *ir.Config, env EnvLookup, opts ResolveOptions) (*ir.Config, error) {
	if env == nil {
		env = MapEnv(nil)
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	if opts.Evaluator == nil {
		opts.Evaluator = NewEvaluator(0)
	}

	r := &resolver{env: env, eval: opts.Evaluator, vars: map[string]ir.Value{}}
	bindings := ir.ChildrenOf[*ir.VariableBinding](cfg)

	for _, b := range bindings {
		v, err := r.resolveEnv(b.Value)
		if err != nil {
			return nil, err
		}
		if _, dup := r.vars[b.Name]; !dup {
			r.order = append(r.order, b.Name)
		}
		r.vars[b.Name] = v
	}

	if err := r.fixpoint(opts.MaxPasses); err != nil {
		return nil, err
	}

	children := make([]ir.Node, len(cfg.Children))
	for i, n := range cfg.Children {
		switch v := n.(type) {
		case *ir.Template:
			children[i] = n
		case *ir.VariableBinding:
			c := *v
			c.Value = r.vars[v.Name].At(v.Value.Pos)
			children[i] = &c
		default:
			mapped, err := ir.MapValues(n, r.resolveValue)
			if err != nil {
				return nil, err
			}
			children[i] = mapped
		}
	}
	return ir.RebuildConfig(cfg, children), nil
}

type resolver struct {
	env   EnvLookup
	eval  *Evaluator
	vars  map[string]ir.Value
	order []string
}

// resolveEnv replaces env() lookups in v.
func (r *resolver) resolveEnv(v ir.Value) (ir.Value, error) {
	switch v.Kind {
	case ir.EnvValue:
		if s, ok := r.env(v.Str); ok {
			if n, ok := numeric(s); ok {
				return n.At(v.Pos), nil
			}
			return ir.String(s).At(v.Pos), nil
		}
		if v.Default != nil {
			return r.resolveEnv(v.Default.At(v.Pos))
		}
		return ir.Value{}, diag.ResolutionError(v.Pos, diag.CodeMissingEnv,
			"environment variable %q is not set and has no default", v.Str)

	case ir.ListValue:
		out := v
		out.Items = make([]ir.Value, len(v.Items))
		for i, item := range v.Items {
			resolved, err := r.resolveEnv(item)
			if err != nil {
				return ir.Value{}, err
			}
			out.Items[i] = resolved
		}
		return out, nil

	case ir.ObjectValue:
		fields, err := v.Fields.Map(func(_ string, f ir.Value) (ir.Value, error) { return r.resolveEnv(f) })
		if err != nil {
			return ir.Value{}, err
		}
		out := v
		out.Fields = fields
		return out, nil
	}
	return v, nil
}

// fixpoint substitutes bindings into each other until no pass changes
// anything.
func (r *resolver) fixpoint(maxPasses int) error {
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, name := range r.order {
			v, c, err := r.substitute(r.vars[name])
			if err != nil {
				return err
			}
			if c {
				r.vars[name] = v
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var unresolved []string
	for _, name := range r.order {
		if !r.vars[name].IsResolved() {
			unresolved = append(unresolved, name)
		}
	}
	if len(unresolved) == 0 {
		return nil
	}
	sort.Strings(unresolved)
	first := r.vars[unresolved[0]]
	return diag.ResolutionError(first.Pos, diag.CodeCircularVariable,
		"circular variable reference among: %s", strings.Join(unresolved, ", "))
}

// substitute performs one level of substitution in v. A bare ${name}
// reference is replaced by the binding's current value even when that value
// is itself unresolved; a compound expression is evaluated only once every
// name it mentions is resolved.
func (r *resolver) substitute(v ir.Value) (ir.Value, bool, error) {
	switch v.Kind {
	case ir.ListValue:
		out := v
		out.Items = make([]ir.Value, len(v.Items))
		changed := false
		for i, item := range v.Items {
			s, c, err := r.substitute(item)
			if err != nil {
				return ir.Value{}, false, err
			}
			out.Items[i] = s
			changed = changed || c
		}
		return out, changed, nil

	case ir.ObjectValue:
		changed := false
		fields, err := v.Fields.Map(func(_ string, f ir.Value) (ir.Value, error) {
			s, c, err := r.substitute(f)
			changed = changed || c
			return s, err
		})
		if err != nil {
			return ir.Value{}, false, err
		}
		out := v
		out.Fields = fields
		return out, changed, nil

	case ir.InterpValue:
		return r.substituteInterp(v)
	}
	return v, false, nil
}

func (r *resolver) substituteInterp(v ir.Value) (ir.Value, bool, error) {
	if err := r.checkDefined(v); err != nil {
		return ir.Value{}, false, err
	}

	if expr, ok := v.SingleExpr(); ok {
		if IsBareName(expr) {
			return r.vars[expr].At(v.Pos), true, nil
		}
		if !r.ready(expr) {
			return v, false, nil
		}
		result, err := r.evaluate(expr, v.Pos)
		if err != nil {
			return ir.Value{}, false, err
		}
		return result.At(v.Pos), true, nil
	}

	parts := make([]ir.Part, 0, len(v.Parts))
	changed := false
	for _, p := range v.Parts {
		if !p.Expr {
			parts = append(parts, p)
			continue
		}

		var ref ir.Value
		switch {
		case IsBareName(p.Text):
			ref = r.vars[p.Text]
		case r.ready(p.Text):
			result, err := r.evaluate(p.Text, v.Pos)
			if err != nil {
				return ir.Value{}, false, err
			}
			ref = result
		default:
			parts = append(parts, p)
			continue
		}

		changed = true
		switch {
		case ref.Kind == ir.InterpValue:
			parts = append(parts, ref.Parts...)
		case !ref.IsScalar():
			return ir.Value{}, false, diag.ResolutionError(v.Pos, diag.CodeBadExpression,
				"cannot interpolate %s value of ${%s} into a string", ref.Kind, p.Text)
		default:
			parts = append(parts, ir.Part{Text: ref.Text()})
		}
	}
	return ir.Interp(parts).At(v.Pos), changed, nil
}

func (r *resolver) checkDefined(v ir.Value) error {
	for _, p := range v.Parts {
		if !p.Expr {
			continue
		}
		if strings.TrimSpace(p.Text) == "" {
			return diag.ResolutionError(v.Pos, diag.CodeBadExpression, "empty interpolation")
		}
		for _, name := range Identifiers(p.Text) {
			if _, ok := r.vars[name]; !ok {
				return diag.ResolutionError(v.Pos, diag.CodeUndefinedVariable,
					"undefined variable %q", name)
			}
		}
	}
	return nil
}

// ready reports whether every name in expr has a resolved value.
func (r *resolver) ready(expr string) bool {
	for _, name := range Identifiers(expr) {
		if !r.vars[name].IsResolved() {
			return false
		}
	}
	return true
}

func (r *resolver) evaluate(expr string, pos diag.Position) (ir.Value, error) {
	result, err := r.eval.Eval(expr, r.vars)
	if err != nil {
		return ir.Value{}, diag.ResolutionError(pos, diag.CodeBadExpression,
			"invalid expression ${%s}", expr).WithCause(err)
	}
	return result, nil
}

// resolveValue fully resolves a tree value once all bindings are resolved.
func (r *resolver) resolveValue(v ir.Value) (ir.Value, error) {
	v, err := r.resolveEnv(v)
	if err != nil {
		return ir.Value{}, err
	}
	for !v.IsResolved() {
		next, changed, err := r.substitute(v)
		if err != nil {
			return ir.Value{}, err
		}
		if !changed {
			return ir.Value{}, diag.InternalError(v.Pos, "value could not be resolved")
		}
		v = next
	}
	return v, nil
}
