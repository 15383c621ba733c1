package ir

import (
	"fmt"
)

// Clone returns a shallow copy of n. Slices are shared with the original and
// must be replaced, not modified, on the copy.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *Config:
		c := *v
		return &c
	case *Global:
		c := *v
		return &c
	case *Defaults:
		c := *v
		return &c
	case *Frontend:
		c := *v
		return &c
	case *Backend:
		c := *v
		return &c
	case *Listen:
		c := *v
		return &c
	case *ACL:
		c := *v
		return &c
	case *Bind:
		c := *v
		return &c
	case *Server:
		c := *v
		return &c
	case *ServerTemplate:
		c := *v
		return &c
	case *HealthCheck:
		c := *v
		return &c
	case *StickTable:
		c := *v
		return &c
	case *RequestRule:
		c := *v
		return &c
	case *ResponseRule:
		c := *v
		return &c
	case *Route:
		c := *v
		return &c
	case *Template:
		c := *v
		return &c
	case *VariableBinding:
		c := *v
		return &c
	case *LuaScript:
		c := *v
		return &c
	case *LuaLoad:
		c := *v
		return &c
	case *Loop:
		c := *v
		return &c
	default:
		panic(fmt.Sprintf("ir: unknown node type %T", n))
	}
}

// Rebuild returns a copy of n with fn applied to the copy's shared fields.
func Rebuild(n Node, fn func(b *Base)) Node {
	c := Clone(n)
	fn(c.base())
	return c
}

// WithChildren returns a copy of n with its children replaced.
func WithChildren(n Node, children []Node) Node {
	return Rebuild(n, func(b *Base) { b.Children = children })
}

// WithProps returns a copy of n with its properties replaced.
func WithProps(n Node, props Properties) Node {
	return Rebuild(n, func(b *Base) { b.Props = props })
}

// RebuildConfig returns a copy of cfg with new top-level children.
func RebuildConfig(cfg *Config, children []Node) *Config {
	c := *cfg
	c.Children = children
	return &c
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.base().Children {
		Walk(c, fn)
	}
}

// ValueFunc maps one value.
type ValueFunc func(v Value) (Value, error)

// MapValues returns a copy of n and its descendants with every value passed
// through fn: the name, properties, extras arguments and typed fields. fn
// sees top-level values; it recurses into lists and objects itself.
func MapValues(n Node, fn ValueFunc) (Node, error) {
	c := Clone(n)
	b := c.base()

	name, err := fn(b.NameValue())
	if err != nil {
		return nil, err
	}
	b.setName(name)

	if b.Props, err = b.Props.Map(func(_ string, v Value) (Value, error) { return fn(v) }); err != nil {
		return nil, err
	}

	if len(b.Extras) > 0 {
		extras := make([]Directive, len(b.Extras))
		for i, d := range b.Extras {
			if d.Args, err = mapSlice(d.Args, fn); err != nil {
				return nil, err
			}
			extras[i] = d
		}
		b.Extras = extras
	}

	if err := mapTyped(c, fn); err != nil {
		return nil, err
	}

	if len(b.Children) > 0 {
		children := make([]Node, len(b.Children))
		for i, child := range b.Children {
			if children[i], err = MapValues(child, fn); err != nil {
				return nil, err
			}
		}
		b.Children = children
	}
	return c, nil
}

func mapTyped(n Node, fn ValueFunc) error {
	var err error
	switch v := n.(type) {
	case *ACL:
		if v.Criterion, err = fn(v.Criterion); err != nil {
			return err
		}
		v.Args, err = mapSlice(v.Args, fn)
	case *Bind:
		if v.Address, err = fn(v.Address); err != nil {
			return err
		}
		v.Args, err = mapSlice(v.Args, fn)
	case *Server:
		v.Args, err = mapSlice(v.Args, fn)
	case *ServerTemplate:
		v.Args, err = mapSlice(v.Args, fn)
	case *RequestRule:
		v.RuleSpec, err = mapRule(v.RuleSpec, fn)
	case *ResponseRule:
		v.RuleSpec, err = mapRule(v.RuleSpec, fn)
	case *Route:
		if v.Backend, err = fn(v.Backend); err != nil {
			return err
		}
		v.Cond.Terms, err = mapSlice(v.Cond.Terms, fn)
	case *VariableBinding:
		v.Value, err = fn(v.Value)
	case *LuaLoad:
		v.Path, err = fn(v.Path)
	case *Loop:
		v.Items, err = mapSlice(v.Items, fn)
	}
	return err
}

func mapRule(r RuleSpec, fn ValueFunc) (RuleSpec, error) {
	var err error
	if r.Args, err = mapSlice(r.Args, fn); err != nil {
		return r, err
	}
	r.Cond.Terms, err = mapSlice(r.Cond.Terms, fn)
	return r, err
}

func mapSlice(vs []Value, fn ValueFunc) ([]Value, error) {
	if len(vs) == 0 {
		return vs, nil
	}
	out := make([]Value, len(vs))
	for i, v := range vs {
		mapped, err := fn(v)
		if err != nil {
			return nil, err
		}
		out[i] = mapped
	}
	return out, nil
}

// Values returns every value held directly by n (not its children), in the
// same order MapValues visits them.
func Values(n Node) []Value {
	var out []Value
	_, _ = MapValues(WithChildren(n, nil), func(v Value) (Value, error) {
		out = append(out, v)
		return v, nil
	})
	return out
}
