package ir

import (
	"strconv"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/dsl"
)

// placement lists the sections each nested keyword may appear in. Keywords
// mapped to nil are top-level only.
var placement = map[string][]NodeKind{
	"bind":            {KindFrontend, KindListen},
	"acl":             {KindFrontend, KindBackend, KindListen, KindDefaults},
	"http-request":    {KindFrontend, KindBackend, KindListen},
	"tcp-request":     {KindFrontend, KindBackend, KindListen},
	"http-response":   {KindFrontend, KindBackend, KindListen},
	"tcp-response":    {KindFrontend, KindBackend, KindListen},
	"use_backend":     {KindFrontend, KindListen},
	"servers":         {KindBackend, KindListen},
	"server":          {KindBackend, KindListen},
	"server-template": {KindBackend, KindListen},
	"health-check":    {KindBackend, KindListen},
	"stick-table":     {KindFrontend, KindBackend, KindListen},
	"lua":             {KindGlobal},
	"template":        nil,
	"global":          nil,
	"defaults":        nil,
	"frontend":        nil,
	"backend":         nil,
	"listen":          nil,
}

// Build converts a syntax tree into an IR configuration. The first
// structural problem aborts the build with a *diag.Error of kind build.
func Build(tree *dsl.Node) (*Config, error) {
	if tree == nil || tree.Rule != dsl.RuleFile {
		return nil, diag.InternalError(diag.Position{}, "build: expected a file node")
	}

	cfg := &Config{Base: Base{Pos: tree.Pos}}
	items := tree.Children
	if len(items) == 1 && items[0].Rule == dsl.RuleConfig {
		cfg.setName(tokenValue(items[0].Token))
		cfg.Pos = items[0].Pos
		items = items[0].Children
	}

	b := &builder{}
	children, err := b.topItems(items, false)
	if err != nil {
		return nil, err
	}
	cfg.Children = children
	return cfg, nil
}

type builder struct{}

func misplaced(pos diag.Position, format string, args ...interface{}) error {
	return diag.BuildError(pos, format, args...).WithCode(diag.CodeMisplaced)
}

func (b *builder) topItems(items []*dsl.Node, inLoop bool) ([]Node, error) {
	var out []Node
	for _, item := range items {
		switch item.Rule {
		case dsl.RuleLet:
			if inLoop {
				return nil, misplaced(item.Pos, "variable %q cannot be declared inside a for loop", item.Name())
			}
			binding, err := b.let(item)
			if err != nil {
				return nil, err
			}
			out = append(out, binding)

		case dsl.RuleFor:
			loop, err := b.loop(item, func(body []*dsl.Node) ([]Node, error) {
				return b.topItems(body, true)
			})
			if err != nil {
				return nil, err
			}
			out = append(out, loop)

		case dsl.RuleBlock:
			node, err := b.topBlock(item)
			if err != nil {
				return nil, err
			}
			out = append(out, node)

		case dsl.RuleProperty:
			return nil, misplaced(item.Pos, "property %q outside any section", item.Name())
		case dsl.RuleDirective:
			return nil, misplaced(item.Pos, "directive %q outside any section", item.Name())
		case dsl.RuleSpread:
			return nil, misplaced(item.Pos, "spread @%s outside any section", item.Name())
		default:
			return nil, diag.BuildError(item.Pos, "unexpected %s at top level", item.Rule)
		}
	}
	return out, nil
}

func (b *builder) let(item *dsl.Node) (Node, error) {
	v, err := b.value(item.Children[0], true)
	if err != nil {
		return nil, err
	}
	return &VariableBinding{
		Base:  Base{Name: item.Name(), Pos: item.Pos},
		Value: v,
	}, nil
}

func (b *builder) loop(item *dsl.Node, body func([]*dsl.Node) ([]Node, error)) (Node, error) {
	loop := &Loop{Base: Base{Pos: item.Pos}, Var: item.Name()}

	iter := item.Children[0]
	if len(iter.Children) == 1 && iter.Children[0].Rule == dsl.RuleRange {
		rng := iter.Children[0]
		lo, hi, _ := dsl.SplitRange(rng.Token.Value)
		loop.Range = &Range{Lo: lo, Hi: hi, Pos: rng.Pos}
	} else {
		loop.Items = []Value{}
		for _, n := range iter.Children {
			v, err := b.value(n, false)
			if err != nil {
				return nil, err
			}
			loop.Items = append(loop.Items, v)
		}
	}

	children, err := body(item.Body())
	if err != nil {
		return nil, err
	}
	loop.Children = children
	return loop, nil
}

func labelCount(item *dsl.Node, min, max int) error {
	n := len(item.Labels())
	if n < min || n > max {
		switch {
		case max == 0:
			return diag.BuildError(item.Pos, "%s block takes no name", item.Name())
		case min == max:
			return diag.BuildError(item.Pos, "%s block requires exactly %d name", item.Name(), min)
		default:
			return diag.BuildError(item.Pos, "%s block takes at most %d name", item.Name(), max)
		}
	}
	return nil
}

func (b *builder) topBlock(item *dsl.Node) (Node, error) {
	kw := item.Name()
	switch kw {
	case "template":
		if err := labelCount(item, 1, 1); err != nil {
			return nil, err
		}
		base, err := b.templateBody(item)
		if err != nil {
			return nil, err
		}
		return &Template{Base: base}, nil

	case "global":
		if err := labelCount(item, 0, 0); err != nil {
			return nil, err
		}
		base, err := b.section(KindGlobal, item)
		if err != nil {
			return nil, err
		}
		return &Global{Base: base}, nil

	case "defaults":
		if err := labelCount(item, 0, 1); err != nil {
			return nil, err
		}
		base, err := b.section(KindDefaults, item)
		if err != nil {
			return nil, err
		}
		return &Defaults{Base: base}, nil

	case "frontend", "backend", "listen":
		if err := labelCount(item, 1, 1); err != nil {
			return nil, err
		}
		kind := NodeKind(kw)
		base, err := b.section(kind, item)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindFrontend:
			return &Frontend{Base: base}, nil
		case KindBackend:
			return &Backend{Base: base}, nil
		default:
			return &Listen{Base: base}, nil
		}
	}

	if allowed, known := placement[kw]; known && len(allowed) > 0 {
		return nil, misplaced(item.Pos, "%s block must be inside %s", kw, joinKinds(allowed))
	}
	return nil, diag.BuildError(item.Pos, "unknown top-level block %q", kw)
}

func joinKinds(kinds []NodeKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	if len(names) == 1 {
		return "a " + names[0]
	}
	return "a " + strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}

// newBase starts a node from a block, naming it after its first label.
func newBase(item *dsl.Node) Base {
	base := Base{Pos: item.Pos}
	if labels := item.Labels(); len(labels) > 0 {
		base.setName(tokenValue(labels[0].Token))
	}
	return base
}

func (b *builder) section(kind NodeKind, item *dsl.Node) (Base, error) {
	base := newBase(item)
	for _, child := range item.Body() {
		if err := b.sectionItem(kind, &base, child); err != nil {
			return Base{}, err
		}
	}
	return base, nil
}

func (b *builder) templateBody(item *dsl.Node) (Base, error) {
	base := newBase(item)
	for _, child := range item.Body() {
		switch child.Rule {
		case dsl.RuleProperty:
			v, err := b.value(child.Children[0], false)
			if err != nil {
				return Base{}, err
			}
			base.Props = base.Props.With(child.Name(), v.At(child.Pos))
		case dsl.RuleDirective:
			if err := b.directive(KindTemplate, &base, child); err != nil {
				return Base{}, err
			}
		case dsl.RuleSpread:
			base.Spreads = append(base.Spreads, Spread{Name: child.Name(), Pos: child.Pos})
		default:
			return Base{}, diag.BuildError(child.Pos, "template %q may only contain properties and directives", base.Name)
		}
	}
	return base, nil
}

func (b *builder) sectionItem(kind NodeKind, base *Base, item *dsl.Node) error {
	switch item.Rule {
	case dsl.RuleProperty:
		return b.property(kind, base, item)
	case dsl.RuleSpread:
		base.Spreads = append(base.Spreads, Spread{Name: item.Name(), Pos: item.Pos})
		return nil
	case dsl.RuleLet:
		return misplaced(item.Pos, "variable %q must be declared at top level", item.Name())
	case dsl.RuleFor:
		loop, err := b.loop(item, func(body []*dsl.Node) ([]Node, error) {
			return b.loopBody(kind, body)
		})
		if err != nil {
			return err
		}
		base.Children = append(base.Children, loop)
		return nil
	}

	kw := item.Name()
	if allowed, known := placement[kw]; known {
		if !containsKind(allowed, kind) {
			if len(allowed) == 0 {
				return misplaced(item.Pos, "%s must be declared at top level", kw)
			}
			return misplaced(item.Pos, "%s is not allowed in %s, only in %s", kw, kind, joinKinds(allowed))
		}
		nodes, err := b.nested(kind, item)
		if err != nil {
			return err
		}
		base.Children = append(base.Children, nodes...)
		return nil
	}

	if item.Rule == dsl.RuleBlock {
		return diag.BuildError(item.Pos, "unknown block %q in %s", kw, kind)
	}
	return b.directive(kind, base, item)
}

// loopBody builds the body of a for loop nested in a section. Loops there
// generate child nodes only.
func (b *builder) loopBody(kind NodeKind, body []*dsl.Node) ([]Node, error) {
	var scratch Base
	for _, item := range body {
		if err := b.sectionItem(kind, &scratch, item); err != nil {
			return nil, err
		}
	}
	if scratch.Props.Len() > 0 || len(scratch.Extras) > 0 || len(scratch.Spreads) > 0 {
		return nil, diag.BuildError(body[0].Pos, "a for loop inside %s may only generate blocks", kind)
	}
	return scratch.Children, nil
}

func containsKind(kinds []NodeKind, k NodeKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (b *builder) property(kind NodeKind, base *Base, item *dsl.Node) error {
	v, err := b.value(item.Children[0], false)
	if err != nil {
		return err
	}
	key := item.Name()
	if Modeled(kind, key) {
		if cur, ok := base.Props.Get(key); ok && cur.Kind == ObjectValue && v.Kind == ObjectValue {
			fields := cur.Fields
			v.Fields.Each(func(field string, f Value) {
				fields = fields.With(field, f)
			})
			v = Object(fields)
		}
		base.Props = base.Props.With(key, v.At(item.Pos))
		return nil
	}
	base.Extras = append(base.Extras, Directive{
		Keyword:      key,
		Args:         []Value{v},
		Pos:          item.Pos,
		FromProperty: true,
	})
	return nil
}

// directive stores a directive line. Lines spelling a modeled single-value
// keyword become properties; everything else passes through as an extra.
func (b *builder) directive(kind NodeKind, base *Base, item *dsl.Node) error {
	args, err := b.args(item.Children)
	if err != nil {
		return err
	}
	kw := item.Name()

	if spec, ok := LookupKeyword(kind, strings.ReplaceAll(kw, "-", "_")); ok && spec.Keyword == kw {
		switch {
		case spec.Shape == ShapeBool && len(args) == 0:
			base.Props = base.Props.With(spec.Name, Bool(true).At(item.Pos))
			return nil
		case isScalarShape(spec.Shape) && len(args) == 1:
			base.Props = base.Props.With(spec.Name, args[0])
			return nil
		case spec.Shape == ShapeObjectLines && len(args) == 2 && args[0].IsScalar():
			base.Props = base.Props.With(spec.Name, withField(base.Props, spec.Name, args[0].Text(), args[1], item.Pos))
			return nil
		}
	}

	base.Extras = append(base.Extras, Directive{Keyword: kw, Args: args, Pos: item.Pos})
	return nil
}

// withField returns the object property key of props with field set to v.
// "timeout connect 5s" and "timeout: { connect: 5s }" fill the same object.
func withField(props Properties, key, field string, v Value, pos diag.Position) Value {
	fields := NewProperties()
	if cur, ok := props.Get(key); ok && cur.Kind == ObjectValue {
		fields = cur.Fields
		pos = cur.Pos
	}
	return Object(fields.With(field, v)).At(pos)
}

func isScalarShape(s Shape) bool {
	switch s {
	case ShapeScalar, ShapeInt, ShapeDuration, ShapeWord, ShapeString:
		return true
	}
	return false
}

// plainBody fills a leaf block (server, bind, health-check, ...) that holds
// only properties, directives and spreads.
func (b *builder) plainBody(kind NodeKind, base *Base, item *dsl.Node) error {
	for _, child := range item.Body() {
		switch child.Rule {
		case dsl.RuleProperty:
			if err := b.property(kind, base, child); err != nil {
				return err
			}
		case dsl.RuleDirective:
			if err := b.directive(kind, base, child); err != nil {
				return err
			}
		case dsl.RuleSpread:
			base.Spreads = append(base.Spreads, Spread{Name: child.Name(), Pos: child.Pos})
		case dsl.RuleLet:
			return misplaced(child.Pos, "variable %q must be declared at top level", child.Name())
		default:
			return misplaced(child.Pos, "%s block cannot contain %s %q", kind, child.Rule, child.Name())
		}
	}
	return nil
}

func (b *builder) nested(kind NodeKind, item *dsl.Node) ([]Node, error) {
	switch kw := item.Name(); kw {
	case "bind":
		return one(b.bind(item))
	case "acl":
		return b.acls(item)
	case "http-request", "tcp-request":
		return b.rules(item, true)
	case "http-response", "tcp-response":
		return b.rules(item, false)
	case "use_backend":
		return b.routes(item)
	case "servers":
		return b.servers(kind, item)
	case "server":
		return one(b.server(item))
	case "server-template":
		return one(b.serverTemplate(item))
	case "health-check":
		if item.Rule != dsl.RuleBlock {
			return nil, diag.BuildError(item.Pos, "health-check must be a block")
		}
		if err := labelCount(item, 0, 0); err != nil {
			return nil, err
		}
		hc := &HealthCheck{Base: Base{Pos: item.Pos}}
		if err := b.plainBody(KindHealthCheck, &hc.Base, item); err != nil {
			return nil, err
		}
		return []Node{hc}, nil
	case "stick-table":
		if item.Rule != dsl.RuleBlock {
			return nil, diag.BuildError(item.Pos, "stick-table must be a block")
		}
		if err := labelCount(item, 0, 0); err != nil {
			return nil, err
		}
		st := &StickTable{Base: Base{Pos: item.Pos}}
		if err := b.plainBody(KindStickTable, &st.Base, item); err != nil {
			return nil, err
		}
		return []Node{st}, nil
	case "lua":
		return b.lua(item)
	default:
		return nil, diag.BuildError(item.Pos, "unsupported nested keyword %q", kw)
	}
}

func one(n Node, err error) ([]Node, error) {
	if err != nil {
		return nil, err
	}
	return []Node{n}, nil
}

func (b *builder) bind(item *dsl.Node) (Node, error) {
	bind := &Bind{Base: Base{Pos: item.Pos}}

	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, diag.BuildError(item.Pos, "bind requires an address")
		}
		bind.Address = args[0]
		bind.Args = args[1:]
		return bind, nil
	}

	labels := item.Labels()
	if len(labels) > 0 {
		bind.Address = tokenValue(labels[0].Token)
		for _, l := range labels[1:] {
			opt := tokenValue(l.Token)
			if spec, ok := LookupKeyword(KindBind, opt.Text()); ok && spec.Shape == ShapeBool {
				bind.Props = bind.Props.With(spec.Name, Bool(true).At(l.Pos))
				continue
			}
			bind.Args = append(bind.Args, opt)
		}
	}
	if err := b.plainBody(KindBind, &bind.Base, item); err != nil {
		return nil, err
	}
	if addr, ok := bind.Props.Get("address"); ok {
		if len(labels) > 0 {
			return nil, diag.BuildError(item.Pos, "bind address given twice")
		}
		bind.Address = addr
		bind.Props = bind.Props.Without("address")
	}
	if len(labels) == 0 && bind.Address.Kind == StringValue && bind.Address.Str == "" {
		return nil, diag.BuildError(item.Pos, "bind requires an address")
	}
	return bind, nil
}

func (b *builder) acls(item *dsl.Node) ([]Node, error) {
	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, diag.BuildError(item.Pos, "acl requires a name and a criterion")
		}
		acl := &ACL{Base: Base{Pos: item.Pos}, Criterion: args[1], Args: args[2:]}
		acl.setName(args[0])
		return []Node{acl}, nil
	}

	if err := labelCount(item, 0, 1); err != nil {
		return nil, err
	}
	labels := item.Labels()

	var out []Node
	for _, child := range item.Body() {
		if child.Rule != dsl.RuleDirective {
			return nil, diag.BuildError(child.Pos, "acl block may only contain acl lines")
		}
		args, err := b.args(child.Children)
		if err != nil {
			return nil, err
		}
		acl := &ACL{Base: Base{Pos: child.Pos}}
		if len(labels) == 1 {
			// acl NAME { criterion args }
			acl.setName(tokenValue(labels[0].Token))
			acl.Criterion = tokenValue(child.Token).At(child.Pos)
			acl.Args = args
		} else {
			// acl { NAME criterion args }
			if len(args) == 0 {
				return nil, diag.BuildError(child.Pos, "acl %q requires a criterion", child.Name())
			}
			acl.setName(tokenValue(child.Token))
			acl.Criterion = args[0]
			acl.Args = args[1:]
		}
		out = append(out, acl)
	}
	return out, nil
}

// splitCondition separates trailing "if ..." / "unless ..." terms.
func splitCondition(args []Value) ([]Value, Condition) {
	for i, a := range args {
		if a.Kind == WordValue && (a.Str == "if" || a.Str == "unless") {
			return args[:i], Condition{Keyword: a.Str, Terms: args[i+1:]}
		}
	}
	return args, Condition{}
}

func (b *builder) rules(item *dsl.Node, request bool) ([]Node, error) {
	protocol := strings.SplitN(item.Name(), "-", 2)[0]

	makeRule := func(pos diag.Position, action string, args []Value) (Node, error) {
		if action == "" {
			return nil, diag.BuildError(pos, "%s rule requires an action", item.Name())
		}
		rest, cond := splitCondition(args)
		if cond.Keyword != "" && len(cond.Terms) == 0 {
			return nil, diag.BuildError(pos, "empty %s condition", cond.Keyword)
		}
		spec := RuleSpec{Protocol: protocol, Action: action, Args: rest, Cond: cond}
		if request {
			return &RequestRule{Base: Base{Pos: pos}, RuleSpec: spec}, nil
		}
		return &ResponseRule{Base: Base{Pos: pos}, RuleSpec: spec}, nil
	}

	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, diag.BuildError(item.Pos, "%s rule requires an action", item.Name())
		}
		return one(makeRule(item.Pos, args[0].Text(), args[1:]))
	}

	if err := labelCount(item, 0, 0); err != nil {
		return nil, err
	}
	var out []Node
	for _, child := range item.Body() {
		if child.Rule != dsl.RuleDirective {
			return nil, diag.BuildError(child.Pos, "%s block may only contain rule lines", item.Name())
		}
		args, err := b.args(child.Children)
		if err != nil {
			return nil, err
		}
		rule, err := makeRule(child.Pos, child.Name(), args)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (b *builder) routes(item *dsl.Node) ([]Node, error) {
	makeRoute := func(pos diag.Position, backend Value, args []Value) (Node, error) {
		rest, cond := splitCondition(args)
		if len(rest) > 0 {
			return nil, diag.BuildError(pos, "use_backend takes one backend, then if/unless")
		}
		if cond.Keyword != "" && len(cond.Terms) == 0 {
			return nil, diag.BuildError(pos, "empty %s condition", cond.Keyword)
		}
		return &Route{Base: Base{Pos: pos}, Backend: backend, Cond: cond}, nil
	}

	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, diag.BuildError(item.Pos, "use_backend requires a backend name")
		}
		return one(makeRoute(item.Pos, args[0], args[1:]))
	}

	if err := labelCount(item, 0, 0); err != nil {
		return nil, err
	}
	var out []Node
	for _, child := range item.Body() {
		if child.Rule != dsl.RuleDirective {
			return nil, diag.BuildError(child.Pos, "use_backend block may only contain routing lines")
		}
		args, err := b.args(child.Children)
		if err != nil {
			return nil, err
		}
		route, err := makeRoute(child.Pos, tokenValue(child.Token).At(child.Pos), args)
		if err != nil {
			return nil, err
		}
		out = append(out, route)
	}
	return out, nil
}

func (b *builder) servers(kind NodeKind, item *dsl.Node) ([]Node, error) {
	if item.Rule != dsl.RuleBlock {
		return nil, diag.BuildError(item.Pos, "servers must be a block")
	}
	if err := labelCount(item, 0, 0); err != nil {
		return nil, err
	}
	return b.serverItems(kind, item.Body())
}

func (b *builder) serverItems(kind NodeKind, items []*dsl.Node) ([]Node, error) {
	var out []Node
	for _, child := range items {
		switch {
		case child.Rule == dsl.RuleFor:
			loop, err := b.loop(child, func(body []*dsl.Node) ([]Node, error) {
				return b.serverItems(kind, body)
			})
			if err != nil {
				return nil, err
			}
			out = append(out, loop)
		case child.Name() == "server" && (child.Rule == dsl.RuleBlock || child.Rule == dsl.RuleDirective):
			n, err := b.server(child)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		case child.Name() == "server-template" && (child.Rule == dsl.RuleBlock || child.Rule == dsl.RuleDirective):
			n, err := b.serverTemplate(child)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		default:
			return nil, misplaced(child.Pos, "servers block may only contain servers, got %q", child.Name())
		}
	}
	return out, nil
}

func (b *builder) server(item *dsl.Node) (Node, error) {
	srv := &Server{Base: Base{Pos: item.Pos}}

	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, diag.BuildError(item.Pos, "server requires a name and an address")
		}
		srv.setName(args[0])
		srv.Props = srv.Props.With("address", args[1])
		srv.Args = args[2:]
		return srv, nil
	}

	if err := labelCount(item, 1, 1); err != nil {
		return nil, err
	}
	srv.Base = newBase(item)
	if err := b.plainBody(KindServer, &srv.Base, item); err != nil {
		return nil, err
	}
	return srv, nil
}

func (b *builder) serverTemplate(item *dsl.Node) (Node, error) {
	st := &ServerTemplate{Base: Base{Pos: item.Pos}}

	if item.Rule == dsl.RuleDirective {
		args, err := b.args(item.Children)
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, diag.BuildError(item.Pos, "server-template requires a prefix, a count and an address")
		}
		st.setName(args[0])
		st.Props = st.Props.With("count", args[1]).With("address", args[2])
		st.Args = args[3:]
		return st, nil
	}

	if err := labelCount(item, 1, 1); err != nil {
		return nil, err
	}
	st.Base = newBase(item)
	if err := b.plainBody(KindServerTemplate, &st.Base, item); err != nil {
		return nil, err
	}
	return st, nil
}

func (b *builder) lua(item *dsl.Node) ([]Node, error) {
	if item.Rule != dsl.RuleBlock {
		return nil, diag.BuildError(item.Pos, "lua must be a block")
	}
	if err := labelCount(item, 0, 0); err != nil {
		return nil, err
	}

	var out []Node
	for _, child := range item.Body() {
		switch {
		case child.Name() == "load" && child.Rule == dsl.RuleProperty:
			v, err := b.value(child.Children[0], false)
			if err != nil {
				return nil, err
			}
			out = append(out, &LuaLoad{Base: Base{Pos: child.Pos}, Path: v})

		case child.Name() == "load" && child.Rule == dsl.RuleDirective:
			args, err := b.args(child.Children)
			if err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, diag.BuildError(child.Pos, "lua load takes exactly one path")
			}
			out = append(out, &LuaLoad{Base: Base{Pos: child.Pos}, Path: args[0]})

		case child.Name() == "script" && child.Rule == dsl.RuleDirective:
			if len(child.Children) != 2 || child.Children[1].Token.Type != dsl.TokenString {
				return nil, diag.BuildError(child.Pos, "lua script takes a name and a string body")
			}
			name := child.Children[0].Token
			if name.HasInterpolation() {
				return nil, diag.BuildError(child.Pos, "lua script name cannot be interpolated")
			}
			out = append(out, &LuaScript{
				Base: Base{Name: name.Value, Pos: child.Pos},
				Body: child.Children[1].Token.Value,
			})

		default:
			return nil, diag.BuildError(child.Pos, "lua block may only contain load and script entries")
		}
	}
	return out, nil
}

func (b *builder) args(nodes []*dsl.Node) ([]Value, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := b.value(n, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// tokenValue converts a label or keyword token into a value.
func tokenValue(tok dsl.Token) Value {
	if tok.HasInterpolation() {
		return Interp(convertParts(tok.Parts)).At(tok.Pos())
	}
	if tok.Type == dsl.TokenString {
		return String(tok.Value).At(tok.Pos())
	}
	return Word(tok.Value).At(tok.Pos())
}

func convertParts(parts []dsl.Part) []Part {
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = Part{Text: p.Text, Expr: p.Expr}
	}
	return out
}

func (b *builder) value(n *dsl.Node, allowEnv bool) (Value, error) {
	switch n.Rule {
	case dsl.RuleValue:
		return scalar(n.Token)

	case dsl.RuleList:
		items := make([]Value, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := b.value(c, false)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return List(items...).At(n.Pos), nil

	case dsl.RuleObject:
		var fields Properties
		for _, c := range n.Children {
			v, err := b.value(c.Children[0], false)
			if err != nil {
				return Value{}, err
			}
			fields = fields.With(c.Name(), v.At(c.Pos))
		}
		return Object(fields).At(n.Pos), nil

	case dsl.RuleEnv:
		if !allowEnv {
			return Value{}, misplaced(n.Pos, "env() is only allowed as a variable value")
		}
		var def *Value
		if len(n.Children) == 1 {
			d, err := b.value(n.Children[0], false)
			if err != nil {
				return Value{}, err
			}
			def = &d
		}
		return Env(n.Token.Value, def).At(n.Pos), nil
	}
	return Value{}, diag.BuildError(n.Pos, "unexpected %s where a value was expected", n.Rule)
}

func scalar(tok dsl.Token) (Value, error) {
	pos := tok.Pos()
	switch tok.Type {
	case dsl.TokenString, dsl.TokenWord:
		return tokenValue(tok), nil
	case dsl.TokenInt:
		i, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return Value{}, diag.BuildError(pos, "integer %s out of range", tok.Value)
		}
		return Int(i).At(pos), nil
	case dsl.TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return Value{}, diag.BuildError(pos, "invalid number %s", tok.Value)
		}
		return Float(f).At(pos), nil
	case dsl.TokenDuration:
		d, err := ParseDuration(tok.Value)
		if err != nil {
			return Value{}, diag.BuildError(pos, "%v", err)
		}
		return Duration(d, tok.Value).At(pos), nil
	case dsl.TokenBool:
		return Bool(tok.Value == "true").At(pos), nil
	case dsl.TokenRange:
		return Word(tok.Value).At(pos), nil
	}
	return Value{}, diag.BuildError(pos, "unexpected %s where a value was expected", tok.Type)
}
