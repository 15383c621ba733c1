package validate

import (
	"strconv"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// PredefinedACLs are the ACL names HAProxy defines itself.
var PredefinedACLs = []string{
	"TRUE", "FALSE", "HTTP", "HTTP_1.0", "HTTP_1.1", "HTTP_2.0",
	"HTTP_CONTENT", "HTTP_URL_ABS", "HTTP_URL_SLASH", "HTTP_URL_STAR",
	"LOCALHOST", "METH_CONNECT", "METH_DELETE", "METH_GET", "METH_HEAD",
	"METH_OPTIONS", "METH_POST", "METH_PUT", "METH_TRACE", "RDP_COOKIE",
	"REQ_CONTENT", "WAIT_END",
}

// Validator checks a resolved configuration.
type Validator struct {
	schemas    *SchemaRegistry
	predefined map[string]bool
}

// New creates a validator using the given schema registry. A nil registry
// selects the built-in schemas.
func New(schemas *SchemaRegistry) *Validator {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	predefined := make(map[string]bool, len(PredefinedACLs))
	for _, name := range PredefinedACLs {
		predefined[name] = true
	}
	return &Validator{schemas: schemas, predefined: predefined}
}

// Validate checks cfg with the built-in schemas.
func Validate(cfg *ir.Config) (*ir.Config, error) {
	return New(nil).Validate(cfg)
}

// Validate checks references, value domains and uniqueness and returns cfg
// unchanged when it is valid. Every violation is collected into one
// diag.List. An interpolation or env() lookup left in the tree is reported
// as an internal error instead, since earlier passes must have removed it.
func (v *Validator) Validate(cfg *ir.Config) (*ir.Config, error) {
	if err := checkResolved(cfg); err != nil {
		return nil, err
	}

	c := &checker{v: v, cfg: cfg}
	c.collect()
	c.checkUniqueness()
	c.checkSpreads()
	for _, n := range cfg.Children {
		c.checkSection(n)
	}
	if c.err != nil {
		return nil, c.err
	}

	c.errs.Sort()
	if err := c.errs.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkResolved(cfg *ir.Config) error {
	var err error
	for _, top := range cfg.Children {
		if top.Kind() == ir.KindTemplate {
			continue
		}
		ir.Walk(top, func(n ir.Node) bool {
			if err != nil {
				return false
			}
			for _, val := range ir.Values(n) {
				if !val.IsResolved() {
					err = diag.InternalError(val.Pos, "unresolved value %q reached validation", val.Text()).
						WithPath(ir.Describe(n))
					return false
				}
			}
			return true
		})
	}
	return err
}

type checker struct {
	v   *Validator
	cfg *ir.Config

	proxies     map[string]bool
	defaultACLs map[string]bool
	templates   map[string]*ir.Template

	errs diag.List
	err  error
}

func (c *checker) add(e *diag.Error) {
	c.errs = append(c.errs, e)
}

func (c *checker) collect() {
	c.proxies = map[string]bool{}
	c.defaultACLs = map[string]bool{}
	c.templates = map[string]*ir.Template{}

	for _, n := range c.cfg.Children {
		switch n.Kind() {
		case ir.KindBackend, ir.KindListen:
			c.proxies[n.Label()] = true
		case ir.KindDefaults:
			for _, acl := range ir.ChildrenOf[*ir.ACL](n) {
				c.defaultACLs[acl.Name] = true
			}
		case ir.KindTemplate:
			if _, dup := c.templates[n.Label()]; !dup {
				c.templates[n.Label()] = n.(*ir.Template)
			}
		}
	}
}

// uniqueScope detects duplicate names within one namespace. section is the
// enclosing section for scopes nested in one.
type uniqueScope struct {
	what    string
	section ir.Node
	seen    map[string]bool
}

func newScope(what string) *uniqueScope {
	return &uniqueScope{what: what, seen: map[string]bool{}}
}

// nodePath describes n, prefixed by its section when n is nested.
func nodePath(section, n ir.Node) string {
	if section == nil || section == n {
		return ir.Describe(n)
	}
	return ir.Describe(section) + "/" + ir.Describe(n)
}

func (s *uniqueScope) check(c *checker, n ir.Node) {
	name := n.Label()
	if name == "" {
		return
	}
	if s.seen[name] {
		c.add(diag.ValidationError(n.Position(), diag.CodeDuplicate, "duplicate %s %q", s.what, name).
			WithPath(nodePath(s.section, n)))
		return
	}
	s.seen[name] = true
}

func (c *checker) checkUniqueness() {
	frontends := newScope("frontend")
	proxies := newScope("backend or listen")
	templates := newScope("template")
	variables := newScope("variable")
	defaults := newScope("defaults section")
	scripts := newScope("lua script")

	for _, n := range c.cfg.Children {
		switch n.Kind() {
		case ir.KindFrontend:
			frontends.check(c, n)
		case ir.KindBackend, ir.KindListen:
			proxies.check(c, n)
			servers := newScope("server")
			servers.section = n
			for _, child := range ir.Common(n).Children {
				if child.Kind() == ir.KindServer || child.Kind() == ir.KindServerTemplate {
					servers.check(c, child)
				}
			}
		case ir.KindTemplate:
			templates.check(c, n)
		case ir.KindVariableBinding:
			variables.check(c, n)
		case ir.KindDefaults:
			defaults.check(c, n)
		case ir.KindGlobal:
			scripts.section = n
			for _, s := range ir.ChildrenOf[*ir.LuaScript](n) {
				scripts.check(c, s)
			}
		}
	}
}

func (c *checker) checkSpreads() {
	for _, top := range c.cfg.Children {
		if tpl, ok := top.(*ir.Template); ok {
			for _, s := range tpl.Spreads {
				if _, declared := c.templates[s.Name]; declared {
					c.add(diag.ValidationError(s.Pos, diag.CodeTemplateChain,
						"template %q spreads template %q; templates cannot be chained", tpl.Name, s.Name).
						WithPath(ir.Describe(tpl)))
					continue
				}
				c.add(undefinedTemplate(tpl, s))
			}
			continue
		}

		ir.Walk(top, func(n ir.Node) bool {
			for _, s := range ir.Common(n).Spreads {
				c.add(undefinedTemplate(n, s))
			}
			return true
		})
	}
}

func undefinedTemplate(n ir.Node, s ir.Spread) *diag.Error {
	return diag.ValidationError(s.Pos, diag.CodeUndefinedRef, "template %q is not declared", s.Name).
		WithPath(ir.Describe(n))
}

func (c *checker) checkSection(n ir.Node) {
	if !n.Kind().IsSection() {
		return
	}

	var acls map[string]bool
	if n.Kind().IsProxy() || n.Kind() == ir.KindDefaults {
		acls = map[string]bool{}
		for _, acl := range ir.ChildrenOf[*ir.ACL](n) {
			acls[acl.Name] = true
		}
	}

	if target, ok := ir.Common(n).Props.Get("default_backend"); ok {
		c.checkBackendRef(n, target)
	}

	c.checkDomains(n, n)
	for _, child := range ir.Common(n).Children {
		switch ch := child.(type) {
		case *ir.Route:
			c.checkBackendRef(child, ch.Backend)
			c.checkCondition(child, ch.Cond, acls)
		case *ir.RequestRule:
			c.checkCondition(child, ch.Cond, acls)
		case *ir.ResponseRule:
			c.checkCondition(child, ch.Cond, acls)
		}
		c.checkDomains(n, child)
	}
}

func (c *checker) checkBackendRef(n ir.Node, target ir.Value) {
	name := target.Text()
	// Dynamic targets are computed at runtime by HAProxy.
	if strings.Contains(name, "%[") {
		return
	}
	if !c.proxies[name] {
		c.add(diag.ValidationError(target.Pos, diag.CodeUndefinedRef, "backend %q is not declared", name).
			WithPath(ir.Describe(n)))
	}
}

var conditionOperators = map[string]bool{"or": true, "||": true, "and": true, "&&": true, "!": true}

func (c *checker) checkCondition(n ir.Node, cond ir.Condition, local map[string]bool) {
	for _, term := range cond.Terms {
		name := strings.TrimPrefix(term.Text(), "!")
		if name == "" || conditionOperators[term.Text()] {
			continue
		}
		if local[name] || c.defaultACLs[name] || c.v.predefined[name] {
			continue
		}
		c.add(diag.ValidationError(term.Pos, diag.CodeUndefinedRef, "acl %q is not declared", name).
			WithPath(ir.Describe(n)))
	}
}

func (c *checker) checkDomains(section, n ir.Node) {
	if !c.v.schemas.HasSchema(n.Kind()) {
		return
	}
	data, sources := encode(n)
	violations, err := c.v.schemas.Check(n.Kind(), data)
	if err != nil {
		c.err = diag.InternalError(n.Position(), "schema check failed").WithCause(err)
		return
	}

	path := nodePath(section, n)
	for _, viol := range violations {
		src, ok := sources[viol.Field]
		pos := n.Position()
		if ok && src.Pos.IsValid() {
			pos = src.Pos
		}

		code := diag.CodeOutOfRange
		msg := viol.Message
		switch {
		case viol.Field == "":
		case viol.Enum:
			code = diag.CodeInvalidEnum
			msg = "invalid " + viol.Field + " " + strconv.Quote(src.Text())
		default:
			msg = viol.Field + " " + src.Text() + " is out of range: " + viol.Message
		}
		c.add(diag.ValidationError(pos, code, "%s", msg).WithPath(path))
	}
}
