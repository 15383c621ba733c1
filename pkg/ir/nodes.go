package ir

import (
	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// NodeKind identifies an IR node variant.
type NodeKind string

const (
	KindConfig          NodeKind = "config"
	KindGlobal          NodeKind = "global"
	KindDefaults        NodeKind = "defaults"
	KindFrontend        NodeKind = "frontend"
	KindBackend         NodeKind = "backend"
	KindListen          NodeKind = "listen"
	KindACL             NodeKind = "acl"
	KindBind            NodeKind = "bind"
	KindServer          NodeKind = "server"
	KindServerTemplate  NodeKind = "server-template"
	KindHealthCheck     NodeKind = "health-check"
	KindStickTable      NodeKind = "stick-table"
	KindRequestRule     NodeKind = "request-rule"
	KindResponseRule    NodeKind = "response-rule"
	KindRoute           NodeKind = "route"
	KindTemplate        NodeKind = "template"
	KindVariableBinding NodeKind = "variable"
	KindLuaScript       NodeKind = "lua-script"
	KindLuaLoad         NodeKind = "lua-load"
	KindLoop            NodeKind = "loop"
)

// Node is an IR node. The set of implementations is closed: every variant
// embeds Base, which provides the unexported sealing method.
type Node interface {
	Kind() NodeKind
	Position() diag.Position
	Label() string
	base() *Base
}

// Directive is an unmodeled keyword line passed through to the output.
type Directive struct {
	Keyword string
	Args    []Value
	Pos     diag.Position

	// FromProperty marks directives written as "key: value" properties.
	// Their keywords are spelled with hyphens on output.
	FromProperty bool
}

// Spread is an unexpanded @template reference.
type Spread struct {
	Name string
	Pos  diag.Position
}

// Base holds the fields shared by every node.
type Base struct {
	// Name is the node identifier, empty for anonymous nodes. When the name
	// contains interpolations NameParts holds them and Name their source.
	Name      string
	NameParts []Part

	Pos      diag.Position
	Props    Properties
	Extras   []Directive
	Spreads  []Spread
	Children []Node
}

func (b *Base) base() *Base { return b }

// Position returns the node's source position.
func (b *Base) Position() diag.Position { return b.Pos }

// Label returns the node's name.
func (b *Base) Label() string { return b.Name }

// NameValue returns the node name as a value.
func (b *Base) NameValue() Value {
	if b.NameParts != nil {
		return Interp(b.NameParts).At(b.Pos)
	}
	return String(b.Name).At(b.Pos)
}

func (b *Base) setName(v Value) {
	if v.Kind == InterpValue {
		b.NameParts = v.Parts
		b.Name = v.Text()
		return
	}
	b.NameParts = nil
	b.Name = v.Text()
}

// Condition is an if/unless suffix on a rule or route.
type Condition struct {
	// Keyword is "if" or "unless", empty when there is no condition.
	Keyword string
	Terms   []Value
}

// IsZero reports whether the condition is absent.
func (c Condition) IsZero() bool { return c.Keyword == "" }

// RuleSpec is the body of an http/tcp request or response rule.
type RuleSpec struct {
	Protocol string // http or tcp
	Action   string
	Args     []Value
	Cond     Condition
}

// Range is the raw bounds of a loop range.
type Range struct {
	Lo, Hi string
	Pos    diag.Position
}

// Config is the root node. Children are the top-level declarations.
type Config struct{ Base }

// Global is the global section.
type Global struct{ Base }

// Defaults is a defaults section, optionally named.
type Defaults struct{ Base }

// Frontend is a frontend proxy.
type Frontend struct{ Base }

// Backend is a backend proxy.
type Backend struct{ Base }

// Listen is a combined frontend and backend proxy.
type Listen struct{ Base }

// ACL is a named access control list.
type ACL struct {
	Base
	Criterion Value
	Args      []Value
}

// Bind is a listening address.
type Bind struct {
	Base
	Address Value
	Args    []Value
}

// Server is a backend server. Args holds options given on a directive line.
type Server struct {
	Base
	Args []Value
}

// ServerTemplate generates a numbered series of servers.
type ServerTemplate struct {
	Base
	Args []Value
}

// HealthCheck configures HTTP health checks for a backend.
type HealthCheck struct{ Base }

// StickTable is a proxy stick table.
type StickTable struct{ Base }

// RequestRule is an http-request or tcp-request rule.
type RequestRule struct {
	Base
	RuleSpec
}

// ResponseRule is an http-response or tcp-response rule.
type ResponseRule struct {
	Base
	RuleSpec
}

// Route is a use_backend switching rule.
type Route struct {
	Base
	Backend Value
	Cond    Condition
}

// Template is a named reusable property set.
type Template struct{ Base }

// VariableBinding is a let declaration.
type VariableBinding struct {
	Base
	Value Value
}

// LuaScript is an inline script extracted to its own file. Path is empty
// until a script locator assigns one.
type LuaScript struct {
	Base
	Body string
	Path string
}

// LuaLoad loads an existing script file.
type LuaLoad struct {
	Base
	Path Value
}

// Loop repeats its children once per item or range value. Exactly one of
// Items and Range is used.
type Loop struct {
	Base
	Var   string
	Items []Value
	Range *Range
}

func (*Config) Kind() NodeKind          { return KindConfig }
func (*Global) Kind() NodeKind          { return KindGlobal }
func (*Defaults) Kind() NodeKind        { return KindDefaults }
func (*Frontend) Kind() NodeKind        { return KindFrontend }
func (*Backend) Kind() NodeKind         { return KindBackend }
func (*Listen) Kind() NodeKind          { return KindListen }
func (*ACL) Kind() NodeKind             { return KindACL }
func (*Bind) Kind() NodeKind            { return KindBind }
func (*Server) Kind() NodeKind          { return KindServer }
func (*ServerTemplate) Kind() NodeKind  { return KindServerTemplate }
func (*HealthCheck) Kind() NodeKind     { return KindHealthCheck }
func (*StickTable) Kind() NodeKind      { return KindStickTable }
func (*RequestRule) Kind() NodeKind     { return KindRequestRule }
func (*ResponseRule) Kind() NodeKind    { return KindResponseRule }
func (*Route) Kind() NodeKind           { return KindRoute }
func (*Template) Kind() NodeKind        { return KindTemplate }
func (*VariableBinding) Kind() NodeKind { return KindVariableBinding }
func (*LuaScript) Kind() NodeKind       { return KindLuaScript }
func (*LuaLoad) Kind() NodeKind         { return KindLuaLoad }
func (*Loop) Kind() NodeKind            { return KindLoop }

// IsProxy reports whether k is a frontend, backend or listen section.
func (k NodeKind) IsProxy() bool {
	return k == KindFrontend || k == KindBackend || k == KindListen
}

// IsSection reports whether k is a top-level rendered section.
func (k NodeKind) IsSection() bool {
	return k == KindGlobal || k == KindDefaults || k.IsProxy()
}

// Common returns a copy of the node's shared fields.
func Common(n Node) Base {
	return *n.base()
}

// Describe returns "kind name" for messages and paths.
func Describe(n Node) string {
	if n.Label() == "" {
		return string(n.Kind())
	}
	return string(n.Kind()) + " " + n.Label()
}

// ChildrenOf returns the direct children of n that have type T.
func ChildrenOf[T Node](n Node) []T {
	var out []T
	for _, c := range n.base().Children {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
