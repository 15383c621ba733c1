package codegen

import (
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// Header is the comment written at the top of generated output.
const Header = "# Generated by haproxy-translate"

// ScriptLocator returns the path a lua-load line uses for an inline script.
type ScriptLocator func(name string) string

// DefaultLocator places scripts next to the configuration as NAME.lua.
func DefaultLocator(name string) string {
	return name + ".lua"
}

// Options configures code generation.
type Options struct {
	// OmitHeader drops the generated-by comment.
	OmitHeader bool

	// Indent is the body indentation. Empty selects four spaces.
	Indent string

	// Locator maps inline script names to paths. Nil selects DefaultLocator.
	Locator ScriptLocator
}

// sectionOrder is the order section groups are emitted in.
var sectionOrder = []ir.NodeKind{ir.KindGlobal, ir.KindDefaults, ir.KindFrontend, ir.KindBackend, ir.KindListen}

// Generate renders cfg as HAProxy configuration text. Output depends only on
// cfg and opts.
func Generate(cfg *ir.Config, opts Options) (string, error) {
	if opts.Indent == "" {
		opts.Indent = "    "
	}
	if opts.Locator == nil {
		opts.Locator = DefaultLocator
	}

	g := &generator{opts: opts}
	var sections []string
	if !opts.OmitHeader {
		sections = append(sections, Header)
	}
	for _, kind := range sectionOrder {
		for _, n := range cfg.Children {
			if n.Kind() != kind {
				continue
			}
			sections = append(sections, g.section(n))
			if g.err != nil {
				return "", g.err
			}
		}
	}
	return strings.Join(sections, "\n\n") + "\n", nil
}

type generator struct {
	renderer
	opts Options
}

func (g *generator) section(n ir.Node) string {
	header := string(n.Kind())
	if n.Label() != "" {
		header += " " + n.Label()
	}

	lines := []string{header}
	for _, l := range g.body(n) {
		lines = append(lines, g.opts.Indent+l)
	}
	return strings.Join(lines, "\n")
}

// childOrder is the order typed children are emitted in. default_backend
// sits between routes and stick tables.
var childOrder = []ir.NodeKind{
	ir.KindLuaLoad,
	ir.KindBind,
	ir.KindACL,
	ir.KindRequestRule,
	ir.KindResponseRule,
	ir.KindRoute,
	"default_backend",
	ir.KindStickTable,
	ir.KindHealthCheck,
	ir.KindServer,
}

func (g *generator) body(n ir.Node) []string {
	common := ir.Common(n)
	var lines []string

	for _, spec := range ir.Keywords(n.Kind()) {
		if spec.Name == "default_backend" {
			continue
		}
		if v, ok := common.Props.Get(spec.Name); ok {
			lines = append(lines, g.property(spec, v)...)
		}
	}

	for _, kind := range childOrder {
		if kind == "default_backend" {
			if v, ok := common.Props.Get("default_backend"); ok {
				lines = append(lines, "default_backend "+g.value(v, true))
			}
			continue
		}
		for _, child := range common.Children {
			if groupOf(child.Kind()) == kind {
				lines = append(lines, g.child(child)...)
			}
		}
	}

	for _, d := range common.Extras {
		if line, ok := g.directive(d); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// groupOf maps a child kind to its output group. Servers and server
// templates share one group so their declaration order is kept; inline
// scripts load alongside lua-load lines.
func groupOf(kind ir.NodeKind) ir.NodeKind {
	switch kind {
	case ir.KindServerTemplate:
		return ir.KindServer
	case ir.KindLuaScript:
		return ir.KindLuaLoad
	}
	return kind
}

func (g *generator) child(n ir.Node) []string {
	switch v := n.(type) {
	case *ir.Bind:
		return []string{g.bind(v)}
	case *ir.ACL:
		tokens := []string{v.Name, g.value(v.Criterion, true)}
		tokens = append(tokens, g.values(v.Args, false)...)
		return []string{joinTokens("acl", tokens...)}
	case *ir.RequestRule:
		return []string{g.rule(v.Protocol+"-request", v.RuleSpec)}
	case *ir.ResponseRule:
		return []string{g.rule(v.Protocol+"-response", v.RuleSpec)}
	case *ir.Route:
		return []string{joinTokens("use_backend", append([]string{g.value(v.Backend, true)}, g.condition(v.Cond)...)...)}
	case *ir.StickTable:
		return []string{g.stickTable(v)}
	case *ir.HealthCheck:
		return g.healthCheck(v)
	case *ir.Server:
		return []string{g.server(ir.KindServer, v.Name, v.Props, v.Args, v.Extras)}
	case *ir.ServerTemplate:
		return []string{g.server(ir.KindServerTemplate, v.Name, v.Props, v.Args, v.Extras)}
	case *ir.LuaLoad:
		return []string{"lua-load " + g.value(v.Path, false)}
	case *ir.LuaScript:
		return []string{"lua-load " + quote(g.opts.Locator(v.Name))}
	}
	return nil
}

func (g *generator) condition(c ir.Condition) []string {
	if c.IsZero() {
		return nil
	}
	return append([]string{c.Keyword}, g.values(c.Terms, true)...)
}

func (g *generator) rule(keyword string, r ir.RuleSpec) string {
	tokens := []string{r.Action}
	tokens = append(tokens, g.values(r.Args, false)...)
	tokens = append(tokens, g.condition(r.Cond)...)
	return joinTokens(keyword, tokens...)
}

// options renders the modeled props of kind inline, skipping the leading
// positional entries that have no keyword.
func (g *generator) options(kind ir.NodeKind, props ir.Properties) []string {
	var tokens []string
	for _, spec := range ir.Keywords(kind) {
		if spec.Keyword == "" {
			continue
		}
		if v, ok := props.Get(spec.Name); ok {
			tokens = append(tokens, g.option(spec, v)...)
		}
	}
	return tokens
}

func (g *generator) inlineExtras(extras []ir.Directive) []string {
	var tokens []string
	for _, d := range extras {
		if token, ok := g.directive(d); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (g *generator) bind(b *ir.Bind) string {
	addr := b.Address
	if v, ok := b.Props.Get("address"); ok {
		addr = v
	}
	tokens := []string{g.value(addr, true)}
	tokens = append(tokens, g.options(ir.KindBind, b.Props)...)
	tokens = append(tokens, g.values(b.Args, false)...)
	tokens = append(tokens, g.inlineExtras(b.Extras)...)
	return joinTokens("bind", tokens...)
}

func (g *generator) server(kind ir.NodeKind, name string, props ir.Properties, args []ir.Value, extras []ir.Directive) string {
	tokens := []string{name}
	if count, ok := props.Get("count"); ok {
		tokens = append(tokens, g.value(count, true))
	}

	if addr, ok := props.Get("address"); ok {
		text := g.value(addr, true)
		if port, ok := props.Get("port"); ok && !hasPort(text) {
			text += ":" + g.value(port, true)
		}
		tokens = append(tokens, text)
	}

	tokens = append(tokens, g.options(kind, props)...)
	tokens = append(tokens, g.values(args, false)...)
	tokens = append(tokens, g.inlineExtras(extras)...)
	return joinTokens(string(kind), tokens...)
}

// hasPort reports whether an address already ends in ":port".
func hasPort(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 || idx == len(addr)-1 {
		return false
	}
	for _, ch := range addr[idx+1:] {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return !strings.HasSuffix(addr[:idx], ":")
}

func (g *generator) stickTable(st *ir.StickTable) string {
	tokens := g.options(ir.KindStickTable, st.Props)
	tokens = append(tokens, g.inlineExtras(st.Extras)...)
	return joinTokens("stick-table", tokens...)
}

func (g *generator) healthCheck(hc *ir.HealthCheck) []string {
	lines := []string{"option httpchk"}

	var send []string
	for _, f := range []struct{ prop, token string }{
		{"method", "meth"},
		{"uri", "uri"},
		{"version", "ver"},
	} {
		if v, ok := hc.Props.Get(f.prop); ok {
			send = append(send, f.token, g.value(v, true))
		}
	}
	if v, ok := hc.Props.Get("host"); ok {
		send = append(send, "hdr", "Host", g.value(v, true))
	}
	if len(send) > 0 {
		lines = append(lines, joinTokens("http-check send", send...))
	}

	if v, ok := hc.Props.Get("expect_status"); ok {
		lines = append(lines, "http-check expect status "+g.value(v, true))
	} else if v, ok := hc.Props.Get("expect"); ok {
		lines = append(lines, "http-check expect "+g.value(v, true))
	}

	for _, d := range hc.Extras {
		if line, ok := g.directive(d); ok {
			lines = append(lines, "http-check "+line)
		}
	}
	return lines
}
