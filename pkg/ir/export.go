package ir

import (
	"strings"
)

// childGroups maps child kinds to the key they are exported under.
var childGroups = map[NodeKind]string{
	KindBind:           "binds",
	KindACL:            "acls",
	KindRequestRule:    "request_rules",
	KindResponseRule:   "response_rules",
	KindRoute:          "routes",
	KindServer:         "servers",
	KindServerTemplate: "server_templates",
	KindHealthCheck:    "health_checks",
	KindStickTable:     "stick_tables",
	KindLuaScript:      "lua_scripts",
	KindLuaLoad:        "lua_loads",
	KindLoop:           "loops",
}

// sectionGroups lists the groups always present on a section, so policies
// can count them without existence checks.
var sectionGroups = map[NodeKind][]string{
	KindGlobal:   {"lua_scripts", "lua_loads"},
	KindDefaults: {"acls"},
	KindFrontend: {"binds", "acls", "request_rules", "response_rules", "routes", "stick_tables"},
	KindBackend:  {"acls", "request_rules", "response_rules", "servers", "server_templates", "health_checks", "stick_tables"},
	KindListen: {"binds", "acls", "request_rules", "response_rules", "routes", "servers",
		"server_templates", "health_checks", "stick_tables"},
}

// Export returns a plain-data view of the configuration suitable for JSON
// or YAML encoding and for policy evaluation.
func Export(cfg *Config) map[string]interface{} {
	out := map[string]interface{}{
		"name":      cfg.Name,
		"global":    nil,
		"defaults":  []interface{}{},
		"frontends": []interface{}{},
		"backends":  []interface{}{},
		"listens":   []interface{}{},
		"templates": []interface{}{},
		"variables": map[string]interface{}{},
		"loops":     []interface{}{},
	}

	for _, child := range cfg.Children {
		switch n := child.(type) {
		case *Global:
			out["global"] = exportNode(n)
		case *Defaults:
			out["defaults"] = append(out["defaults"].([]interface{}), exportNode(n))
		case *Frontend:
			out["frontends"] = append(out["frontends"].([]interface{}), exportNode(n))
		case *Backend:
			out["backends"] = append(out["backends"].([]interface{}), exportNode(n))
		case *Listen:
			out["listens"] = append(out["listens"].([]interface{}), exportNode(n))
		case *Template:
			out["templates"] = append(out["templates"].([]interface{}), exportNode(n))
		case *VariableBinding:
			out["variables"].(map[string]interface{})[n.Name] = n.Value.Interface()
		case *Loop:
			out["loops"] = append(out["loops"].([]interface{}), exportNode(n))
		}
	}
	return out
}

func exportNode(n Node) map[string]interface{} {
	b := n.base()
	m := map[string]interface{}{
		"kind": string(n.Kind()),
		"line": b.Pos.Line,
	}
	if b.Name != "" {
		m["name"] = b.Name
	}
	m["properties"] = b.Props.Interface()

	if len(b.Extras) > 0 {
		extras := make([]interface{}, len(b.Extras))
		for i, d := range b.Extras {
			extras[i] = directiveText(d)
		}
		m["extras"] = extras
	}
	if len(b.Spreads) > 0 {
		spreads := make([]interface{}, len(b.Spreads))
		for i, s := range b.Spreads {
			spreads[i] = s.Name
		}
		m["spreads"] = spreads
	}

	switch v := n.(type) {
	case *ACL:
		m["criterion"] = v.Criterion.Text()
		m["args"] = texts(v.Args)
	case *Bind:
		m["address"] = v.Address.Text()
		m["args"] = texts(v.Args)
	case *Server:
		m["args"] = texts(v.Args)
	case *ServerTemplate:
		m["args"] = texts(v.Args)
	case *RequestRule:
		exportRule(m, v.RuleSpec)
	case *ResponseRule:
		exportRule(m, v.RuleSpec)
	case *Route:
		m["backend"] = v.Backend.Text()
		exportCondition(m, v.Cond)
	case *LuaScript:
		m["path"] = v.Path
	case *LuaLoad:
		m["path"] = v.Path.Text()
	case *Loop:
		m["var"] = v.Var
		if v.Range != nil {
			m["range"] = v.Range.Lo + ".." + v.Range.Hi
		} else {
			m["items"] = texts(v.Items)
		}
	}

	for _, key := range sectionGroups[n.Kind()] {
		m[key] = []interface{}{}
	}
	for _, child := range b.Children {
		key, ok := childGroups[child.Kind()]
		if !ok {
			continue
		}
		list, _ := m[key].([]interface{})
		m[key] = append(list, exportNode(child))
	}
	return m
}

func exportRule(m map[string]interface{}, r RuleSpec) {
	m["protocol"] = r.Protocol
	m["action"] = r.Action
	m["args"] = texts(r.Args)
	exportCondition(m, r.Cond)
}

func exportCondition(m map[string]interface{}, c Condition) {
	if c.IsZero() {
		return
	}
	m["condition"] = map[string]interface{}{
		"keyword": c.Keyword,
		"terms":   texts(c.Terms),
	}
}

func texts(vs []Value) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v.Text()
	}
	return out
}

func directiveText(d Directive) string {
	parts := []string{d.Keyword}
	for _, a := range d.Args {
		parts = append(parts, a.Text())
	}
	return strings.Join(parts, " ")
}
