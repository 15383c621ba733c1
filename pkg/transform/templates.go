package transform

import (
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// Expand merges @template spreads into the nodes that reference them.
//
// Template properties fill in keys a node does not set itself. When several
// templates set the same key the last spread wins, and local properties
// always win over any template. The merge is shallow. Template keys the node
// kind does not model become pass-through extras, appended after the node's
// own extras together with the template's directives. Spreads naming
// unknown templates are left on the node.
func Expand(cfg *ir.Config) (*ir.Config, error) {
	templates := map[string]*ir.Template{}
	for _, t := range ir.ChildrenOf[*ir.Template](cfg) {
		if _, dup := templates[t.Name]; !dup {
			templates[t.Name] = t
		}
	}

	children := make([]ir.Node, len(cfg.Children))
	for i, n := range cfg.Children {
		children[i] = expandNode(n, templates)
	}
	return ir.RebuildConfig(cfg, children), nil
}

func expandNode(n ir.Node, templates map[string]*ir.Template) ir.Node {
	if n.Kind() == ir.KindTemplate {
		return n
	}
	common := ir.Common(n)
	if len(common.Spreads) == 0 && len(common.Children) == 0 {
		return n
	}

	return ir.Rebuild(n, func(b *ir.Base) {
		if len(b.Spreads) > 0 {
			applyTemplates(n.Kind(), b, templates)
		}
		if len(b.Children) > 0 {
			children := make([]ir.Node, len(b.Children))
			for i, c := range b.Children {
				children[i] = expandNode(c, templates)
			}
			b.Children = children
		}
	})
}

func applyTemplates(kind ir.NodeKind, b *ir.Base, templates map[string]*ir.Template) {
	taken := map[string]bool{}
	for _, d := range b.Extras {
		if d.FromProperty {
			taken[d.Keyword] = true
		}
	}

	props := b.Props
	added := make([][]ir.Directive, len(b.Spreads))
	var unknown []ir.Spread

	// Later spreads take precedence, so walk them backwards and only fill
	// keys that are still free.
	for i := len(b.Spreads) - 1; i >= 0; i-- {
		tpl, ok := templates[b.Spreads[i].Name]
		if !ok {
			unknown = append([]ir.Spread{b.Spreads[i]}, unknown...)
			continue
		}

		var extras []ir.Directive
		tpl.Props.Each(func(key string, v ir.Value) {
			if ir.Modeled(kind, key) {
				props = props.Merge(ir.NewProperties(ir.Property{Key: key, Value: v}))
				return
			}
			if taken[key] {
				return
			}
			taken[key] = true
			extras = append(extras, ir.Directive{
				Keyword:      key,
				Args:         []ir.Value{v},
				Pos:          v.Pos,
				FromProperty: true,
			})
		})
		added[i] = append(extras, tpl.Extras...)
	}

	extras := append([]ir.Directive(nil), b.Extras...)
	for _, ds := range added {
		extras = append(extras, ds...)
	}

	b.Props = props
	b.Extras = extras
	b.Spreads = unknown
}
