package dsl

import (
	"fmt"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// Syntax tree rule names.
const (
	RuleFile      = "file"
	RuleConfig    = "config"
	RuleLet       = "let"
	RuleFor       = "for"
	RuleIterable  = "iterable"
	RuleSpread    = "spread"
	RuleProperty  = "property"
	RuleBlock     = "block"
	RuleDirective = "directive"
	RuleLabel     = "label"
	RuleValue     = "value"
	RuleList      = "list"
	RuleObject    = "object"
	RuleEnv       = "env"
	RuleRange     = "range"
)

// Node is a generic syntax tree node. Token is the node's primary token: the
// keyword of a block or directive, the key of a property, the variable name
// of a let or for, the literal of a value.
type Node struct {
	Rule     string
	Token    Token
	Pos      diag.Position
	Children []*Node
}

// Name returns the primary token's decoded text.
func (n *Node) Name() string {
	return n.Token.Value
}

// Labels returns the label children of a block.
func (n *Node) Labels() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Rule == RuleLabel {
			out = append(out, c)
		}
	}
	return out
}

// Body returns the non-label children of a block, or the loop body of a for.
func (n *Node) Body() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Rule == RuleLabel || c.Rule == RuleIterable {
			continue
		}
		out = append(out, c)
	}
	return out
}

// String renders the tree in an indented debug form.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, 0)
	return b.String()
}

func (n *Node) write(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%s%s", strings.Repeat("  ", depth), n.Rule)
	if n.Token.Value != "" {
		fmt.Fprintf(b, " %q", n.Token.Value)
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.write(b, depth+1)
	}
}
