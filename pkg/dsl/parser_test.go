package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// shape renders a tree as "rule:value" lines for compact comparisons.
func shape(n *Node) []string {
	var out []string
	var walk func(*Node, int)
	walk = func(n *Node, depth int) {
		line := strings.Repeat(".", depth) + n.Rule
		if n.Token.Value != "" {
			line += ":" + n.Token.Value
		}
		out = append(out, line)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return out
}

func TestRuleOrder(t *testing.T) {
	want := []string{"for", "let", "spread", "property", "block", "directive"}
	if diff := cmp.Diff(want, RuleOrder()); diff != "" {
		t.Errorf("rule order mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Statements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "property",
			src:  "mode: http",
			want: []string{"file", ".property:mode", "..value:http"},
		},
		{
			name: "block with labels",
			src:  "backend web {\n  balance: roundrobin\n}",
			want: []string{
				"file",
				".block:backend",
				"..label:web",
				"..property:balance",
				"...value:roundrobin",
			},
		},
		{
			name: "directive line",
			src:  "frontend fe {\n  http-request deny if blocked\n}",
			want: []string{
				"file",
				".block:frontend",
				"..label:fe",
				"..directive:http-request",
				"...value:deny",
				"...value:if",
				"...value:blocked",
			},
		},
		{
			name: "let",
			src:  `let port = 8080`,
			want: []string{"file", ".let:port", "..value:8080"},
		},
		{
			name: "let env with default",
			src:  `let port = env("PORT", 8080)`,
			want: []string{"file", ".let:port", "..env:PORT", "...value:8080"},
		},
		{
			name: "spread",
			src:  "backend b {\n  @base\n}",
			want: []string{"file", ".block:backend", "..label:b", "..spread:base"},
		},
		{
			name: "for over range",
			src:  "for i in [1..3] {\n  server \"web${i}\" { }\n}",
			want: []string{
				"file",
				".for:i",
				"..iterable",
				"...range:1..3",
				"..block:server",
				"...label:web${i}",
			},
		},
		{
			name: "for over list",
			src:  "for n in [a, b] { x: 1 }",
			want: []string{
				"file",
				".for:n",
				"..iterable",
				"...value:a",
				"...value:b",
				"..property:x",
				"...value:1",
			},
		},
		{
			name: "list and object values",
			src:  "alpn: [h2, \"http/1.1\",]\ntimeout: { connect: 5s, client: 30s }",
			want: []string{
				"file",
				".property:alpn",
				"..list",
				"...value:h2",
				"...value:http/1.1",
				".property:timeout",
				"..object",
				"...property:connect",
				"....value:5s",
				"...property:client",
				"....value:30s",
			},
		},
		{
			name: "multi-line list",
			src:  "option: [\n  httplog,\n  forwardfor\n]",
			want: []string{
				"file",
				".property:option",
				"..list",
				"...value:httplog",
				"...value:forwardfor",
			},
		},
		{
			name: "config wrapper",
			src:  "config prod {\n  global { daemon: true }\n}",
			want: []string{
				"file",
				".config:prod",
				"..block:global",
				"...property:daemon",
				"....value:true",
			},
		},
		{
			name: "semicolons separate statements",
			src:  "a: 1; b: 2",
			want: []string{"file", ".property:a", "..value:1", ".property:b", "..value:2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, shape(tree)); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_PriorityResolvesAmbiguity(t *testing.T) {
	// "server" appears as a property, a block and a directive.
	src := `backend b {
    server: x
    server s1 {
        address: 10.0.0.1
    }
    server s2 10.0.0.2:80 check
}`
	tree, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	body := tree.Children[0].Body()
	var rules []string
	for _, n := range body {
		rules = append(rules, n.Rule)
	}
	want := []string{RuleProperty, RuleBlock, RuleDirective}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		line   int
		column int
		token  string
	}{
		{
			name:   "unclosed block",
			src:    "backend b {\n  balance: roundrobin\n",
			line:   3,
			column: 1,
		},
		{
			name:   "missing value",
			src:    "global {\n  daemon:\n}",
			line:   2,
			column: 10,
		},
		{
			name:   "stray closing brace",
			src:    "global { }\n}",
			line:   2,
			column: 1,
			token:  "}",
		},
		{
			name:   "two values after property",
			src:    "mode: http tcp",
			line:   1,
			column: 12,
			token:  "tcp",
		},
		{
			name:   "let without assign",
			src:    "let x 5",
			line:   1,
			column: 7,
			token:  "5",
		},
		{
			name:   "for without in",
			src:    "for i [1..2] { }",
			line:   1,
			column: 7,
			token:  "[",
		},
		{
			name:   "unterminated string",
			src:    "name: \"abc",
			line:   1,
			column: 7,
		},
		{
			name:   "list without separator",
			src:    "x: [a b]",
			line:   1,
			column: 7,
			token:  "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected parse error")
			}
			var perr *diag.Error
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not *diag.Error", err)
			}
			if perr.Kind != diag.KindParse {
				t.Errorf("kind = %s, want parse", perr.Kind)
			}
			if perr.Pos.Line != tt.line || perr.Pos.Column != tt.column {
				t.Errorf("position = %s, want %d:%d (%v)", perr.Pos, tt.line, tt.column, err)
			}
			if tt.token != "" && perr.Token != tt.token {
				t.Errorf("token = %q, want %q", perr.Token, tt.token)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	tree, err := Parse("\n# nothing here\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected empty file, got %d children", len(tree.Children))
	}
}
