package transform

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/dsl"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

func mustBuild(t *testing.T, src string) *ir.Config {
	t.Helper()
	tree, err := dsl.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg, err := ir.Build(tree)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return cfg
}

func labels[T ir.Node](nodes []T) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label()
	}
	return out
}

func TestUnroll_RangeCardinality(t *testing.T) {
	tests := []struct {
		name string
		rng  string
		want []string
	}{
		{name: "three", rng: "1..3", want: []string{"web1", "web2", "web3"}},
		{name: "single", rng: "5..5", want: []string{"web5"}},
		{name: "empty", rng: "1..0", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustBuild(t, `
backend app {
    for i in [`+tt.rng+`] {
        server "web${i}" {
            address: "10.0.1.${i}"
            port: 8080
        }
    }
}
`)
			out, err := Unroll(cfg, nil)
			if err != nil {
				t.Fatalf("Unroll() error = %v", err)
			}
			be := out.Children[0]
			servers := ir.ChildrenOf[*ir.Server](be)
			if diff := cmp.Diff(tt.want, labels(servers)); diff != "" {
				t.Errorf("server names mismatch (-want +got):\n%s", diff)
			}
			if loops := ir.ChildrenOf[*ir.Loop](be); len(loops) != 0 {
				t.Errorf("loop left in tree: %d", len(loops))
			}
			for _, srv := range servers {
				addr, _ := srv.Props.Get("address")
				if want := "10.0.1." + srv.Name[len("web"):]; addr.Text() != want || addr.Kind != ir.StringValue {
					t.Errorf("server %s address = %+v, want %q", srv.Name, addr, want)
				}
			}
		})
	}
}

func TestUnroll_Arithmetic(t *testing.T) {
	cfg := mustBuild(t, `
backend app {
    for i in [1..2] {
        server "s${i}" {
            address: "10.0.0.${10 + i}"
            port: "${8000 + i}"
            weight: "${i}"
        }
    }
}
`)
	out, err := Unroll(cfg, nil)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	servers := ir.ChildrenOf[*ir.Server](out.Children[0])
	if len(servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(servers))
	}

	srv := servers[1]
	if addr, _ := srv.Props.Get("address"); addr.Text() != "10.0.0.12" {
		t.Errorf("address = %q", addr.Text())
	}
	if port, _ := srv.Props.Get("port"); port.Kind != ir.IntValue || port.Int != 8002 {
		t.Errorf("port = %+v, want int 8002", port)
	}
	if w, _ := srv.Props.Get("weight"); w.Kind != ir.IntValue || w.Int != 2 {
		t.Errorf("weight = %+v, want int 2", w)
	}
}

func TestUnroll_InterpolatedItems(t *testing.T) {
	cfg := mustBuild(t, `
backend app {
    for h in ["${zone}", us] {
        server "srv-${h}" {
            address: "${h}.example.com"
        }
    }
}
`)
	out, err := Unroll(cfg, nil)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	servers := ir.ChildrenOf[*ir.Server](out.Children[0])
	if len(servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(servers))
	}

	first := servers[0].NameValue()
	wantParts := []ir.Part{{Text: "srv-"}, {Text: "zone", Expr: true}}
	if diff := cmp.Diff(wantParts, first.Parts); first.Kind != ir.InterpValue || diff != "" {
		t.Errorf("name = %v, parts mismatch (-want +got):\n%s", first, diff)
	}
	if addr, _ := servers[0].Props.Get("address"); addr.IsResolved() {
		t.Errorf("address = %q, want the ${zone} reference kept", addr.Text())
	}

	if addr, _ := servers[1].Props.Get("address"); addr.Text() != "us.example.com" {
		t.Errorf("address = %q, want us.example.com", addr.Text())
	}
}

func TestUnroll_InterpolatedItemInExpression(t *testing.T) {
	cfg := mustBuild(t, `
backend app {
    for p in ["${base}"] {
        server s1 {
            address: 10.0.0.1
            port: "${p + 1}"
        }
    }
}
`)
	out, err := Unroll(cfg, nil)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	srv := ir.ChildrenOf[*ir.Server](out.Children[0])[0]
	port, _ := srv.Props.Get("port")
	if expr, ok := port.SingleExpr(); !ok || expr != "(base) + 1" {
		t.Errorf("port = %+v, want deferred expression (base) + 1", port)
	}

	_, err = Unroll(mustBuild(t, `
backend app {
    for p in ["${a}-${b}"] {
        server s1 { port: "${p + 1}" }
    }
}
`), nil)
	var derr *diag.Error
	if !errors.As(err, &derr) || derr.Code != diag.CodeBadExpression {
		t.Errorf("Unroll() error = %v, want %s", err, diag.CodeBadExpression)
	}
}

func TestUnroll_NestedProductAndOrder(t *testing.T) {
	cfg := mustBuild(t, `
for env in [staging, prod] {
    backend "app_${env}" {
        for i in [1..2] {
            server "${env}-${i}" { address: "10.0.0.${i}" }
        }
    }
}
`)
	out, err := Unroll(cfg, nil)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}

	if diff := cmp.Diff([]string{"app_staging", "app_prod"}, labels(out.Children)); diff != "" {
		t.Errorf("backends mismatch (-want +got):\n%s", diff)
	}
	var all []string
	for _, be := range out.Children {
		all = append(all, labels(ir.ChildrenOf[*ir.Server](be))...)
	}
	want := []string{"staging-1", "staging-2", "prod-1", "prod-2"}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}
}

func TestUnroll_KeepsOtherReferences(t *testing.T) {
	cfg := mustBuild(t, `
let base = 8000
backend app {
    for i in [1..1] {
        server "s${i}" {
            address: "${host}"
            port: "${base + i}"
        }
    }
}
`)
	out, err := Unroll(cfg, nil)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	srv := ir.ChildrenOf[*ir.Server](out.Children[1])[0]
	if addr, _ := srv.Props.Get("address"); addr.Kind != ir.InterpValue {
		t.Errorf("unrelated reference was substituted: %+v", addr)
	}
	port, _ := srv.Props.Get("port")
	if expr, ok := port.SingleExpr(); !ok || expr != "base + 1" {
		t.Errorf("port = %+v, want ${base + 1}", port)
	}
}

func TestUnroll_DoesNotModifyInput(t *testing.T) {
	cfg := mustBuild(t, `
backend app {
    for i in [1..2] {
        server "web${i}" { address: "10.0.1.${i}" }
    }
}
`)
	before := ir.Export(cfg)
	if _, err := Unroll(cfg, nil); err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	if diff := cmp.Diff(before, ir.Export(cfg)); diff != "" {
		t.Errorf("input tree modified (-before +after):\n%s", diff)
	}
}

func TestUnroll_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantCode string
		wantLine int
	}{
		{
			name:     "reversed range",
			src:      "backend app {\n    for i in [3..1] {\n        server \"s${i}\" { address: \"a\" }\n    }\n}",
			wantCode: diag.CodeBadRange,
			wantLine: 2,
		},
		{
			name:     "non integer bound",
			src:      "backend app {\n    for i in [a..3] {\n        server \"s${i}\" { address: \"a\" }\n    }\n}",
			wantCode: diag.CodeBadRange,
			wantLine: 2,
		},
		{
			name:     "interpolated bound",
			src:      "let n = 3\nbackend app {\n    for i in [1..${n}] {\n        server \"s${i}\" { address: \"a\" }\n    }\n}",
			wantCode: diag.CodeBadRange,
			wantLine: 3,
		},
		{
			name:     "bare interpolated range",
			src:      "backend app {\n    for i in ${lo}..3 {\n        server \"s${i}\" { address: \"a\" }\n    }\n}",
			wantCode: diag.CodeBadRange,
			wantLine: 2,
		},
		{
			name:     "duplicate generated name",
			src:      "backend app {\n    for i in [1..2] {\n        server static { address: \"a\" }\n    }\n}",
			wantCode: diag.CodeDuplicateLoopName,
			wantLine: 2,
		},
		{
			name:     "shadowed variable",
			src:      "for i in [1..2] {\n    backend \"b${i}\" {\n        for i in [1..2] {\n            server \"s${i}\" { address: \"a\" }\n        }\n    }\n}",
			wantCode: diag.CodeShadowedLoopVar,
			wantLine: 3,
		},
		{
			name:     "bad arithmetic",
			src:      "backend app {\n    for i in [1..1] {\n        server \"s${i}\" { port: \"${i +}\" }\n    }\n}",
			wantCode: diag.CodeBadExpression,
			wantLine: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unroll(mustBuild(t, tt.src), nil)
			if err == nil {
				t.Fatal("Unroll() error = nil")
			}
			var derr *diag.Error
			if !errors.As(err, &derr) {
				t.Fatalf("error type = %T", err)
			}
			if derr.Kind != diag.KindResolution || derr.Code != tt.wantCode {
				t.Errorf("error = %s/%s, want resolution/%s", derr.Kind, derr.Code, tt.wantCode)
			}
			if derr.Pos.Line != tt.wantLine {
				t.Errorf("error line = %d, want %d", derr.Pos.Line, tt.wantLine)
			}
		})
	}
}
