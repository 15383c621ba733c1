package transform

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

func bindings(cfg *ir.Config) map[string]ir.Value {
	out := map[string]ir.Value{}
	for _, b := range ir.ChildrenOf[*ir.VariableBinding](cfg) {
		out[b.Name] = b.Value
	}
	return out
}

func TestResolve_Fixpoint(t *testing.T) {
	cfg := mustBuild(t, `
let a = "${b}"
let b = "${c}"
let c = "v"
backend "app_${a}" {
    balance: roundrobin
}
`)
	out, err := Resolve(cfg, nil, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	vars := bindings(out)
	for _, name := range []string{"a", "b", "c"} {
		if v := vars[name]; v.Kind != ir.StringValue || v.Str != "v" {
			t.Errorf("%s = %+v, want \"v\"", name, v)
		}
	}
	if got := out.Children[3].Label(); got != "app_v" {
		t.Errorf("backend name = %q", got)
	}
}

func TestResolve_TypesAndArithmetic(t *testing.T) {
	cfg := mustBuild(t, `
let port = 8080
let offset = "${port + 1}"
let base_timeout = 10s
let slow = "${base_timeout * 3}"
let host = "10.0.0.1"
backend app {
    timeout: { server: "${slow}" }
    server web1 {
        address: "${host}"
        port: "${offset}"
    }
    http-request set-header X-Origin "${host}:${port}"
}
`)
	out, err := Resolve(cfg, nil, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	vars := bindings(out)
	if v := vars["offset"]; v.Kind != ir.IntValue || v.Int != 8081 {
		t.Errorf("offset = %+v, want int 8081", v)
	}
	if v := vars["slow"]; v.Kind != ir.DurationValue || v.Dur != 30*time.Second {
		t.Errorf("slow = %+v, want 30s", v)
	}

	be := out.Children[5]
	timeout, _ := ir.Common(be).Props.Get("timeout")
	if server, _ := timeout.Fields.Get("server"); server.Kind != ir.DurationValue || server.Text() != "30s" {
		t.Errorf("timeout server = %+v", server)
	}

	srv := ir.ChildrenOf[*ir.Server](be)[0]
	if port, _ := srv.Props.Get("port"); port.Kind != ir.IntValue || port.Int != 8081 {
		t.Errorf("server port = %+v", port)
	}

	rule := ir.ChildrenOf[*ir.RequestRule](be)[0]
	var args []string
	for _, a := range rule.Args {
		args = append(args, a.Text())
	}
	if diff := cmp.Diff([]string{"X-Origin", "10.0.0.1:8080"}, args); diff != "" {
		t.Errorf("rule args mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Env(t *testing.T) {
	cfg := mustBuild(t, `
let region = env("REGION")
let workers = env("WORKERS", 4)
let timeout = env("TIMEOUT")
global {
    nbthread: "${workers}"
}
backend "app_${region}" {
    timeout: { server: "${timeout}" }
}
`)
	env := MapEnv(map[string]string{"REGION": "eu", "TIMEOUT": "15s"})
	out, err := Resolve(cfg, env, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	vars := bindings(out)
	if v := vars["workers"]; v.Kind != ir.IntValue || v.Int != 4 {
		t.Errorf("workers = %+v, want default 4", v)
	}
	if v := vars["timeout"]; v.Kind != ir.DurationValue || v.Dur != 15*time.Second {
		t.Errorf("timeout = %+v, want 15s duration", v)
	}
	if got := out.Children[4].Label(); got != "app_eu" {
		t.Errorf("backend name = %q", got)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		opts     ResolveOptions
		wantCode string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "self reference",
			src:      "let x = \"${x}\"",
			wantCode: diag.CodeCircularVariable,
			wantLine: 1,
			wantMsg:  "x",
		},
		{
			name:     "two cycle",
			src:      "let b = \"${a}-b\"\nlet a = \"${b}-a\"",
			wantCode: diag.CodeCircularVariable,
			wantLine: 2,
			wantMsg:  "a, b",
		},
		{
			name:     "chain longer than pass bound",
			src:      "let a = \"${b}\"\nlet b = \"${c}\"\nlet c = \"${d}\"\nlet d = \"v\"",
			opts:     ResolveOptions{MaxPasses: 1},
			wantCode: diag.CodeCircularVariable,
			wantLine: 1,
		},
		{
			name:     "undefined in binding",
			src:      "let a = \"${nope}\"",
			wantCode: diag.CodeUndefinedVariable,
			wantLine: 1,
		},
		{
			name:     "undefined in tree",
			src:      "backend app {\n    balance: \"${algo}\"\n}",
			wantCode: diag.CodeUndefinedVariable,
			wantLine: 2,
		},
		{
			name:     "missing env",
			src:      "let a = env(\"HAPT_TEST_UNSET\")",
			wantCode: diag.CodeMissingEnv,
			wantLine: 1,
		},
		{
			name:     "bad operand types",
			src:      "let t = 5s\nlet x = \"${t + 1}\"",
			wantCode: diag.CodeBadExpression,
			wantLine: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(mustBuild(t, tt.src), MapEnv(nil), tt.opts)
			if err == nil {
				t.Fatal("Resolve() error = nil")
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
			if !strings.Contains(derr.Message, tt.wantMsg) {
				t.Errorf("message %q does not mention %q", derr.Message, tt.wantMsg)
			}
		})
	}
}

func TestResolve_SkipsTemplates(t *testing.T) {
	cfg := mustBuild(t, `
template tpl { inter: "${later}" }
let later = 3s
`)
	out, err := Resolve(cfg, nil, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tpl := out.Children[0].(*ir.Template)
	if v, _ := tpl.Props.Get("inter"); v.Kind != ir.InterpValue {
		t.Errorf("template value resolved: %+v", v)
	}
}

func TestResolve_DoesNotModifyInput(t *testing.T) {
	cfg := mustBuild(t, `
let host = "10.0.0.1"
backend app {
    server web1 { address: "${host}" }
}
`)
	before := ir.Export(cfg)
	if _, err := Resolve(cfg, nil, ResolveOptions{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff(before, ir.Export(cfg)); diff != "" {
		t.Errorf("input tree modified (-before +after):\n%s", diff)
	}
}

func TestPipelineOrder_EndToEnd(t *testing.T) {
	cfg := mustBuild(t, `
template server_defaults {
    check: true
    inter: "3s"
}
backend app {
    for i in [1..3] {
        server "web${i}" {
            address: "10.0.1.${i}"
            port: 8080
            @server_defaults
        }
    }
}
`)
	var err error
	if cfg, err = Unroll(cfg, nil); err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	if cfg, err = Expand(cfg); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if cfg, err = Resolve(cfg, nil, ResolveOptions{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	servers := ir.ChildrenOf[*ir.Server](cfg.Children[1])
	if diff := cmp.Diff([]string{"web1", "web2", "web3"}, labels(servers)); diff != "" {
		t.Fatalf("servers mismatch (-want +got):\n%s", diff)
	}
	for i, srv := range servers {
		addr, _ := srv.Props.Get("address")
		if want := "10.0.1." + string(rune('1'+i)); addr.Text() != want {
			t.Errorf("%s address = %q, want %q", srv.Name, addr.Text(), want)
		}
		if check, _ := srv.Props.Get("check"); !check.Bool {
			t.Errorf("%s check = %+v", srv.Name, check)
		}
		if inter, _ := srv.Props.Get("inter"); inter.Text() != "3s" {
			t.Errorf("%s inter = %q", srv.Name, inter.Text())
		}
	}
}
