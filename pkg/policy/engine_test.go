package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/dsl"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
	"github.com/openfroyo/haproxy-translate/pkg/transform"
)

func buildConfig(t *testing.T, src string) *ir.Config {
	t.Helper()
	tree, err := dsl.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg, err := ir.Build(tree)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg, err = transform.Expand(cfg); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	return cfg
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func codes(ds diag.Diagnostics) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.Code)
	}
	return out
}

const cleanConfig = `
defaults {
    mode: http
    timeout: { connect: 5s, client: 30s, server: 30s }
}
frontend web {
    bind *:80
    default_backend: app
}
backend app {
    server s1 10.0.0.1:80 check
    server s2 {
        address: 10.0.0.2
        port: 80
        check: true
    }
}
`

func TestLint_Clean(t *testing.T) {
	got, err := newEngine(t).Lint(context.Background(), buildConfig(t, cleanConfig))
	if err != nil {
		t.Fatalf("Lint() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Lint() = %v, want no findings", got)
	}
}

func TestLint_Builtins(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		codes []string
		path  string
	}{
		{
			name: "empty backend",
			src: `
defaults {
    timeout: { connect: 5s, client: 30s, server: 30s }
}
backend empty {
    balance: roundrobin
}
`,
			codes: []string{"backend-has-servers"},
			path:  "backend/empty",
		},
		{
			name: "frontend without route",
			src: `
defaults {
    timeout: { connect: 5s, client: 30s, server: 30s }
}
frontend web {
    bind *:80
}
`,
			codes: []string{"frontend-has-route"},
			path:  "frontend/web",
		},
		{
			name: "unchecked server",
			src: `
defaults {
    timeout: { connect: 5s, client: 30s, server: 30s }
}
backend app {
    server s1 10.0.0.1:80
}
`,
			codes: []string{"servers-health-checked"},
			path:  "backend/app/s1",
		},
		{
			name: "health-check block covers servers",
			src: `
defaults {
    timeout: { connect: 5s, client: 30s, server: 30s }
}
backend app {
    health-check {
        uri: /health
    }
    server s1 10.0.0.1:80
}
`,
		},
		{
			name: "timeouts as directives",
			src: `
defaults {
    timeout connect 5s
    timeout client 30s
    timeout server 30s
}
`,
		},
		{
			name: "missing server timeout",
			src: `
defaults {
    timeout: { connect: 5s, client: 30s }
}
`,
			codes: []string{"timeouts-defined"},
			path:  "defaults",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newEngine(t).Lint(context.Background(), buildConfig(t, tt.src))
			if err != nil {
				t.Fatalf("Lint() error = %v", err)
			}
			if diff := cmp.Diff(tt.codes, codes(got)); diff != "" {
				t.Fatalf("codes mismatch (-want +got):\n%s", diff)
			}
			for _, d := range got {
				if d.Severity != diag.SeverityWarning {
					t.Errorf("severity = %s, want warning", d.Severity)
				}
				if d.Path != tt.path {
					t.Errorf("path = %q, want %q", d.Path, tt.path)
				}
			}
		})
	}
}

func TestLint_Line(t *testing.T) {
	src := "defaults {\n    timeout: { connect: 5s, client: 30s, server: 30s }\n}\nbackend empty {\n    balance: roundrobin\n}\n"
	got, err := newEngine(t).Lint(context.Background(), buildConfig(t, src))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Pos.Line != 4 {
		t.Errorf("Lint() = %v, want one finding on line 4", got)
	}
}

func TestDisablePolicy(t *testing.T) {
	e := newEngine(t)
	if err := e.DisablePolicy("timeouts-defined"); err != nil {
		t.Fatal(err)
	}
	got, err := e.Lint(context.Background(), buildConfig(t, "defaults {\n    mode: http\n}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Lint() = %v, want none with the policy disabled", got)
	}
	if err := e.EnablePolicy("no-such-policy"); err == nil {
		t.Error("EnablePolicy() of an unknown policy should fail")
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	custom := `# Backends must not balance by source.
# severity: info
package team.lint.balance

import rego.v1

deny contains msg if {
	some backend in input.backends
	backend.properties.balance == "source"
	msg := sprintf("backend %s balances by source", [backend.name])
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-source.rego"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "no-source_test.rego"), []byte("not rego"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	var found *Policy
	for _, p := range e.ListPolicies() {
		if p.Name == "no-source" {
			p := p
			found = &p
		}
	}
	if found == nil {
		t.Fatal("custom policy not listed")
	}
	if found.Description != "Backends must not balance by source." || found.Severity != diag.SeverityInfo {
		t.Errorf("policy = %+v", found)
	}

	src := cleanConfig + "backend legacy {\n    balance: source\n    server s 10.0.0.9:80 check\n}\n"
	got, err := e.Lint(context.Background(), buildConfig(t, src))
	if err != nil {
		t.Fatal(err)
	}
	want := diag.Diagnostics{{
		Severity: diag.SeverityInfo,
		Kind:     diag.KindValidation,
		Code:     "no-source",
		Message:  "backend legacy balances by source",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lint() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPolicies_Invalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package broken\n\ndeny contains"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := newEngine(t).LoadPolicies(context.Background(), []string{dir}); err == nil {
		t.Error("LoadPolicies() accepted a broken module")
	}
}

func TestInput_IsPlainJSON(t *testing.T) {
	input, err := Input(buildConfig(t, cleanConfig))
	if err != nil {
		t.Fatal(err)
	}
	backends, ok := input["backends"].([]interface{})
	if !ok || len(backends) != 1 {
		t.Fatalf("backends = %#v", input["backends"])
	}
}
