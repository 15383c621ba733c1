package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
	"github.com/openfroyo/haproxy-translate/pkg/transform"
)

const webSource = `
let app_port = 8080
template server_defaults {
    check: true
    inter: 3s
}
frontend web {
    bind *:80
    default_backend: app
}
backend app {
    balance: roundrobin
    for i in [1..3] {
        server "web${i}" {
            address: "10.0.1.${i}"
            port: "${app_port}"
            @server_defaults
        }
    }
}
`

// recording returns telemetry whose spans land in the returned recorder.
func recording(t *testing.T) (*telemetry.Telemetry, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	return &telemetry.Telemetry{
		Logger:  telemetry.NopLogger(),
		Tracer:  telemetry.NewTracerWithProvider(provider),
		Metrics: metrics,
		Config:  telemetry.DefaultConfig(),
	}, recorder
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestTranslate(t *testing.T) {
	tel, recorder := recording(t)
	reg := NewRegistry(nil, tel, Options{OmitHeader: true})

	res, err := reg.Translate(context.Background(), webSource, transform.MapEnv(nil))
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := `frontend web
    bind *:80
    default_backend app

backend app
    balance roundrobin
    server web1 10.0.1.1:8080 check inter 3s
    server web2 10.0.1.2:8080 check inter 3s
    server web3 10.0.1.3:8080 check inter 3s
`
	if diff := cmp.Diff(want, res.Output); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(ir.ChildrenOf[*ir.Backend](res.Config)) != 1 {
		t.Error("Config does not hold the backend")
	}

	wantSpans := []string{
		"translate.parse", "translate.build", "translate.unroll", "translate.expand",
		"translate.resolve", "translate.validate", "translate.lint", "translate.generate",
		"translate",
	}
	if diff := cmp.Diff(wantSpans, spanNames(recorder)); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	reg := NewRegistry(nil, nil, Options{})
	first, err := reg.Translate(context.Background(), webSource, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		res, err := reg.Translate(context.Background(), webSource, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Output != first.Output {
			t.Fatalf("run %d output differs", i)
		}
	}
}

func TestTranslate_FailureHasNoOutput(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind diag.Kind
	}{
		{name: "parse", src: "backend app {", kind: diag.KindParse},
		{name: "build", src: "server s1 10.0.0.1:80", kind: diag.KindBuild},
		{name: "resolution", src: "let x = \"${x}\"\nbackend b {\n    balance: roundrobin\n}", kind: diag.KindResolution},
		{name: "validation", src: "frontend f {\n    default_backend: missing\n}", kind: diag.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(nil, nil, Options{})
			res, err := reg.Translate(context.Background(), tt.src, nil)
			if err == nil {
				t.Fatal("Translate() error = nil")
			}
			if res != nil {
				t.Errorf("Translate() result = %+v, want nil", res)
			}
			if kind, _ := diag.KindOf(err); kind != tt.kind {
				t.Errorf("error kind = %s, want %s (%v)", kind, tt.kind, err)
			}
		})
	}
}

func TestTranslate_Canceled(t *testing.T) {
	tel, recorder := recording(t)
	reg := NewRegistry(nil, tel, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := reg.Translate(ctx, webSource, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Translate() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("canceled run returned a result")
	}
	if diff := cmp.Diff([]string{"translate"}, spanNames(recorder)); diff != "" {
		t.Errorf("no stage should run (-want +got):\n%s", diff)
	}
	got, err := testutil.GatherAndCount(tel.Metrics.Registry(), "translations_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if got != 1 {
		t.Errorf("translations_total series = %d, want 1", got)
	}
}

func TestTranslate_Scripts(t *testing.T) {
	src := `
global {
    lua {
        script hello """
core.Info("hello")
"""
    }
}
`
	reg := NewRegistry(nil, nil, Options{
		OmitHeader: true,
		Locator:    func(name string) string { return "/etc/haproxy/lua/" + name + ".lua" },
	})
	res, err := reg.Translate(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	want := []Script{{Name: "hello", Path: "/etc/haproxy/lua/hello.lua", Body: "\ncore.Info(\"hello\")\n"}}
	if diff := cmp.Diff(want, res.Scripts); diff != "" {
		t.Errorf("Scripts mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.Output, "lua-load /etc/haproxy/lua/hello.lua") {
		t.Errorf("output does not load the script:\n%s", res.Output)
	}
}

type fakeLinter struct {
	calls    int
	warnings diag.Diagnostics
	err      error
}

func (f *fakeLinter) Lint(_ context.Context, _ *ir.Config) (diag.Diagnostics, error) {
	f.calls++
	return f.warnings, f.err
}

func TestTranslate_LintWarnings(t *testing.T) {
	linter := &fakeLinter{warnings: diag.Diagnostics{{
		Severity: diag.SeverityWarning,
		Kind:     diag.KindValidation,
		Code:     "backend-has-servers",
		Message:  "backend empty has no servers",
	}}}
	reg := NewRegistry(nil, nil, Options{Linter: linter})

	res, err := reg.Translate(context.Background(), webSource, nil)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if linter.calls != 1 {
		t.Errorf("linter calls = %d, want 1", linter.calls)
	}
	if diff := cmp.Diff(linter.warnings, res.Warnings); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslate_BrokenLinterIsWarning(t *testing.T) {
	reg := NewRegistry(nil, nil, Options{Linter: &fakeLinter{err: errors.New("rego compile failed")}})
	res, err := reg.Translate(context.Background(), webSource, nil)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != "LINT_FAILED" {
		t.Errorf("Warnings = %v, want one LINT_FAILED", res.Warnings)
	}
}

func TestValidateOnly(t *testing.T) {
	tel, recorder := recording(t)
	reg := NewRegistry(nil, tel, Options{})

	src := `
frontend web {
    bind *:80
    use_backend api if is_api
    default_backend: app
}
`
	diags := reg.ValidateOnly(context.Background(), src, nil)
	if !diags.HasErrors() {
		t.Fatal("ValidateOnly() reported no errors")
	}
	var codes []string
	for _, d := range diags {
		codes = append(codes, d.Code)
	}
	want := []string{diag.CodeUndefinedRef, diag.CodeUndefinedRef, diag.CodeUndefinedRef}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}

	for _, name := range spanNames(recorder) {
		if name == "translate.generate" {
			t.Error("ValidateOnly() ran code generation")
		}
	}
}

func TestValidateOnly_Clean(t *testing.T) {
	linter := &fakeLinter{}
	reg := NewRegistry(nil, nil, Options{Linter: linter})
	if diags := reg.ValidateOnly(context.Background(), webSource, nil); len(diags) != 0 {
		t.Errorf("ValidateOnly() = %v, want none", diags)
	}
	if linter.calls != 1 {
		t.Errorf("linter calls = %d, want 1", linter.calls)
	}
}

func TestValidateOnly_Env(t *testing.T) {
	src := `
let host = env("APP_HOST")
let port = env("APP_PORT", 8080)
backend app {
    balance: roundrobin
    server s1 {
        address: "${host}"
        port: "${port}"
    }
}
`
	reg := NewRegistry(nil, nil, Options{})
	diags := reg.ValidateOnly(context.Background(), src, transform.MapEnv(nil))
	if len(diags) != 1 || diags[0].Code != diag.CodeMissingEnv {
		t.Fatalf("ValidateOnly() = %v, want one MISSING_ENV", diags)
	}

	diags = reg.ValidateOnly(context.Background(), src, transform.MapEnv(map[string]string{"APP_HOST": "10.0.0.1"}))
	if len(diags) != 0 {
		t.Errorf("ValidateOnly() = %v, want none", diags)
	}
}
