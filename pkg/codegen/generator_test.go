package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/dsl"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
	"github.com/openfroyo/haproxy-translate/pkg/transform"
	"github.com/openfroyo/haproxy-translate/pkg/validate"
)

func generate(t *testing.T, src string, opts Options) string {
	t.Helper()
	tree, err := dsl.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg, err := ir.Build(tree)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg, err = transform.Unroll(cfg, nil); err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	if cfg, err = transform.Expand(cfg); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if cfg, err = transform.Resolve(cfg, transform.MapEnv(nil), transform.ResolveOptions{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg, err = validate.Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	out, err := Generate(cfg, opts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return out
}

func TestGenerate_EndToEnd(t *testing.T) {
	src := `
template server_defaults {
    check: true
    inter: 3s
}
backend app {
    balance: roundrobin
    for i in [1..3] {
        server "web${i}" {
            address: "10.0.1.${i}"
            port: 8080
            @server_defaults
        }
    }
}
`
	got := generate(t, src, Options{})
	want := `# Generated by haproxy-translate

backend app
    balance roundrobin
    server web1 10.0.1.1:8080 check inter 3s
    server web2 10.0.1.2:8080 check inter 3s
    server web3 10.0.1.3:8080 check inter 3s
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_SectionAndChildOrder(t *testing.T) {
	src := `
backend app {
    server s1 10.0.0.1:80
}
listen stats {
    bind :8404
    mode: http
}
frontend web {
    http-request deny if blocked
    default_backend: app
    use_backend app if is_api
    acl blocked src 10.6.6.6
    acl is_api path_beg /api
    bind *:80
    maxconn: 1000
    option forwardfor
}
defaults {
    mode: http
    timeout: { connect: 5s, client: 30s }
}
global {
    maxconn: 4096
    daemon: true
}
`
	got := generate(t, src, Options{OmitHeader: true})
	want := `global
    daemon
    maxconn 4096

defaults
    mode http
    timeout connect 5s
    timeout client 30s

frontend web
    maxconn 1000
    bind *:80
    acl blocked src 10.6.6.6
    acl is_api path_beg /api
    http-request deny if blocked
    use_backend app if is_api
    default_backend app
    option forwardfor

backend app
    server s1 10.0.0.1:80

listen stats
    mode http
    bind :8404
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_Shapes(t *testing.T) {
	src := `
global {
    daemon: false
    log: ["127.0.0.1:514 local0", "127.0.0.1:515 local1"]
    stats_socket: "/run/haproxy.sock mode 660 level admin"
}
frontend fe {
    description: "Public entry point"
    bind ":443" {
        ssl: true
        crt: /etc/ssl/site.pem
        alpn: [h2, "http/1.1"]
    }
    http-request set-header X-Note "hello world"
    default_backend: be
}
backend be {
    http_reuse: safe
    stick-table {
        type: ip
        size: 100k
        expire: 30s
        store: ["http_req_rate(10s)", conn_cur]
    }
    health-check {
        method: GET
        uri: /health
        expect_status: 200
    }
    server s1 {
        address: 10.0.0.1
        port: 443
        ssl: true
        verify: none
        backup: false
        on-marked-down shutdown-sessions
    }
    server-template web 5 10.0.0.20:80 check
    compression_algo: gzip
}
`
	got := generate(t, src, Options{OmitHeader: true})
	for _, line := range []string{
		"global\n",
		"    log 127.0.0.1:514 local0\n",
		"    log 127.0.0.1:515 local1\n",
		"    stats socket /run/haproxy.sock mode 660 level admin\n",
		"    description Public entry point\n",
		"    bind :443 ssl crt /etc/ssl/site.pem alpn h2,http/1.1\n",
		"    http-request set-header X-Note \"hello world\"\n",
		"    http-reuse safe\n",
		"    stick-table type ip size 100k expire 30s store http_req_rate(10s),conn_cur\n",
		"    option httpchk\n",
		"    http-check send meth GET uri /health\n",
		"    http-check expect status 200\n",
		"    server s1 10.0.0.1:443 ssl verify none on-marked-down shutdown-sessions\n",
		"    server-template web 5 10.0.0.20:80 check\n",
		"    compression-algo gzip\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("output missing %q:\n%s", line, got)
		}
	}
	if strings.Contains(got, "daemon") || strings.Contains(got, "backup") {
		t.Errorf("false booleans must be omitted:\n%s", got)
	}
}

func TestGenerate_UnmodeledBooleans(t *testing.T) {
	src := `
template flags {
    fast_reconnect: true
    slow_start_off: false
}
defaults {
    log_global: true
    http_keep_alive: false
    retry_budget: 3
}
backend app {
    server s1 {
        address: 10.0.0.1
        port: 80
        @flags
    }
}
`
	got := generate(t, src, Options{OmitHeader: true})
	want := `defaults
    log-global
    retry-budget 3

backend app
    server s1 10.0.0.1:80 fast-reconnect
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_SampleExpressions(t *testing.T) {
	src := `
frontend web {
    bind *:80
    acl is_prod env(STAGE) -m str prod
    http-request set-header X-Real-IP %[src]
    use_backend %[req.hdr(host),lower] if is_prod
    default_backend: app
}
backend app {
    server s1 10.0.0.1:80
}
`
	got := generate(t, src, Options{OmitHeader: true})
	for _, line := range []string{
		"    acl is_prod env(STAGE) -m str prod\n",
		"    http-request set-header X-Real-IP %[src]\n",
		"    use_backend %[req.hdr(host),lower] if is_prod\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("output missing %q:\n%s", line, got)
		}
	}
}

func TestGenerate_Lua(t *testing.T) {
	src := `
global {
    lua {
        load: /etc/haproxy/lib.lua
        script hello """
core.register_service("hello", "http", function(applet) end)
"""
    }
}
`
	got := generate(t, src, Options{
		OmitHeader: true,
		Locator:    func(name string) string { return "/etc/haproxy/lua/" + name + ".lua" },
	})
	want := "global\n    lua-load /etc/haproxy/lib.lua\n    lua-load /etc/haproxy/lua/hello.lua\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	src := `
frontend web {
    bind *:80
    default_backend: app
}
backend app {
    for i in [1..5] {
        server "s${i}" {
            address: "10.0.0.${i}"
            port: 80
        }
    }
}
`
	first := generate(t, src, Options{})
	for i := 0; i < 5; i++ {
		if got := generate(t, src, Options{}); got != first {
			t.Fatalf("run %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestGenerate_UnresolvedIsInternal(t *testing.T) {
	srv := &ir.Server{Base: ir.Base{
		Name:  "s1",
		Props: ir.NewProperties(ir.Property{Key: "address", Value: ir.Interp([]ir.Part{{Text: "host", Expr: true}})}),
	}}
	cfg := &ir.Config{Base: ir.Base{Children: []ir.Node{
		&ir.Backend{Base: ir.Base{Name: "app", Children: []ir.Node{srv}}},
	}}}

	_, err := Generate(cfg, Options{})
	var derr *diag.Error
	if !errors.As(err, &derr) || derr.Kind != diag.KindInternal {
		t.Errorf("Generate() error = %v, want internal error", err)
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":       "plain",
		"":            `""`,
		"two words":   `"two words"`,
		`say "hi"`:    `"say \"hi\""`,
		"a#b":         `"a#b"`,
		"/path/x.pem": "/path/x.pem",
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %s, want %s", in, got, want)
		}
	}
}
