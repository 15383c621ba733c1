package policy

import (
	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// Builtin returns the policies shipped with the translator. Input is the
// exported configuration: frontends, backends, listens and defaults lists
// whose entries carry name, line, properties, extras and child groups.
func Builtin() []Policy {
	return []Policy{
		backendHasServersPolicy(),
		frontendHasRoutePolicy(),
		serversHealthCheckedPolicy(),
		timeoutsDefinedPolicy(),
	}
}

func builtin(name, description, rego string) Policy {
	return Policy{
		Name:        name,
		Description: description,
		Rego:        rego,
		Severity:    diag.SeverityWarning,
		Enabled:     true,
		Builtin:     true,
	}
}

func backendHasServersPolicy() Policy {
	return builtin("backend-has-servers",
		"Every backend declares at least one server or server-template",
		`package haproxy.lint.backend_servers

import rego.v1

deny contains violation if {
	some backend in input.backends
	count(backend.servers) + count(backend.server_templates) == 0
	violation := {
		"message": sprintf("backend %s has no servers", [backend.name]),
		"subject": sprintf("backend/%s", [backend.name]),
		"line": backend.line,
	}
}
`)
}

func frontendHasRoutePolicy() Policy {
	return builtin("frontend-has-route",
		"Every frontend routes traffic with use_backend or default_backend",
		`package haproxy.lint.frontend_route

import rego.v1

routed(frontend) if count(frontend.routes) > 0

routed(frontend) if frontend.properties.default_backend

deny contains violation if {
	some frontend in input.frontends
	not routed(frontend)
	violation := {
		"message": sprintf("frontend %s has no use_backend rule and no default_backend", [frontend.name]),
		"subject": sprintf("frontend/%s", [frontend.name]),
		"line": frontend.line,
	}
}
`)
}

func serversHealthCheckedPolicy() Policy {
	return builtin("servers-health-checked",
		"Servers are health checked, either individually or by a health-check block",
		`package haproxy.lint.health_checks

import rego.v1

checked(server) if server.properties.check == true

checked(server) if "check" in server.args

deny contains violation if {
	some kind, sections in {"backend": input.backends, "listen": input.listens}
	some section in sections
	count(section.health_checks) == 0
	some server in section.servers
	not checked(server)
	violation := {
		"message": sprintf("server %s in %s %s is not health checked", [server.name, kind, section.name]),
		"subject": sprintf("%s/%s/%s", [kind, section.name, server.name]),
		"line": server.line,
	}
}
`)
}

func timeoutsDefinedPolicy() Policy {
	return builtin("timeouts-defined",
		"A defaults section sets the connect, client and server timeouts",
		`package haproxy.lint.timeouts

import rego.v1

required := ["connect", "client", "server"]

defined(name) if {
	some section in input.defaults
	section.properties.timeout[name]
}

deny contains violation if {
	some name in required
	not defined(name)
	violation := {
		"message": sprintf("timeout %s is not set in any defaults section", [name]),
		"subject": "defaults",
	}
}
`)
}
