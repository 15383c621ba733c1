// Package policy lints translated configurations with Open Policy Agent.
//
// Policies are Rego modules with a "deny" set. Each element is either a
// message string or an object:
//
//	{"message": "...", "subject": "backend/app", "line": 12, "severity": "info"}
//
// Input is the exported configuration (see ir.Export): frontends, backends,
// listens and defaults lists whose entries carry name, line, properties,
// extras, args and child groups such as servers and routes.
//
// # Built-in Policies
//
//   - backend-has-servers: every backend declares a server or server-template
//   - frontend-has-route: every frontend has use_backend or default_backend
//   - servers-health-checked: servers use "check" or the section has a
//     health-check block
//   - timeouts-defined: defaults set timeout connect, client and server
//
// Findings are warnings (or info) and never fail a translation.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := engine.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//	warnings, err := engine.Lint(ctx, cfg)
//
// Engine satisfies pipeline.Linter.
//
// # Custom Policies
//
// A .rego file is named after its file. Its leading comment block becomes
// the description:
//
//	# Backends must not use source balancing.
//	package team.lint.balance
//
//	import rego.v1
//
//	deny contains msg if {
//		some backend in input.backends
//		backend.properties.balance == "source"
//		msg := sprintf("backend %s balances by source", [backend.name])
//	}
package policy
