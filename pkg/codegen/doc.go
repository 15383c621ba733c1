// Package codegen renders a validated configuration as HAProxy
// configuration text.
//
// Output is deterministic. Sections are written in a fixed group order
// (global, defaults, frontends, backends, listens), each group in
// declaration order. Inside a section, modeled properties come first in
// keyword catalog order, then typed children, then pass-through extras.
package codegen
