// Package ir defines the immutable intermediate representation produced from
// the DSL syntax tree and rewritten by every later pipeline stage.
//
// # Overview
//
// A configuration is a tree of Node values rooted at *Config. Every variant
// embeds Base: a name, a source position, an ordered Properties map of
// modeled properties, Extras for unmodeled directives, unexpanded Spreads
// and ordered Children.
//
// # Immutability
//
// Nodes are never modified once built. Passes derive new trees with Clone,
// Rebuild, WithChildren and MapValues, which copy the node being changed and
// share everything else with the input tree.
//
// # Components
//
// Build: converts a dsl syntax tree into a *Config, rejecting misplaced
// blocks with build errors.
//
// Catalog: the modeled keywords of every section kind, in output order.
// Unknown keywords are kept as Extras and passed through by the generator.
//
// Export: a plain-data view for JSON/YAML output and policy input.
package ir
