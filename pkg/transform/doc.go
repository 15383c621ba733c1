// Package transform implements the tree-rewriting passes that run between
// IR construction and validation: loop unrolling, template expansion and
// variable resolution, always in that order.
//
// Every pass takes a *ir.Config and returns a new one. Nodes that a pass
// changes are copied; the input tree is never modified.
//
// Arithmetic inside ${...} interpolations is evaluated by an embedded
// Starlark interpreter (see Evaluator). Supported operands are integers and
// durations.
package transform
