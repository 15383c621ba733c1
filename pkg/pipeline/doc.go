// Package pipeline runs the translation stages in order: parse, build,
// unroll, expand, resolve, validate, lint and generate.
//
// A Registry holds everything the stages share (schemas, the expression
// evaluator, telemetry and options). Callers construct one and reuse it; the
// package keeps no global state.
package pipeline
