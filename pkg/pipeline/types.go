package pipeline

import (
	"context"

	"github.com/openfroyo/haproxy-translate/pkg/codegen"
	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
)

// Stage names, in execution order.
const (
	StageParse    = "parse"
	StageBuild    = "build"
	StageUnroll   = "unroll"
	StageExpand   = "expand"
	StageResolve  = "resolve"
	StageValidate = "validate"
	StageLint     = "lint"
	StageGenerate = "generate"
)

// Linter reports advisory findings on a validated configuration. Findings
// never fail a run.
type Linter interface {
	Lint(ctx context.Context, cfg *ir.Config) (diag.Diagnostics, error)
}

// Options configures a Registry.
type Options struct {
	// MaxPasses bounds variable resolution. Zero selects the resolver default.
	MaxPasses int

	// MaxSteps bounds the work of a single interpolation expression. Zero
	// selects the evaluator default.
	MaxSteps uint64

	// Locator maps inline script names to the paths written in lua-load
	// lines. Nil selects codegen.DefaultLocator.
	Locator codegen.ScriptLocator

	// OmitHeader drops the generated-by comment from the output.
	OmitHeader bool

	// Linter runs after validation when set.
	Linter Linter
}

// Script is an inline Lua script extracted from the configuration.
type Script struct {
	Name string
	Path string
	Body string
}

// Result is the outcome of a successful translation.
type Result struct {
	// RunID identifies the run in logs and the history ledger.
	RunID string

	// Output is the generated HAProxy configuration.
	Output string

	// Scripts are the inline scripts referenced by lua-load lines in Output.
	Scripts []Script

	// Config is the validated configuration Output was generated from.
	Config *ir.Config

	// Warnings are lint findings.
	Warnings diag.Diagnostics
}
