package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openfroyo/haproxy-translate/pkg/codegen"
	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/dsl"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
	"github.com/openfroyo/haproxy-translate/pkg/transform"
	"github.com/openfroyo/haproxy-translate/pkg/validate"
)

// Registry holds the shared state of the translation stages.
type Registry struct {
	schemas   *validate.SchemaRegistry
	validator *validate.Validator
	evaluator *transform.Evaluator
	tel       *telemetry.Telemetry
	opts      Options
}

// NewRegistry creates a registry. A nil schema registry selects the built-in
// schemas; nil telemetry records nothing.
func NewRegistry(schemas *validate.SchemaRegistry, tel *telemetry.Telemetry, opts Options) *Registry {
	if schemas == nil {
		schemas = validate.NewSchemaRegistry()
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	if opts.Locator == nil {
		opts.Locator = codegen.DefaultLocator
	}
	return &Registry{
		schemas:   schemas,
		validator: validate.New(schemas),
		evaluator: transform.NewEvaluator(opts.MaxSteps),
		tel:       tel,
		opts:      opts,
	}
}

// Schemas returns the schema registry used by validation.
func (r *Registry) Schemas() *validate.SchemaRegistry {
	return r.schemas
}

// run carries the intermediate products of one translation.
type run struct {
	id       string
	src      string
	env      transform.EnvLookup
	tree     *dsl.Node
	cfg      *ir.Config
	output   string
	warnings diag.Diagnostics
}

type stage struct {
	name string
	fn   func(ctx context.Context, r *run) error
}

// stages returns the stage list through last, inclusive.
func (r *Registry) stages(last string) []stage {
	all := []stage{
		{StageParse, func(_ context.Context, s *run) (err error) {
			s.tree, err = dsl.Parse(s.src)
			return err
		}},
		{StageBuild, func(_ context.Context, s *run) (err error) {
			s.cfg, err = ir.Build(s.tree)
			return err
		}},
		{StageUnroll, func(_ context.Context, s *run) (err error) {
			s.cfg, err = transform.Unroll(s.cfg, r.evaluator)
			return err
		}},
		{StageExpand, func(_ context.Context, s *run) (err error) {
			s.cfg, err = transform.Expand(s.cfg)
			return err
		}},
		{StageResolve, func(_ context.Context, s *run) (err error) {
			s.cfg, err = transform.Resolve(s.cfg, s.env, transform.ResolveOptions{
				MaxPasses: r.opts.MaxPasses,
				Evaluator: r.evaluator,
			})
			return err
		}},
		{StageValidate, func(_ context.Context, s *run) (err error) {
			s.cfg, err = r.validator.Validate(s.cfg)
			return err
		}},
		{StageLint, r.lint},
		{StageGenerate, func(_ context.Context, s *run) (err error) {
			s.output, err = codegen.Generate(s.cfg, codegen.Options{
				OmitHeader: r.opts.OmitHeader,
				Locator:    r.opts.Locator,
			})
			return err
		}},
	}

	for i, st := range all {
		if st.name == last {
			return all[:i+1]
		}
	}
	return all
}

func (r *Registry) lint(ctx context.Context, s *run) error {
	if r.opts.Linter == nil {
		return nil
	}
	warnings, err := r.opts.Linter.Lint(ctx, s.cfg)
	if err != nil {
		// A broken policy is reported, not fatal.
		s.warnings = append(s.warnings, diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Kind:     diag.KindValidation,
			Code:     "LINT_FAILED",
			Message:  err.Error(),
		})
		return nil
	}
	s.warnings = append(s.warnings, warnings...)
	return nil
}

// execute runs stages in order, checking ctx before each one.
func (r *Registry) execute(ctx context.Context, s *run, stages []stage) error {
	logger := r.tel.Logger.NewComponentLogger("pipeline").WithRunID(s.id)
	ctx = logger.WithContext(ctx)
	ctx, span := r.tel.Tracer.StartSpan(ctx, "translate", telemetry.AttrRunID.String(s.id))
	defer span.End()

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return err
		}

		sc := r.tel.StartStage(ctx, st.name)
		err := st.fn(sc.Ctx, s)
		sc.End(err, stageFields(s))
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}
	telemetry.RecordSuccess(span)
	return nil
}

func stageFields(s *run) map[string]interface{} {
	fields := map[string]interface{}{}
	switch {
	case s.output != "":
		fields["output_bytes"] = len(s.output)
	case s.cfg != nil:
		fields["nodes"] = countNodes(s.cfg)
	case s.tree != nil:
		fields["items"] = len(s.tree.Children)
	}
	return fields
}

func countNodes(cfg *ir.Config) int {
	n := 0
	ir.Walk(cfg, func(ir.Node) bool {
		n++
		return true
	})
	return n - 1
}

// Translate runs every stage on src and returns the generated configuration.
// On failure no partial output is returned.
func (r *Registry) Translate(ctx context.Context, src string, env transform.EnvLookup) (*Result, error) {
	s := &run{id: uuid.NewString(), src: src, env: env}

	err := r.execute(ctx, s, r.stages(StageGenerate))
	r.record(err, s.warnings)
	if err != nil {
		return nil, err
	}

	r.tel.Metrics.SetOutputBytes(len(s.output))
	return &Result{
		RunID:    s.id,
		Output:   s.output,
		Scripts:  r.scripts(s.cfg),
		Config:   s.cfg,
		Warnings: s.warnings,
	}, nil
}

// ValidateOnly runs the stages up to and including validation and lint and
// reports every finding. Code generation never runs.
func (r *Registry) ValidateOnly(ctx context.Context, src string, env transform.EnvLookup) diag.Diagnostics {
	s := &run{id: uuid.NewString(), src: src, env: env}

	err := r.execute(ctx, s, r.stages(StageLint))
	r.record(err, s.warnings)

	var out diag.Diagnostics
	if err != nil {
		out = diag.FromError(err)
	}
	return append(out, s.warnings...)
}

func (r *Registry) record(err error, warnings diag.Diagnostics) {
	m := r.tel.Metrics
	switch {
	case err == nil:
		m.RecordTranslation(telemetry.ResultSuccess)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.RecordTranslation(telemetry.ResultCanceled)
	default:
		m.RecordTranslation(telemetry.ResultFailure)
	}

	if err != nil {
		for _, d := range diag.FromError(err) {
			m.RecordDiagnostic(string(d.Kind), string(d.Severity))
		}
	}
	for _, d := range warnings {
		m.RecordDiagnostic(string(d.Kind), string(d.Severity))
	}
}

func (r *Registry) scripts(cfg *ir.Config) []Script {
	var out []Script
	ir.Walk(cfg, func(n ir.Node) bool {
		if ls, ok := n.(*ir.LuaScript); ok {
			out = append(out, Script{
				Name: ls.Name,
				Path: r.opts.Locator(ls.Name),
				Body: ls.Body,
			})
		}
		return true
	})
	return out
}
