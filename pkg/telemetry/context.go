package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that logs, traces and counts nothing.
func Nop() *Telemetry {
	metrics, _ := NewMetrics(MetricsConfig{})
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NopTracer(),
		Metrics: metrics,
		Config:  DefaultConfig(),
	}
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// StageContext instruments one pipeline stage with a span, a timer and a
// stage-scoped logger.
type StageContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	stage   string
	metrics *Metrics
}

// StartStage begins an instrumented stage. The logger stored in ctx, if any,
// is preferred over the telemetry logger.
func (t *Telemetry) StartStage(ctx context.Context, stage string) *StageContext {
	spanCtx, span := t.Tracer.StartStageSpan(ctx, stage)

	logger := t.Logger
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		logger = l
	}
	logger = logger.WithStage(stage)
	if id := TraceID(spanCtx); id != "" {
		logger = logger.WithField("trace_id", id)
	}

	return &StageContext{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		stage:   stage,
		metrics: t.Metrics,
	}
}

// End finishes the stage: the duration is observed, the span is closed with
// the outcome, and one debug line is logged with fields.
func (sc *StageContext) End(err error, fields map[string]interface{}) {
	elapsed := sc.Timer.Duration()
	sc.metrics.RecordStage(sc.stage, elapsed)

	logger := sc.Logger.WithField("duration", elapsed.String())
	if len(fields) > 0 {
		logger = logger.WithFields(fields)
	}

	if err != nil {
		RecordError(sc.Span, err)
		logger.WithError(err).Debug("stage failed")
	} else {
		RecordSuccess(sc.Span)
		logger.Debug("stage completed")
	}
	sc.Span.End()
}
