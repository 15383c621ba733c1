// Package telemetry provides the observability plumbing of the translator:
// structured logging (zerolog), tracing (OpenTelemetry) and metrics
// (Prometheus).
//
// # Usage
//
// Initialize telemetry at startup and pass it to the pipeline:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Stages
//
// Every pipeline stage is wrapped in a StageContext:
//
//	sc := tel.StartStage(ctx, "parse")
//	tree, err := dsl.Parse(src)
//	sc.End(err, map[string]interface{}{"items": len(tree.Children)})
//
// End observes haproxy_translate_stage_duration_seconds{stage}, closes the
// span "translate.<stage>" and logs one debug line.
//
// # Metrics
//
// Metrics live in a private registry, never the global default one:
//
//   - translations_total{result}
//   - stage_duration_seconds{stage}
//   - diagnostics_total{kind,severity}
//   - output_bytes
//
// Handler exposes the registry over HTTP; StartMetricsServer serves it until
// its context is canceled.
//
// # Tracing
//
// Exporters are "none" (spans are created and dropped), "stdout" and "otlp"
// (gRPC). The tracer owns its provider; the global otel provider is not
// modified.
package telemetry
