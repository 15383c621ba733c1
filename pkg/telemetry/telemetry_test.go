package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Exporter = "otlp" }, wantErr: true},
		{name: "otlp", mutate: func(c *Config) {
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = "localhost:4317"
		}},
		{name: "sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("pipeline").WithRunID("run-1").WithStage("parse").Debug("stage completed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"level":     "debug",
		"component": "pipeline",
		"run_id":    "run-1",
		"stage":     "parse",
		"message":   "stage completed",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output for warn level: %s", out)
	}
}

func TestLogger_Context(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() returned nil without a logger")
	}
	logger := NopLogger()
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("FromContext() did not return the stored logger")
	}
}

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordTranslation(ResultSuccess)
	m.RecordTranslation(ResultSuccess)
	m.RecordTranslation(ResultFailure)
	m.RecordDiagnostic("validation", "error")
	m.SetOutputBytes(128)
	m.RecordStage("parse", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.translations.WithLabelValues(ResultSuccess)); got != 2 {
		t.Errorf("translations{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.diagnostics.WithLabelValues("validation", "error")); got != 1 {
		t.Errorf("diagnostics{validation,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.outputBytes); got != 128 {
		t.Errorf("output_bytes = %v, want 128", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Errorf("stage_duration series = %d, want 1", got)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordTranslation(ResultSuccess)
	m.RecordStage("parse", time.Millisecond)
	m.RecordDiagnostic("parse", "error")
	m.SetOutputBytes(1)
	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
}

func TestStartStage_SpanAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics, err := NewMetrics(MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	tel := &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NewTracerWithProvider(provider),
		Metrics: metrics,
		Config:  DefaultConfig(),
	}

	tel.StartStage(context.Background(), "parse").End(nil, nil)
	tel.StartStage(context.Background(), "validate").End(errors.New("boom"), map[string]interface{}{"errors": 1})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "translate.parse" || spans[1].Name() != "translate.validate" {
		t.Errorf("span names = %q, %q", spans[0].Name(), spans[1].Name())
	}
	if len(spans[1].Events()) == 0 {
		t.Error("failed stage span has no error event")
	}
	if got := testutil.CollectAndCount(metrics.stageDuration); got != 2 {
		t.Errorf("stage_duration series = %d, want 2", got)
	}
}

func TestStartStage_LogsTraceID(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	var buf bytes.Buffer
	tel := &Telemetry{
		Logger:  NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"}),
		Tracer:  NewTracerWithProvider(provider),
		Metrics: Nop().Metrics,
		Config:  DefaultConfig(),
	}

	sc := tel.StartStage(context.Background(), "parse")
	want := TraceID(sc.Ctx)
	sc.End(nil, nil)
	if want == "" {
		t.Fatal("TraceID() is empty inside a recorded span")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["trace_id"] != want {
		t.Errorf("trace_id = %v, want %s", entry["trace_id"], want)
	}

	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() without a span = %q, want empty", id)
	}
}
