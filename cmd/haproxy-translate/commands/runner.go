package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/haproxy-translate/pkg/config"
	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/haproxycheck"
	"github.com/openfroyo/haproxy-translate/pkg/ir"
	"github.com/openfroyo/haproxy-translate/pkg/pipeline"
	"github.com/openfroyo/haproxy-translate/pkg/policy"
	"github.com/openfroyo/haproxy-translate/pkg/scripts"
	"github.com/openfroyo/haproxy-translate/pkg/sink"
	"github.com/openfroyo/haproxy-translate/pkg/stores"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
)

// translator runs the pipeline for one settings snapshot and delivers the
// results. It is shared by translate and watch.
type translator struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	registry *pipeline.Registry
	scripts  *scripts.Manager
	history  *stores.SQLiteStore
	emitIR   string
	sinkOpts sink.Options

	out    io.Writer
	errOut io.Writer
}

func newTranslator(ctx context.Context, cmd *cobra.Command, s *config.Settings, tel *telemetry.Telemetry) (*translator, error) {
	t := &translator{
		settings: s,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("cli"),
		scripts:  scripts.NewManager(s.LuaDir),
		sinkOpts: sink.Options{SFTP: sink.DefaultSFTPConfig()},
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}

	opts := pipeline.Options{
		MaxPasses: s.MaxPasses,
		Locator:   t.scripts.Locate,
	}
	if s.Lint {
		linter, err := newLinter(ctx, s, tel)
		if err != nil {
			return nil, err
		}
		opts.Linter = linter
	}
	t.registry = pipeline.NewRegistry(nil, tel, opts)

	if s.HistoryDB != "" {
		store, err := stores.Open(ctx, s.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		t.history = store
	}
	return t, nil
}

func newLinter(ctx context.Context, s *config.Settings, tel *telemetry.Telemetry) (*policy.Engine, error) {
	engine, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if s.PolicyDir != "" {
		if err := engine.LoadPolicies(ctx, []string{s.PolicyDir}); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func (t *translator) Close() error {
	if t.history != nil {
		return t.history.Close()
	}
	return nil
}

// translateFile reads and translates the DSL file at file.
func (t *translator) translateFile(ctx context.Context, file string) (*pipeline.Result, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return t.translate(ctx, file, string(src))
}

// translate runs the pipeline on src and writes the output, the scripts and
// the history row. Nothing is written when any step fails.
func (t *translator) translate(ctx context.Context, file, src string) (*pipeline.Result, error) {
	started := time.Now()
	logger := t.logger.WithSource(file)
	ctx = logger.WithContext(ctx)

	env, err := t.settings.Env()
	if err != nil {
		return nil, err
	}

	res, err := t.registry.Translate(ctx, src, env)
	if err != nil {
		ds := diag.FromError(err).WithSource(file)
		t.record(ctx, file, src, nil, err, ds, started)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		printDiagnostics(t.errOut, ds)
		return nil, ErrReported
	}
	if len(res.Warnings) > 0 {
		printDiagnostics(t.errOut, res.Warnings.WithSource(file))
	}

	if t.settings.Verify {
		if _, err := haproxycheck.Verify(res.Config, res.Output); err != nil {
			t.record(ctx, file, src, res, err, nil, started)
			return nil, fmt.Errorf("verification failed: %w", err)
		}
	}

	if err := t.write(ctx, res); err != nil {
		t.record(ctx, file, src, res, err, nil, started)
		return nil, err
	}

	t.record(ctx, file, src, res, nil, nil, started)
	logger.WithRunID(res.RunID).
		WithField("bytes", len(res.Output)).
		WithField("scripts", len(res.Scripts)).
		Debug("translation written")
	return res, nil
}

// write delivers the configuration, the IR dump and the scripts.
func (t *translator) write(ctx context.Context, res *pipeline.Result) error {
	if t.emitIR != "" {
		data, err := encodeIR(res.Config, t.emitIR)
		if err != nil {
			return err
		}
		if _, err := t.out.Write(data); err != nil {
			return err
		}
	}

	switch {
	case t.settings.Output != "":
		s, name, err := sink.OpenFile(ctx, t.settings.Output, t.sinkOpts)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Write(ctx, name, []byte(res.Output)); err != nil {
			return err
		}
	case t.emitIR == "":
		if _, err := io.WriteString(t.out, res.Output); err != nil {
			return err
		}
	}

	if len(res.Scripts) == 0 {
		return nil
	}
	target, err := scriptsTarget(t.settings.Output, t.settings.LuaDir)
	if err != nil {
		return err
	}
	s, err := sink.Open(ctx, target, t.sinkOpts)
	if err != nil {
		return err
	}
	defer s.Close()
	return t.scripts.Write(ctx, s, res.Scripts)
}

// scriptsTarget returns where scripts are written. A relative script
// directory is taken relative to the output file.
func scriptsTarget(output, luaDir string) (string, error) {
	if strings.Contains(luaDir, "://") {
		return luaDir, nil
	}
	if output == "" {
		if luaDir == "" {
			return ".", nil
		}
		return luaDir, nil
	}

	t, err := sink.ParseTarget(output)
	if err != nil {
		return "", err
	}
	dir, _ := t.Split()
	if dir.IsRemote() {
		if path.IsAbs(luaDir) {
			dir.Path = luaDir
		} else {
			dir.Path = path.Join(dir.Path, luaDir)
		}
		return dir.String(), nil
	}
	if filepath.IsAbs(luaDir) {
		return luaDir, nil
	}
	return filepath.Join(dir.Path, luaDir), nil
}

func encodeIR(cfg *ir.Config, format string) ([]byte, error) {
	data := ir.Export(cfg)
	switch format {
	case "json":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "yaml":
		return yaml.Marshal(data)
	}
	return nil, fmt.Errorf("unsupported IR format %q (want json or yaml)", format)
}

// record appends the run to the history ledger when one is configured.
// Ledger failures are logged and never fail the run.
func (t *translator) record(ctx context.Context, file, src string, res *pipeline.Result, runErr error, ds diag.Diagnostics, started time.Time) {
	if t.history == nil {
		return
	}

	row := &stores.Translation{
		ID:           uuid.NewString(),
		SourcePath:   absPath(file),
		SourceSHA256: stores.Digest(src),
		OutputPath:   t.settings.Output,
		Status:       stores.StatusSuccess,
		ErrorCount:   ds.Count(diag.SeverityError),
		StartedAt:    started.UTC(),
		Duration:     time.Since(started),
	}
	if res != nil {
		row.ID = res.RunID
		row.WarningCount = len(res.Warnings)
	}

	switch {
	case runErr == nil:
		row.OutputSHA256 = stores.Digest(res.Output)
	case errors.Is(runErr, context.Canceled):
		row.Status = stores.StatusCanceled
		row.Message = runErr.Error()
	default:
		row.Status = stores.StatusFailure
		row.Message = runErr.Error()
		if len(ds) > 0 {
			row.Message = ds[0].Message
		}
		if row.ErrorCount == 0 {
			row.ErrorCount = 1
		}
	}

	// A canceled run must still be recorded.
	if err := t.history.Record(context.WithoutCancel(ctx), row); err != nil {
		t.logger.WithError(err).Warn("failed to record translation history")
	}
}

// unchanged reports whether the ledger holds a successful run of file with
// the same source that wrote to the current output.
func (t *translator) unchanged(ctx context.Context, file, src string) bool {
	if t.history == nil {
		return false
	}
	if err := t.history.HealthCheck(ctx); err != nil {
		t.logger.WithError(err).Warn("history ledger unavailable")
		return false
	}
	last, err := t.history.LastSuccessful(ctx, absPath(file))
	if err != nil {
		return false
	}
	return last.SourceSHA256 == stores.Digest(src) && last.OutputPath == t.settings.Output
}

// printDiagnostics prints diagnostics as text lines or as a JSON array.
func printDiagnostics(w io.Writer, ds diag.Diagnostics) {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ds)
		return
	}
	for _, d := range ds {
		fmt.Fprintln(w, d.String())
	}
}

func absPath(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		return file
	}
	return abs
}
