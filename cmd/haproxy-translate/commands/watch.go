package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/stores"
	"github.com/openfroyo/haproxy-translate/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	var (
		flags         translateFlags
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-translate FILE whenever it changes",
		Long: `Watch translates FILE once and then again each time it or the env file
changes. Bursts of changes are collapsed: a run starts after the files have
been quiet for half a second.

A failed run prints its diagnostics and leaves the previous output in place.
With --history, a source identical to the last successful run is skipped at
startup.`,
		Example: `  # Keep haproxy.cfg in sync with site.hcfg
  haproxy-translate watch site.hcfg -o /etc/haproxy/haproxy.cfg

  # Expose Prometheus metrics while watching
  haproxy-translate watch site.hcfg -o haproxy.cfg --metrics-listen 127.0.0.1:9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file := args[0]

			s, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-listen") {
				s.Metrics.Listen = metricsListen
			}
			if err := flags.apply(cmd, s); err != nil {
				return err
			}
			if s.Output == "" {
				return fmt.Errorf("watch needs an output: set --output or output in the settings file")
			}

			tel, err := newTelemetry(cmd, s)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()

			if err := tel.Metrics.StartMetricsServer(ctx, tel.Logger); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}

			t, err := newTranslator(ctx, cmd, s, tel)
			if err != nil {
				return err
			}
			defer t.Close()

			w, err := watch.New(tel.Logger.Zerolog(), watch.DefaultDelay)
			if err != nil {
				return err
			}
			files := []string{file}
			if s.EnvFile != "" {
				files = append(files, s.EnvFile)
			}
			if err := w.Add(files...); err != nil {
				_ = w.Close()
				return err
			}

			l := &watchLoop{t: t, file: file, envFile: s.EnvFile}
			if err := l.initial(ctx); err != nil {
				_ = w.Close()
				return err
			}
			return w.Run(ctx, l.onChange)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this host:port")

	return cmd
}

// watchLoop re-runs translations and skips inputs identical to the last
// successful run.
type watchLoop struct {
	t       *translator
	file    string
	envFile string

	// Digests of the inputs of the last successful run.
	lastSource string
	lastEnv    string
}

// inputs returns the source text and the digests of the source and env file.
func (l *watchLoop) inputs() (string, string, string, error) {
	src, err := os.ReadFile(l.file)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read source: %w", err)
	}
	envDigest := ""
	if l.envFile != "" {
		data, err := os.ReadFile(l.envFile)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to read env file: %w", err)
		}
		envDigest = stores.Digest(string(data))
	}
	return string(src), stores.Digest(string(src)), envDigest, nil
}

// initial runs the first translation. An initial failure is reported but
// keeps the watch running so the file can be fixed.
func (l *watchLoop) initial(ctx context.Context) error {
	src, srcDigest, envDigest, err := l.inputs()
	if err != nil {
		return err
	}
	if l.envFile == "" && l.t.unchanged(ctx, l.file, src) {
		l.t.logger.WithSource(l.file).Info("source unchanged since last successful run, skipping")
		l.lastSource, l.lastEnv = srcDigest, envDigest
		return nil
	}
	return l.run(ctx, src, srcDigest, envDigest)
}

func (l *watchLoop) onChange(ctx context.Context) error {
	src, srcDigest, envDigest, err := l.inputs()
	if err != nil {
		return err
	}
	if srcDigest == l.lastSource && envDigest == l.lastEnv {
		l.t.logger.WithSource(l.file).Debug("inputs unchanged, skipping")
		return nil
	}
	return l.run(ctx, src, srcDigest, envDigest)
}

func (l *watchLoop) run(ctx context.Context, src, srcDigest, envDigest string) error {
	res, err := l.t.translate(ctx, l.file, src)
	switch {
	case errors.Is(err, ErrReported):
		l.t.logger.WithSource(l.file).Warn("translation failed, previous output kept")
		return nil
	case err != nil:
		return err
	}

	l.lastSource, l.lastEnv = srcDigest, envDigest
	l.t.logger.WithSource(l.file).
		WithRunID(res.RunID).
		Infof("wrote %s", l.t.settings.Output)
	return nil
}
