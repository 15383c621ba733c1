package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/config"
	"github.com/openfroyo/haproxy-translate/pkg/diag"
	"github.com/openfroyo/haproxy-translate/pkg/pipeline"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		lint      bool
		policyDir string
		envFile   string
	)

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a DSL file without generating output",
		Long: `Validate runs the stages up to and including validation, and the lint
policies when requested. Code generation never runs and nothing is written.

Every finding is printed. The exit status is non-zero when any finding is an
error; lint warnings alone do not fail validation.`,
		Example: `  # Check a file
  haproxy-translate validate site.hcfg

  # Include lint policies and print JSON
  haproxy-translate validate site.hcfg --lint --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file := args[0]

			s, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("lint") {
				s.Lint = lint
			}
			if cmd.Flags().Changed("policy") {
				s.PolicyDir = policyDir
				s.Lint = true
			}
			if cmd.Flags().Changed("env-file") {
				s.EnvFile = envFile
			}
			if err := s.Validate(); err != nil {
				return err
			}

			tel, err := newTelemetry(cmd, s)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			ds, err := validateFile(ctx, s, tel, file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ds) == 0 && !jsonOutput {
				fmt.Fprintf(out, "%s: ok\n", file)
				return nil
			}
			printDiagnostics(out, ds)
			if ds.HasErrors() {
				return ErrReported
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lint, "lint", false, "run lint policies")
	cmd.Flags().StringVar(&policyDir, "policy", "", "directory with extra .rego lint policies (implies --lint)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "KEY=VALUE file overlaid on the environment")

	return cmd
}

func validateFile(ctx context.Context, s *config.Settings, tel *telemetry.Telemetry, file string) (diag.Diagnostics, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	env, err := s.Env()
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{MaxPasses: s.MaxPasses}
	if s.Lint {
		linter, err := newLinter(ctx, s, tel)
		if err != nil {
			return nil, err
		}
		opts.Linter = linter
	}

	ds := pipeline.NewRegistry(nil, tel, opts).ValidateOnly(ctx, string(src), env)
	return ds.WithSource(file), nil
}
