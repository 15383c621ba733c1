package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/config"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
)

// ErrReported is returned when a command has already printed its failure.
var ErrReported = errors.New("errors reported")

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	version = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, ver, commit, buildDate string) error {
	version = ver
	rootCmd := newRootCommand(ver, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "haproxy-translate",
		Short: "Translate a structured DSL into HAProxy configuration",
		Long: `haproxy-translate compiles a block-structured configuration language into
native HAProxy configuration text.

The language adds what haproxy.cfg lacks:
  - Variables with ${...} interpolation and env() lookups
  - Reusable templates spread with @name
  - for loops over ranges and lists
  - Inline Lua scripts written next to the output
  - Schema checks and lint policies before anything is written`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (default "+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print diagnostics and listings as JSON")

	// Add subcommands
	rootCmd.AddCommand(newTranslateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newInitCommand())

	return rootCmd
}

// loadSettings reads the settings file and applies the global flags.
func loadSettings() (*config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		s.Log.Level = "debug"
	}
	return s, nil
}

// newTelemetry builds telemetry for s with logs written to the command's
// error stream.
func newTelemetry(cmd *cobra.Command, s *config.Settings) (*telemetry.Telemetry, error) {
	cfg := s.Telemetry(version)
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel.Logger = telemetry.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging)
	return tel, nil
}
