package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/config"
)

// translateFlags are the settings that can be overridden per invocation.
type translateFlags struct {
	output    string
	luaDir    string
	envFile   string
	maxPasses int
	lint      bool
	policyDir string
	verify    bool
	history   string
}

func (f *translateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file or sftp://user@host[:port]/path (default stdout)")
	cmd.Flags().StringVar(&f.luaDir, "lua-dir", "", "directory for inline Lua scripts, relative to the output")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "KEY=VALUE file overlaid on the environment")
	cmd.Flags().IntVar(&f.maxPasses, "max-passes", 0, "maximum variable resolution passes")
	cmd.Flags().BoolVar(&f.lint, "lint", false, "run lint policies after validation")
	cmd.Flags().StringVar(&f.policyDir, "policy", "", "directory with extra .rego lint policies (implies --lint)")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "re-parse the output with the HAProxy config parser")
	cmd.Flags().StringVar(&f.history, "history", "", "SQLite database recording translation runs")
}

// apply overrides s with the flags set on the command line and validates
// the result.
func (f *translateFlags) apply(cmd *cobra.Command, s *config.Settings) error {
	changed := cmd.Flags().Changed
	if changed("output") {
		s.Output = f.output
	}
	if changed("lua-dir") {
		s.LuaDir = f.luaDir
	}
	if changed("env-file") {
		s.EnvFile = f.envFile
	}
	if changed("max-passes") {
		s.MaxPasses = f.maxPasses
	}
	if changed("lint") {
		s.Lint = f.lint
	}
	if changed("policy") {
		s.PolicyDir = f.policyDir
		s.Lint = true
	}
	if changed("verify") {
		s.Verify = f.verify
	}
	if changed("history") {
		s.HistoryDB = f.history
	}
	return s.Validate()
}

func newTranslateCommand() *cobra.Command {
	var (
		flags  translateFlags
		emitIR string
	)

	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Translate a DSL file into HAProxy configuration",
		Long: `Translate runs every stage on FILE: parse, build, loop unrolling, template
expansion, variable resolution, validation, optional lint and code generation.

Output is written only when every stage succeeds. Local files are replaced
atomically; sftp:// targets are uploaded to a temporary file and renamed.`,
		Example: `  # Print the configuration
  haproxy-translate translate site.hcfg

  # Write the configuration and its Lua scripts
  haproxy-translate translate site.hcfg -o /etc/haproxy/haproxy.cfg --lua-dir lua

  # Deploy to a remote host with lint and parser verification
  haproxy-translate translate site.hcfg --lint --verify \
    -o sftp://deploy@lb1/etc/haproxy/haproxy.cfg

  # Inspect the resolved IR
  haproxy-translate translate site.hcfg --emit-ir yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := loadSettings()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, s); err != nil {
				return err
			}
			if emitIR != "" && emitIR != "json" && emitIR != "yaml" {
				return fmt.Errorf("unsupported --emit-ir format %q (want json or yaml)", emitIR)
			}

			tel, err := newTelemetry(cmd, s)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			t, err := newTranslator(ctx, cmd, s, tel)
			if err != nil {
				return err
			}
			defer t.Close()
			t.emitIR = emitIR

			_, err = t.translateFile(ctx, args[0])
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&emitIR, "emit-ir", "", "print the resolved IR as json or yaml")

	return cmd
}
