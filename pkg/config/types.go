package config

// DefaultFile is the settings file read when no path is given.
const DefaultFile = ".haproxy-translate.yaml"

// Settings configures the translator. Every field can be overridden from
// the command line.
type Settings struct {
	// Output is the destination of the generated configuration: a local
	// path or an sftp:// URL. Empty writes to stdout.
	Output string `yaml:"output"`

	// LuaDir is where inline Lua scripts are written and loaded from.
	LuaDir string `yaml:"lua_dir"`

	// EnvFile holds KEY=VALUE lines overlaid on the process environment.
	EnvFile string `yaml:"env_file"`

	// MaxPasses bounds variable resolution.
	MaxPasses int `yaml:"max_passes" validate:"min=1,max=100"`

	// Lint runs the policy checks after validation.
	Lint bool `yaml:"lint"`

	// PolicyDir holds extra .rego policies.
	PolicyDir string `yaml:"policy_dir"`

	// Verify re-parses generated output with the HAProxy config parser.
	Verify bool `yaml:"verify"`

	// HistoryDB is the SQLite ledger of translation runs. Empty disables it.
	HistoryDB string `yaml:"history_db"`

	Log     LogSettings     `yaml:"log"`
	Metrics MetricsSettings `yaml:"metrics"`
	Tracing TracingSettings `yaml:"tracing"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `yaml:"level" validate:"required,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=console json"`
}

// MetricsSettings configures the metrics endpoint served by watch.
type MetricsSettings struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// TracingSettings configures trace export.
type TracingSettings struct {
	Exporter string `yaml:"exporter" validate:"required,oneof=none stdout otlp"`
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
}
