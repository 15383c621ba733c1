package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/config"
)

// SampleFile is the DSL file written by init.
const SampleFile = "haproxy.hcfg"

const sampleSource = `# Sample haproxy-translate configuration.
let app_port = env("APP_PORT", 8080)

template server_defaults {
    check: true
    inter: 3s
    rise: 2
    fall: 3
}

global {
    daemon: true
    maxconn: 4096
}

defaults {
    mode: http
    timeout: { connect: 5s, client: 30s, server: 30s }
}

frontend web {
    bind *:80
    acl is_api path_beg /api
    use_backend api if is_api
    default_backend: app
}

backend app {
    balance: roundrobin
    for i in [1..3] {
        server "web${i}" {
            address: "10.0.1.${i}"
            port: "${app_port}"
            @server_defaults
        }
    }
}

backend api {
    balance: leastconn
    health-check {
        method: GET
        uri: /health
        expect_status: 200
    }
    for host in ["10.0.2.1", "10.0.2.2"] {
        server "api_${host}" {
            address: "${host}"
            port: 9000
            check: true
        }
    }
}
`

const sampleSettings = `# haproxy-translate settings. Command line flags override these values.
output: haproxy.cfg
lua_dir: lua
max_passes: 10
lint: true
verify: false
history_db: .haproxy-translate/history.db
log:
  level: info
  format: console
tracing:
  exporter: none
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a sample DSL file and settings",
		Long: `Init writes ` + SampleFile + ` and ` + config.DefaultFile + ` into DIR (default the
current directory). Existing files are left alone unless --force is given.`,
		Example: `  # Start a new project
  haproxy-translate init ./lb
  cd lb && haproxy-translate translate ` + SampleFile,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}

			out := cmd.OutOrStdout()
			for _, f := range []struct{ name, content string }{
				{SampleFile, sampleSource},
				{config.DefaultFile, sampleSettings},
			} {
				path := filepath.Join(dir, f.name)
				if _, err := os.Stat(path); err == nil && !force {
					fmt.Fprintf(out, "- Skipped existing %s\n", path)
					continue
				}
				if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(out, "✓ Created %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}
