// Package scripts places inline Lua scripts next to the generated
// configuration.
package scripts

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/pipeline"
	"github.com/openfroyo/haproxy-translate/pkg/sink"
	"github.com/openfroyo/haproxy-translate/pkg/telemetry"
)

// Extension is appended to script names to form file names.
const Extension = ".lua"

// Manager maps script names to files below Dir. Dir is the directory as
// HAProxy sees it; it may be relative to the configuration file.
type Manager struct {
	Dir string
}

// NewManager returns a manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir}
}

// FileName returns the file a script is stored in.
func FileName(name string) string {
	return name + Extension
}

// Locate returns the path written in the lua-load line for name. It is
// used as the pipeline's script locator.
func (m *Manager) Locate(name string) string {
	if m.Dir == "" {
		return FileName(name)
	}
	return path.Join(m.Dir, FileName(name))
}

// Write stores every script in s, one file per script.
func (m *Manager) Write(ctx context.Context, s sink.Sink, scripts []pipeline.Script) error {
	logger := telemetry.FromContext(ctx)

	seen := make(map[string]bool, len(scripts))
	for _, sc := range scripts {
		if err := checkName(sc.Name); err != nil {
			return err
		}
		if seen[sc.Name] {
			return fmt.Errorf("script %q is defined more than once", sc.Name)
		}
		seen[sc.Name] = true
	}

	for _, sc := range scripts {
		body := strings.TrimPrefix(sc.Body, "\n")
		if body != "" && !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		if err := s.Write(ctx, FileName(sc.Name), []byte(body)); err != nil {
			return fmt.Errorf("failed to write script %q: %w", sc.Name, err)
		}
		logger.WithField("script", sc.Name).Debugf("wrote %s to %s", FileName(sc.Name), s)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid script name %q", name)
	}
	return nil
}
