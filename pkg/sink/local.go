package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes files below a directory on this machine.
type Local struct {
	Dir  string
	Mode os.FileMode
}

// NewLocal returns a sink rooted at dir writing mode 0644 files.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir, Mode: 0o644}
}

func (l *Local) resolve(name string) string {
	if filepath.IsAbs(name) || l.Dir == "" {
		return name
	}
	return filepath.Join(l.Dir, name)
}

// Write atomically replaces the named file.
func (l *Local) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := l.resolve(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Op: "mkdir", Target: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return &Error{Op: "write", Target: target, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has happened.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &Error{Op: "write", Target: target, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &Error{Op: "sync", Target: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "write", Target: target, Err: err}
	}

	mode := l.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return &Error{Op: "chmod", Target: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		return &Error{Op: "rename", Target: target, Err: fmt.Errorf("replace: %w", err)}
	}
	return nil
}

// Close is a no-op.
func (l *Local) Close() error {
	return nil
}

func (l *Local) String() string {
	if l.Dir == "" {
		return "."
	}
	return l.Dir
}
