package sink

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Sink stores named files below a root location.
type Sink interface {
	// Write replaces name with data. Relative names are resolved against the
	// sink root; missing directories are created.
	Write(ctx context.Context, name string, data []byte) error

	// Close releases any connection held by the sink.
	Close() error

	// String describes the sink root for logs.
	String() string
}

// Error is returned by sink operations.
type Error struct {
	// Op is the operation that failed (e.g., "connect", "write")
	Op string

	// Target is the file or location involved
	Target string

	// Err is the underlying error
	Err error

	// IsTemporary indicates the operation may succeed when retried
	IsTemporary bool
}

func (e *Error) Error() string {
	if e.Target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Temporary() bool {
	return e.IsTemporary
}

// Target is a parsed destination.
type Target struct {
	// Scheme is "file" or "sftp".
	Scheme string

	// Path is the directory or file path at the destination.
	Path string

	// Host, Port and User are set for sftp targets.
	Host string
	Port int
	User string
}

// IsRemote reports whether the target is reached over the network.
func (t Target) IsRemote() bool {
	return t.Scheme == "sftp"
}

func (t Target) String() string {
	if !t.IsRemote() {
		return t.Path
	}
	return fmt.Sprintf("sftp://%s@%s:%d%s", t.User, t.Host, t.Port, t.Path)
}

// Split returns the target for the directory holding the file together with
// the file name.
func (t Target) Split() (Target, string) {
	dir := t
	if t.IsRemote() {
		dir.Path = path.Dir(t.Path)
		return dir, path.Base(t.Path)
	}
	dir.Path = filepath.Dir(t.Path)
	return dir, filepath.Base(t.Path)
}

// ParseTarget parses a local path or an sftp:// URL.
func ParseTarget(raw string) (Target, error) {
	if raw == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if !strings.Contains(raw, "://") {
		return Target{Scheme: "file", Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		return Target{Scheme: "file", Path: u.Path}, nil
	case "sftp":
	default:
		return Target{}, fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}

	t := Target{Scheme: "sftp", Host: u.Hostname(), Port: 22, Path: u.Path}
	if t.Host == "" {
		return Target{}, fmt.Errorf("sftp target %q has no host", raw)
	}
	if u.User != nil {
		t.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port in %q", raw)
		}
		t.Port = port
	}
	if t.Path == "" {
		t.Path = "/"
	}
	return t, nil
}

// Options configures how remote sinks authenticate.
type Options struct {
	SFTP SFTPConfig
}

// Open returns a sink rooted at the directory target.
func Open(ctx context.Context, target string, opts Options) (Sink, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	return open(ctx, t, opts)
}

// OpenFile returns a sink rooted at the directory of a file target and the
// file name to write.
func OpenFile(ctx context.Context, target string, opts Options) (Sink, string, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, "", err
	}
	dir, name := t.Split()
	s, err := open(ctx, dir, opts)
	if err != nil {
		return nil, "", err
	}
	return s, name, nil
}

func open(ctx context.Context, t Target, opts Options) (Sink, error) {
	if !t.IsRemote() {
		return NewLocal(t.Path), nil
	}

	cfg := opts.SFTP
	cfg.Host = t.Host
	cfg.Port = t.Port
	if t.User != "" {
		cfg.User = t.User
	}
	return DialSFTP(ctx, cfg, t.Path)
}
