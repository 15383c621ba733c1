package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig holds SSH connection settings for sftp:// targets.
type SFTPConfig struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username
	User string

	// Password enables password authentication when no key is set
	Password string

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification
	InsecureIgnoreHostKey bool

	// ConnectionTimeout is the timeout for establishing a connection
	ConnectionTimeout time.Duration
}

// DefaultSFTPConfig returns key authentication against ~/.ssh/known_hosts.
func DefaultSFTPConfig() SFTPConfig {
	home, _ := os.UserHomeDir()
	return SFTPConfig{
		Port:              22,
		User:              os.Getenv("USER"),
		KnownHostsPath:    filepath.Join(home, ".ssh", "known_hosts"),
		ConnectionTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration and fills in a default private key.
func (c *SFTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	if c.Password == "" && c.PrivateKeyPath == "" {
		home, _ := os.UserHomeDir()
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			keyPath := filepath.Join(home, ".ssh", name)
			if _, err := os.Stat(keyPath); err == nil {
				c.PrivateKeyPath = keyPath
				break
			}
		}
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("no private key configured and no default key found")
		}
	}
	if c.PrivateKeyPath != "" {
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	}

	if !c.InsecureIgnoreHostKey && c.KnownHostsPath == "" {
		return fmt.Errorf("known_hosts path is required unless host key checking is disabled")
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	return nil
}

// clientConfig creates an ssh.ClientConfig from the configuration.
func (c *SFTPConfig) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if c.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.Password))

		// Many servers only offer keyboard-interactive for passwords.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !c.InsecureIgnoreHostKey {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

// Address returns the formatted SSH address (host:port).
func (c *SFTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SFTP writes files below a directory on a remote host.
type SFTP struct {
	Dir string

	client *sftp.Client
	conn   io.Closer
	label  string
}

// NewSFTP wraps an established SFTP client. Closing the sink closes client.
func NewSFTP(client *sftp.Client, dir string) *SFTP {
	return &SFTP{Dir: dir, client: client, label: "sftp:" + dir}
}

// DialSFTP connects to the configured host and returns a sink rooted at dir.
func DialSFTP(ctx context.Context, cfg SFTPConfig, dir string) (*SFTP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Op: "connect", Target: cfg.Host, Err: fmt.Errorf("invalid config: %w", err)}
	}
	clientConfig, err := cfg.clientConfig()
	if err != nil {
		return nil, &Error{Op: "connect", Target: cfg.Host, Err: err}
	}

	address := cfg.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	var conn *ssh.Client
	select {
	case <-ctx.Done():
		// Close a connection that completes after cancellation.
		go func() {
			select {
			case c := <-connChan:
				_ = c.Close()
			case <-errChan:
			}
		}()
		return nil, &Error{Op: "connect", Target: address, Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return nil, &Error{Op: "connect", Target: address, Err: err, IsTemporary: true}
	case conn = <-connChan:
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, &Error{Op: "sftp-init", Target: address, Err: err}
	}

	log.Info().Str("address", address).Msg("SFTP connection established")
	return &SFTP{
		Dir:    dir,
		client: client,
		conn:   conn,
		label:  fmt.Sprintf("sftp://%s@%s%s", cfg.User, address, dir),
	}, nil
}

func (s *SFTP) resolve(name string) string {
	if path.IsAbs(name) || s.Dir == "" {
		return name
	}
	return path.Join(s.Dir, name)
}

// Write uploads data to a temporary file and renames it over name.
func (s *SFTP) Write(ctx context.Context, name string, data []byte) error {
	startTime := time.Now()
	target := s.resolve(name)

	if err := s.client.MkdirAll(path.Dir(target)); err != nil {
		return &Error{Op: "mkdir", Target: path.Dir(target), Err: err}
	}

	tmpName := path.Join(path.Dir(target), "."+path.Base(target)+".tmp-"+uuid.NewString()[:8])
	remoteFile, err := s.client.Create(tmpName)
	if err != nil {
		return &Error{Op: "write", Target: target, Err: err, IsTemporary: true}
	}

	written, err := copyWithContext(ctx, remoteFile, data)
	if cerr := remoteFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.client.Remove(tmpName)
		return &Error{Op: "write", Target: target, Err: err, IsTemporary: true}
	}

	if err := s.replace(tmpName, target); err != nil {
		_ = s.client.Remove(tmpName)
		return &Error{Op: "rename", Target: target, Err: err}
	}

	log.Debug().
		Str("remote", target).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file uploaded")
	return nil
}

// replace renames tmp over target. Servers without the posix-rename
// extension get a remove followed by a plain rename.
func (s *SFTP) replace(tmp, target string) error {
	if err := s.client.PosixRename(tmp, target); err == nil {
		return nil
	}
	if _, err := s.client.Stat(target); err == nil {
		if err := s.client.Remove(target); err != nil {
			return err
		}
	}
	return s.client.Rename(tmp, target)
}

// Close closes the SFTP session and its SSH connection.
func (s *SFTP) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *SFTP) String() string {
	return s.label
}

// copyWithContext writes data in chunks, stopping when ctx is done.
func copyWithContext(ctx context.Context, dst io.Writer, data []byte) (int64, error) {
	const chunk = 32 * 1024
	var written int64
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := len(data)
		if n > chunk {
			n = chunk
		}
		nw, err := dst.Write(data[:n])
		written += int64(nw)
		if err != nil {
			return written, err
		}
		if nw != n {
			return written, io.ErrShortWrite
		}
		data = data[n:]
	}
	return written, nil
}
