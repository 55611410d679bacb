package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig locates a remote directory.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyFile  string
	Root     string
}

// SFTP stores files on a remote host.
type SFTP struct {
	client *sftp.Client
	closer io.Closer
	root   string
	locks  pathLocks
}

// DialSFTP connects to the configured host.
func DialSFTP(cfg SFTPConfig) (*SFTP, error) {
	auth, err := sshAuth(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	conn, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(port)), &ssh.ClientConfig{
		User: cfg.User,
		Auth: auth,
		// TODO: verify host keys against a configured known_hosts file.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.Host, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting sftp on %s: %w", cfg.Host, err)
	}
	s := NewSFTPClient(client, cfg.Root)
	s.closer = conn
	return s, nil
}

// NewSFTPClient wraps an established client.
func NewSFTPClient(client *sftp.Client, root string) *SFTP {
	if root == "" {
		root = "/"
	}
	return &SFTP{client: client, root: root}
}

func sshAuth(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("sftp needs a password or key file")
	}
	return methods, nil
}

// Close ends the session.
func (s *SFTP) Close() error {
	err := s.client.Close()
	if s.closer != nil {
		s.closer.Close()
	}
	return err
}

func (s *SFTP) path(name string) (string, error) {
	name, err := Clean(name)
	if err != nil {
		return "", err
	}
	return path.Join(s.root, name), nil
}

func (s *SFTP) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := s.client.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return f, err
}

func (s *SFTP) Save(ctx context.Context, name string, r io.Reader) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(p)
	defer unlock()

	if err := s.client.MkdirAll(path.Dir(p)); err != nil {
		return fmt.Errorf("creating remote directory: %w", err)
	}
	f, err := s.client.Create(p)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p, err)
	}
	if _, err := io.Copy(f, &contextReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return f.Close()
}

func (s *SFTP) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.client.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("deleting %s: %w", p, err)
	}
	return nil
}

func (s *SFTP) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Size(ctx, name)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *SFTP) Size(_ context.Context, name string) (int64, error) {
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	fi, err := s.client.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// DirExists reports whether dir exists on the remote host.
func (s *SFTP) DirExists(dir string) (bool, error) {
	fi, err := s.client.Stat(path.Join(s.root, dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}
