// Package blob stores opaque audio files (recordings, voicemail messages and
// greetings) behind one capability. Names are slash-separated paths relative
// to the backend root.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/flowpbx/switchyard/internal/config"
)

// ErrNotExist is returned for names that are not stored.
var ErrNotExist = errors.New("blob does not exist")

// ErrInvalidName is returned for names escaping the backend root.
var ErrInvalidName = errors.New("invalid blob name")

// Blob is a file store.
type Blob interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Save writes r to name, replacing any previous content. Concurrent
	// saves of one name are serialized.
	Save(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	Size(ctx context.Context, name string) (int64, error)
}

// New builds the backend named by cfg.Backend with root as the local
// directory (or key prefix) for this store.
func New(ctx context.Context, cfg config.Storage, root string) (Blob, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(root), nil
	case "sftp":
		return DialSFTP(SFTPConfig{
			Host:     cfg.SFTP.Host,
			Port:     cfg.SFTP.Port,
			User:     cfg.SFTP.User,
			Password: cfg.SFTP.Password,
			KeyFile:  cfg.SFTP.KeyFile,
			Root:     path.Join(cfg.SFTP.Root, root),
		})
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    path.Join(cfg.S3.Prefix, strings.Trim(root, "/")),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Clean validates name and returns it in canonical form.
func Clean(name string) (string, error) {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if name == "/" {
		return "", ErrInvalidName
	}
	return strings.TrimPrefix(name, "/"), nil
}

// pathLocks serializes writers per name.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func (p *pathLocks) lock(name string) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*pathLock)
	}
	l, ok := p.locks[name]
	if !ok {
		l = &pathLock{}
		p.locks[name] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, name)
		}
		p.mu.Unlock()
	}
}
