package httapi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TempFiles owns per-session scratch files under one directory. Each
// session gets <dir>/<session-id>/.
type TempFiles struct {
	dir string
}

// NewTempFiles creates the registry rooted at dir.
func NewTempFiles(dir string) *TempFiles {
	return &TempFiles{dir: dir}
}

// Path returns where a session's named scratch file lives. The record
// element writes here on the switch side.
func (t *TempFiles) Path(sessionID, name string) string {
	return filepath.Join(t.dir, filepath.Base(sessionID), filepath.Base(name))
}

// Save writes r to the session's named file and registers it. The path is
// registered before the write starts so a destroyed session removes a
// partial file too.
func (t *TempFiles) Save(sess *Session, name string, r io.Reader) (string, error) {
	p := t.Path(sess.ID, name)
	sess.register(p)
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return "", fmt.Errorf("creating session temp dir: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return p, nil
}

// Remove deletes one registered file.
func (t *TempFiles) Remove(sess *Session, path string) error {
	sess.unregister(path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll deletes every registered file and the session directory.
func (t *TempFiles) RemoveAll(sess *Session) error {
	var errs []error
	for _, p := range sess.TempFiles {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	sess.TempFiles = nil
	if sess.ID != "" {
		if err := os.RemoveAll(filepath.Join(t.dir, filepath.Base(sess.ID))); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
