// Package recording manages call recording files: archive layout, upload
// intake from the switches and the flag files that arm conference
// recordings.
package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Extensions are the recording formats the switch writes, in probe order.
var Extensions = []string{".wav", ".mp3"}

// ArchiveDir is the recordings-root relative directory for a tenant's
// recordings made on day t: <tenant>/archive/<YYYY>/<Mon>/<DD>.
func ArchiveDir(tenant string, t time.Time) string {
	return path.Join(tenant, "archive", t.Format("2006"), t.Format("Jan"), t.Format("02"))
}

// ArchiveFile is ArchiveDir plus <id><ext>.
func ArchiveFile(tenant string, t time.Time, id, ext string) string {
	return path.Join(ArchiveDir(tenant, t), id+ext)
}

// Flags hands out one-shot flag files under dir. The first caller to create
// a flag wins; every later caller sees it already taken until it is cleared
// or expires.
type Flags struct {
	dir string
}

// NewFlags returns a flag set rooted at dir.
func NewFlags(dir string) *Flags {
	return &Flags{dir: dir}
}

func (f *Flags) path(name string) string {
	return filepath.Join(f.dir, filepath.Base(name)+".flag")
}

// Acquire creates the named flag and reports whether this caller created it.
func (f *Flags) Acquire(name string) (bool, error) {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return false, fmt.Errorf("creating flag dir: %w", err)
	}
	fh, err := os.OpenFile(f.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating flag %s: %w", name, err)
	}
	return true, fh.Close()
}

// Release removes the named flag.
func (f *Flags) Release(name string) error {
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Expire removes flags older than maxAge and returns how many it removed.
func (f *Flags) Expire(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".flag" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
