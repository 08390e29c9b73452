// Package fileutil writes output files so that readers never observe a
// half-written file under the final name.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile writes to a hidden temp file next to the destination and renames
// it into place on Commit. It supports seeking so container headers can be
// patched after the payload is written.
type AtomicFile struct {
	f     *os.File
	path  string
	mode  os.FileMode
	size  int64
	close bool
}

var _ io.WriteSeeker = (*AtomicFile)(nil)

// CreateAtomic opens a temp file in the destination directory.
func CreateAtomic(path string, mode os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{f: f, path: path, mode: mode}, nil
}

// Path returns the final destination.
func (a *AtomicFile) Path() string { return a.path }

// Size returns the furthest byte offset written.
func (a *AtomicFile) Size() int64 { return a.size }

func (a *AtomicFile) Write(p []byte) (int, error) {
	if a.close {
		return 0, os.ErrClosed
	}
	n, err := a.f.Write(p)
	if pos, serr := a.f.Seek(0, io.SeekCurrent); serr == nil && pos > a.size {
		a.size = pos
	}
	return n, err
}

// Seek repositions the write offset.
func (a *AtomicFile) Seek(offset int64, whence int) (int64, error) {
	if a.close {
		return 0, os.ErrClosed
	}
	return a.f.Seek(offset, whence)
}

// Commit flushes the temp file to disk and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if a.close {
		return os.ErrClosed
	}
	a.close = true
	tmp := a.f.Name()
	err := errors.Join(a.f.Chmod(a.mode), a.f.Sync(), a.f.Close())
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", a.path, err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into %s: %w", a.path, err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() error {
	if a.close {
		return nil
	}
	a.close = true
	tmp := a.f.Name()
	closeErr := a.f.Close()
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
