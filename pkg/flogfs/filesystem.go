// Package flogfs is the public, service-style façade over
// internal/flogfs: a friendlier handle-based API plus structured
// logging and a small set of operation counters, in the teacher's
// pkg/services idiom.
//
// Reference: spec.md §1 (Purpose & Scope).
package flogfs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dark0711/flogfs/internal/flogfs"
	"github.com/dark0711/flogfs/internal/interfaces"
)

// Stats counts completed operations, surfaced to callers (e.g. the CLI's
// fsck summary) without requiring a metrics backend.
type Stats struct {
	Reads   uint64
	Writes  uint64
	Opens   uint64
	Removes uint64
	Mounts  uint64
}

// Filesystem wraps internal/flogfs.FS the way the teacher's
// pkg/services.FilesystemService wraps its container manager: it owns
// construction/initialization and exposes the same operations under
// friendlier names, adding structured logging and counters around each
// call.
type Filesystem struct {
	fs  *flogfs.FS
	log *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New constructs a Filesystem over the given flash driver and FS lock.
// log may be nil, in which case slog.Default() is used.
func New(geo flogfs.Geometry, flash interfaces.FlashDriver, lock interfaces.FSLock, log *slog.Logger) *Filesystem {
	if log == nil {
		log = slog.Default()
	}
	diag := &slogDiagnostics{log: log}
	return &Filesystem{
		fs:  flogfs.New(geo, flash, lock, diag),
		log: log,
	}
}

// slogDiagnostics adapts interfaces.Diagnostics onto log/slog, the one
// place this codebase deliberately upgrades the teacher's ad hoc
// fmt.Printf diagnostics to structured logging.
type slogDiagnostics struct {
	log *slog.Logger
}

func (d *slogDiagnostics) Warn(msg string, args ...any)  { d.log.Warn(msg, args...) }
func (d *slogDiagnostics) Error(msg string, args ...any) { d.log.Error(msg, args...) }

// Init prepares the underlying flash driver for use.
func (s *Filesystem) Init() error {
	if err := s.fs.Init(); err != nil {
		return err
	}
	s.log.Info("flash initialized")
	return nil
}

// Format erases the medium and writes a fresh, empty filesystem.
func (s *Filesystem) Format() error {
	if err := s.fs.Format(); err != nil {
		return fmt.Errorf("filesystem: format: %w", err)
	}
	s.log.Info("formatted")
	return nil
}

// Mount reconstructs in-memory state from the medium.
func (s *Filesystem) Mount() error {
	if err := s.fs.Mount(); err != nil {
		return fmt.Errorf("filesystem: mount: %w", err)
	}
	s.mu.Lock()
	s.stats.Mounts++
	s.mu.Unlock()
	s.log.Info("mounted")
	return nil
}

// Create opens name for writing, creating a new file entry.
func (s *Filesystem) Create(name string) (flogfs.Handle, error) {
	h, err := s.fs.OpenWrite(name)
	if err != nil {
		return 0, fmt.Errorf("filesystem: create %q: %w", name, err)
	}
	s.mu.Lock()
	s.stats.Opens++
	s.mu.Unlock()
	s.log.Debug("opened for write", "name", name, "handle", h)
	return h, nil
}

// Open opens name for reading.
func (s *Filesystem) Open(name string) (flogfs.Handle, error) {
	h, err := s.fs.OpenRead(name)
	if err != nil {
		return 0, fmt.Errorf("filesystem: open %q: %w", name, err)
	}
	s.mu.Lock()
	s.stats.Opens++
	s.mu.Unlock()
	s.log.Debug("opened for read", "name", name, "handle", h)
	return h, nil
}

// Write appends p to the file identified by h.
func (s *Filesystem) Write(h flogfs.Handle, p []byte) (int, error) {
	n, err := s.fs.Write(h, p)
	if err != nil {
		return n, fmt.Errorf("filesystem: write: %w", err)
	}
	s.mu.Lock()
	s.stats.Writes++
	s.mu.Unlock()
	return n, nil
}

// Read copies bytes from the file identified by h into dst.
func (s *Filesystem) Read(h flogfs.Handle, dst []byte) (int, error) {
	n, err := s.fs.Read(h, dst)
	s.mu.Lock()
	s.stats.Reads++
	s.mu.Unlock()
	if err != nil {
		return n, err
	}
	return n, nil
}

// CloseWrite flushes and releases a write handle.
func (s *Filesystem) CloseWrite(h flogfs.Handle) error {
	if err := s.fs.CloseWrite(h); err != nil {
		return fmt.Errorf("filesystem: close write: %w", err)
	}
	return nil
}

// CloseRead releases a read handle.
func (s *Filesystem) CloseRead(h flogfs.Handle) error {
	if err := s.fs.CloseRead(h); err != nil {
		return fmt.Errorf("filesystem: close read: %w", err)
	}
	return nil
}

// Info returns the mounted filesystem's published state: inode0
// location, file and free-block counts, maximum block age, and the FS
// clock.
func (s *Filesystem) Info() (flogfs.FSInfo, error) {
	info, err := s.fs.Info()
	if err != nil {
		return flogfs.FSInfo{}, fmt.Errorf("filesystem: info: %w", err)
	}
	return info, nil
}

// List returns every currently live file.
func (s *Filesystem) List() ([]flogfs.FileInfo, error) {
	files, err := s.fs.List()
	if err != nil {
		return nil, fmt.Errorf("filesystem: list: %w", err)
	}
	return files, nil
}

// Remove deletes the named file.
func (s *Filesystem) Remove(name string) error {
	if err := s.fs.Remove(name); err != nil {
		return fmt.Errorf("filesystem: remove %q: %w", name, err)
	}
	s.mu.Lock()
	s.stats.Removes++
	s.mu.Unlock()
	s.log.Debug("removed", "name", name)
	return nil
}

// ReadAll is a convenience helper that opens name, reads it to
// completion, and closes it, mirroring the teacher's higher-level
// pkg/services helpers built atop a lower manager layer.
func (s *Filesystem) ReadAll(name string) ([]byte, error) {
	h, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer s.CloseRead(h)

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(h, buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if err == flogfs.ErrEOF {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// WriteAll is a convenience helper that creates name, writes p in full,
// and closes it.
func (s *Filesystem) WriteAll(name string, p []byte) error {
	h, err := s.Create(name)
	if err != nil {
		return err
	}
	if _, err := s.Write(h, p); err != nil {
		s.CloseWrite(h)
		return err
	}
	return s.CloseWrite(h)
}

// Stats returns a snapshot of accumulated operation counters.
func (s *Filesystem) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
