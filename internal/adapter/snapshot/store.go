// Package snapshot persists one CSV snapshot per dataset pull so a run can
// survive remote-source outages.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/frame"
)

// Store keeps snapshots as whole files under one directory. Writes go
// through a temp file plus rename so a concurrent reader never observes a
// half-written snapshot.
type Store struct {
	dir    string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewStore creates the directory if needed.
func NewStore(dir string, clock clockwork.Clock, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, clock: clock, logger: logger}, nil
}

func (s *Store) path(key domain.SnapshotKey) string {
	return filepath.Join(s.dir, key.String()+".csv")
}

// Get loads the snapshot for key, reporting ok=false when none exists. The
// frame comes back with string columns only; callers apply the same numeric
// coercion used on live data.
func (s *Store) Get(key domain.SnapshotKey) (*frame.Frame, bool, error) {
	path := s.path(key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat snapshot %s: %w", path, err)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer fh.Close()

	f, err := frame.ReadCSV(fh)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	s.logger.Info("loaded cached snapshot",
		"key", key.String(),
		"rows", f.NumRows(),
		"age", s.clock.Since(info.ModTime()).Round(time.Second).String(),
	)
	return f, true, nil
}

// Put replaces the snapshot for key.
func (s *Store) Put(key domain.SnapshotKey, f *frame.Frame) error {
	tmp, err := os.CreateTemp(s.dir, key.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.logger.Debug("snapshot persisted", "key", key.String(), "rows", f.NumRows())
	return nil
}
