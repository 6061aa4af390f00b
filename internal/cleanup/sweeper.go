// Package cleanup removes stale temporary files left behind by interrupted jobs.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Prefixes of the files and directories the pipeline creates in the work dir.
var ownedPrefixes = []string{"job-", "recording-"}

// Sweeper periodically deletes pipeline temp entries older than the retention window.
type Sweeper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper for dir; an empty dir means os.TempDir().
func NewSweeper(dir string, retention, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if retention <= 0 {
		retention = 6 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{dir: dir, retention: retention, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately, then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if n, err := s.Sweep(); err != nil {
			s.logger.Warn("temp sweep failed", zap.String("dir", s.dir), zap.Error(err))
		} else if n > 0 {
			s.logger.Info("temp sweep removed stale entries", zap.String("dir", s.dir), zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes top-level pipeline entries of dir last modified before now - retention.
// Entries that do not carry a pipeline prefix are left alone.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		if !owned(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("remove stale temp entry", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func owned(name string) bool {
	for _, p := range ownedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
