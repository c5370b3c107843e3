package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SpoolPrefix starts the name of every spooled temp file. The sweeper only
// touches files carrying it, so the spool may live in a shared temp dir.
const SpoolPrefix = "upload-"

// SpoolSweeper periodically removes temp files that were spooled for an
// upload but never moved into storage, e.g. after a rejected file or a
// crashed request.
type SpoolSweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	done     chan struct{}
}

// NewSpoolSweeper creates a sweeper for dir.
func NewSpoolSweeper(dir string, maxAge, interval time.Duration) *SpoolSweeper {
	return &SpoolSweeper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *SpoolSweeper) Start(ctx context.Context) {
	slog.Info("spool sweeper started", "dir", s.dir, "interval", s.interval, "max_age", s.maxAge)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep()

		for {
			select {
			case <-ticker.C:
				s.runSweep()
			case <-ctx.Done():
				slog.Info("spool sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *SpoolSweeper) Wait() {
	<-s.done
}

func (s *SpoolSweeper) runSweep() {
	removed, failed, err := s.Sweep(time.Now())
	if err != nil {
		slog.Error("failed to sweep spool directory", "dir", s.dir, "error", err)
		return
	}
	if removed == 0 && failed == 0 {
		return
	}
	slog.Info("spool sweep complete", "removed", removed, "failed", failed)
}

// Sweep removes spool files last modified before now minus maxAge. A missing directory is not an error.
func (s *SpoolSweeper) Sweep(now time.Time) (removed, failed int, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	cutoff := now.Add(-s.maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), SpoolPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Error("failed to remove stale spool file", "path", path, "error", err)
			failed++
			continue
		}
		removed++
	}

	return removed, failed, nil
}
