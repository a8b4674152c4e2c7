// Package scheduler takes periodic backups and prunes old ones.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/notecore/internal/export"
	"github.com/kimhsiao/notecore/internal/logging"
)

// Exporter writes one backup file.
type Exporter interface {
	ExportFile(ctx context.Context, dir, path, password string) (*export.Result, error)
}

// Config holds the backup schedule.
type Config struct {
	// Interval between backups. Zero disables the schedule.
	Interval time.Duration
	// Retention is the number of archives kept in Dir; 0 keeps all.
	Retention int
	Dir       string
	// Password seals each archive when set.
	Password string
}

// Scheduler runs backups on a ticker.
type Scheduler struct {
	exporter Exporter
	config   Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Scheduler.
func New(exporter Exporter, config Config) *Scheduler {
	if config.Retention < 0 {
		config.Retention = 0
	}
	return &Scheduler{exporter: exporter, config: config}
}

// Start launches the backup loop. The first backup is taken one interval
// after Start. It is a no-op when the interval is zero or the loop is
// already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.config.Interval <= 0 {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	logging.Info("Backup scheduler started", map[string]interface{}{
		"interval":  s.config.Interval.String(),
		"retention": s.config.Retention,
		"dir":       s.config.Dir,
	})
	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop halts the loop and waits for an in-flight backup.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()
	<-done
	logging.Info("Backup scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				logging.Error("Scheduled backup failed", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce takes a backup now and applies the retention policy.
func (s *Scheduler) RunOnce(ctx context.Context) (*export.Result, error) {
	result, err := s.exporter.ExportFile(ctx, s.config.Dir, "", s.config.Password)
	if err != nil {
		return nil, err
	}
	logging.Info("Backup written", map[string]interface{}{
		"path":       result.Path,
		"size_bytes": result.SizeBytes,
		"notes":      result.Manifest.NoteCount,
		"categories": result.Manifest.CategoryCount,
		"duration":   result.Duration.String(),
	})

	if s.config.Retention > 0 {
		// A failed prune does not fail the backup.
		if err := s.prune(); err != nil {
			logging.WarnErr("Backup retention failed", err, map[string]interface{}{"dir": s.config.Dir})
		}
	}
	return result, nil
}

// Archive describes a backup file on disk.
type Archive struct {
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// ListArchives returns the archives in dir, oldest first.
func ListArchives(dir string) ([]*Archive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var archives []*Archive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "notecore_") ||
			!(strings.HasSuffix(name, export.Ext) || strings.HasSuffix(name, export.SealedExt)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		archives = append(archives, &Archive{
			Path:      filepath.Join(dir, name),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	// Names embed the UTC timestamp, so they sort chronologically.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Path < archives[j].Path
	})
	return archives, nil
}

func (s *Scheduler) prune() error {
	archives, err := ListArchives(s.config.Dir)
	if err != nil {
		return err
	}
	if len(archives) <= s.config.Retention {
		return nil
	}
	for _, a := range archives[:len(archives)-s.config.Retention] {
		if err := os.Remove(a.Path); err != nil {
			logging.WarnErr("Failed to delete old backup", err, map[string]interface{}{"path": a.Path})
			continue
		}
		logging.Debug("Deleted old backup", map[string]interface{}{"path": a.Path})
	}
	return nil
}
