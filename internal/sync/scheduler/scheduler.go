// Package scheduler provides background sync scheduling: draining the outbox
// of failed propagations and running periodic pulls.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
	"github.com/kimhsiao/notecore/internal/sync/queue"
)

// Puller pulls from every adapter and reconciles into the local store.
type Puller interface {
	Pull(ctx context.Context) (*syncpkg.ReconcileResult, error)
}

// Deliverer re-sends one outbox entry to its adapter.
type Deliverer interface {
	Deliver(ctx context.Context, entry *models.OutboxEntry) error
}

// Outbox is the subset of queue.Outbox the scheduler drives.
type Outbox interface {
	Due(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) (*models.OutboxEntry, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// EventSink receives pull lifecycle events.
type EventSink interface {
	BroadcastSyncStarted()
	BroadcastSyncCompleted(applied, conflicts int, duration time.Duration)
	BroadcastSyncFailed(errorCode string)
}

// Config holds scheduler configuration.
type Config struct {
	SyncInterval  time.Duration // periodic pull; zero disables it
	QueueInterval time.Duration // outbox drain interval
	BatchSize     int           // outbox entries per drain
	RunTimeout    time.Duration // timeout for one pull or drain
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  15 * time.Minute,
		QueueInterval: 1 * time.Minute,
		BatchSize:     100,
		RunTimeout:    5 * time.Minute,
	}
}

// Scheduler manages background sync operations.
type Scheduler struct {
	puller    Puller
	deliverer Deliverer
	outbox    Outbox
	events    EventSink
	cfg       Config

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu              sync.RWMutex
	isRunning       bool
	isOnline        bool
	lastSyncTime    time.Time
	lastSyncErr     error
	syncInProgress  bool
	queueInProgress bool
}

// New creates a Scheduler. outbox and deliverer may be nil to disable outbox
// draining; puller may be nil to disable pulls.
func New(puller Puller, deliverer Deliverer, outbox Outbox, cfg *Config) *Scheduler {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.QueueInterval <= 0 {
		c.QueueInterval = def.QueueInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = def.RunTimeout
	}

	return &Scheduler{
		puller:    puller,
		deliverer: deliverer,
		outbox:    outbox,
		cfg:       c,
		isOnline:  true,
	}
}

// SetEventSink sets the receiver of pull lifecycle events.
func (s *Scheduler) SetEventSink(e EventSink) {
	s.mu.Lock()
	s.events = e
	s.mu.Unlock()
}

// Start starts the background loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.puller != nil && s.cfg.SyncInterval > 0 {
		s.wg.Add(1)
		go s.periodicSyncLoop(ctx, stopCh)
	}
	if s.outbox != nil && s.deliverer != nil {
		s.wg.Add(1)
		go s.queueProcessorLoop(ctx, stopCh)
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"sync_interval":  s.cfg.SyncInterval.String(),
		"queue_interval": s.cfg.QueueInterval.String(),
	})
}

// Stop stops the background loops and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// SetOnlineStatus changes the online status. While offline no work is attempted.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOnline := s.isOnline
	s.isOnline = isOnline

	if wasOnline != isOnline {
		logging.Info("Online status changed", map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  isOnline,
		})
	}
}

func (s *Scheduler) periodicSyncLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			if _, err := s.SyncNow(ctx); err != nil && err != ErrSyncInProgress {
				logging.ErrorWithCode("Periodic sync failed", string(errors.CodeOf(err)), err,
					map[string]interface{}{"interval_minutes": s.cfg.SyncInterval.Minutes()})
			}
		}
	}
}

func (s *Scheduler) queueProcessorLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.QueueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			s.ProcessOutbox(ctx)
		}
	}
}

// ErrSyncInProgress is returned by SyncNow when a pull is already running.
var ErrSyncInProgress = errors.New(errors.ErrAdapterFailure, "sync already in progress")

// SyncNow runs a pull immediately and waits for it.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.ReconcileResult, error) {
	if s.puller == nil {
		return &syncpkg.ReconcileResult{}, nil
	}

	s.mu.Lock()
	if s.syncInProgress {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.syncInProgress = true
	events := s.events
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
	}()

	if events != nil {
		events.BroadcastSyncStarted()
	}
	start := time.Now()

	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	result, err := s.puller.Pull(syncCtx)

	s.mu.Lock()
	s.lastSyncErr = err
	if err == nil {
		s.lastSyncTime = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		if events != nil {
			events.BroadcastSyncFailed(string(errors.CodeOf(err)))
		}
		return result, err
	}

	if events != nil {
		events.BroadcastSyncCompleted(result.Applied(), len(result.Conflicts), time.Since(start))
	}
	logging.Info("Sync completed", map[string]interface{}{
		"applied":   result.Applied(),
		"conflicts": len(result.Conflicts),
	})
	return result, nil
}

// TriggerSync starts a pull in the background. It returns false when a pull
// is already running.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.RLock()
	busy := s.syncInProgress
	s.mu.RUnlock()
	if busy {
		return false
	}

	go func() {
		if _, err := s.SyncNow(ctx); err != nil && err != ErrSyncInProgress {
			logging.ErrorWithCode("Triggered sync failed", string(errors.CodeOf(err)), err)
		}
	}()
	return true
}

// ProcessOutbox delivers one batch of due outbox entries and returns how many
// were delivered and how many failed again. Concurrent calls do not overlap.
func (s *Scheduler) ProcessOutbox(ctx context.Context) (delivered, failed int) {
	if s.outbox == nil || s.deliverer == nil {
		return 0, 0
	}

	s.mu.Lock()
	if s.queueInProgress {
		s.mu.Unlock()
		return 0, 0
	}
	s.queueInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.queueInProgress = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	due, err := s.outbox.Due(runCtx, s.cfg.BatchSize)
	if err != nil {
		logging.Error("Failed to read outbox", err)
		return 0, 0
	}
	if len(due) == 0 {
		return 0, 0
	}

	logging.Info("Processing outbox entries", map[string]interface{}{"count": len(due)})

	for _, entry := range due {
		if runCtx.Err() != nil {
			break
		}

		if err := s.deliverer.Deliver(runCtx, entry); err != nil {
			failed++
			if _, ferr := s.outbox.Fail(runCtx, entry.ID, err); ferr != nil {
				logging.Error("Failed to record outbox failure", ferr, map[string]interface{}{"entry_id": entry.ID})
			}
			continue
		}

		if err := s.outbox.Complete(runCtx, entry.ID); err != nil {
			logging.Error("Failed to complete outbox entry", err, map[string]interface{}{"entry_id": entry.ID})
			continue
		}
		delivered++
	}

	logging.Info("Outbox processing completed", map[string]interface{}{
		"delivered": delivered,
		"failed":    failed,
	})
	return delivered, failed
}

// Status is a snapshot of the scheduler state.
type Status struct {
	IsRunning       bool        `json:"isRunning"`
	IsOnline        bool        `json:"isOnline"`
	LastSyncTime    *time.Time  `json:"lastSyncTime,omitempty"`
	LastSyncError   string      `json:"lastSyncError,omitempty"`
	SyncInProgress  bool        `json:"syncInProgress"`
	QueueInProgress bool        `json:"queueInProgress"`
	Outbox          queue.Stats `json:"outbox"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) Status {
	s.mu.RLock()
	status := Status{
		IsRunning:       s.isRunning,
		IsOnline:        s.isOnline,
		SyncInProgress:  s.syncInProgress,
		QueueInProgress: s.queueInProgress,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.lastSyncErr != nil {
		status.LastSyncError = s.lastSyncErr.Error()
	}
	s.mu.RUnlock()

	if s.outbox != nil {
		stats, err := s.outbox.Stats(ctx)
		if err != nil {
			logging.WarnErr("Failed to read outbox stats", err)
		}
		status.Outbox = stats
	}
	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
