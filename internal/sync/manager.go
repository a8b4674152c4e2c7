package sync

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/sync/conflict"
)

// OutboxWriter records propagations that failed so they can be retried later,
// and drops them once a newer propagation of the same record gets through.
type OutboxWriter interface {
	Enqueue(ctx context.Context, adapter string, op models.OutboxOp, rec models.Record) (*models.OutboxEntry, error)
	Discard(ctx context.Context, adapter string, rec models.Record) error
}

// AdapterError is a failure reported by one adapter.
type AdapterError struct {
	Adapter string
	Err     error
}

func (e AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Adapter, e.Err)
}

// Report describes what a fan-out did with each registered adapter.
type Report struct {
	Delivered []string
	// Skipped lists adapters that do not support the operation.
	Skipped []string
	Failed  []AdapterError
	// Queued lists failed adapters whose propagation was recorded in the outbox.
	Queued []string
}

// OK reports whether no adapter failed.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Manager propagates local mutations to every registered adapter and pulls
// their collections back. Propagation is best-effort: adapter failures are
// logged and reported, never returned.
type Manager struct {
	mu       sync.RWMutex
	adapters []Adapter

	outbox   OutboxWriter
	resolver *conflict.Resolver
}

// Option configures a Manager.
type Option func(*Manager)

// WithOutbox records failed propagations in o.
func WithOutbox(o OutboxWriter) Option {
	return func(m *Manager) {
		m.outbox = o
	}
}

// WithResolver overrides the conflict resolver used by Reconcile.
func WithResolver(r *conflict.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// NewManager creates a Manager with no adapters.
func NewManager(opts ...Option) *Manager {
	m := &Manager{resolver: conflict.NewResolver()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddAdapter registers an adapter. Registration is append-only and may happen
// while a fan-out is running; that fan-out does not see the new adapter.
func (m *Manager) AddAdapter(a Adapter) {
	m.mu.Lock()
	m.adapters = append(m.adapters, a)
	m.mu.Unlock()

	logging.Info("Sync adapter registered", map[string]interface{}{
		"adapter": a.Name(),
	})
}

// Adapters returns a snapshot of the registered adapters in registration order.
func (m *Manager) Adapters() []Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Adapter(nil), m.adapters...)
}

// Adapter returns the first registered adapter with the given name.
func (m *Manager) Adapter(name string) (Adapter, bool) {
	for _, a := range m.Adapters() {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// PropagateUpsert sends rec to every adapter, one at a time in registration order.
func (m *Manager) PropagateUpsert(ctx context.Context, rec models.Record) Report {
	var op Op
	switch rec.(type) {
	case *models.Note:
		op = OpUpsertNote
	case *models.Category:
		op = OpUpsertCategory
	default:
		logging.Warn("Propagate skipped unsupported record type", map[string]interface{}{
			"type": fmt.Sprintf("%T", rec),
		})
		return Report{}
	}

	return m.fanOut(ctx, op, models.OutboxUpsert, rec, func(a Adapter) error {
		switch r := rec.(type) {
		case *models.Note:
			return a.UpsertNote(ctx, r)
		case *models.Category:
			return a.UpsertCategory(ctx, r)
		}
		return nil
	})
}

// PropagateDelete sends the deletion of a record to every adapter.
func (m *Manager) PropagateDelete(ctx context.Context, kind models.Kind, id string) Report {
	var op Op
	var ref models.Record
	switch kind {
	case models.KindNote:
		op = OpDeleteNote
		ref = &models.Note{ID: id}
	case models.KindCategory:
		op = OpDeleteCategory
		ref = &models.Category{ID: id}
	default:
		logging.Warn("Propagate skipped unknown kind", map[string]interface{}{"kind": kind})
		return Report{}
	}

	return m.fanOut(ctx, op, models.OutboxDelete, ref, func(a Adapter) error {
		if kind == models.KindNote {
			return a.DeleteNote(ctx, id)
		}
		return a.DeleteCategory(ctx, id)
	})
}

func (m *Manager) fanOut(ctx context.Context, op Op, outboxOp models.OutboxOp, rec models.Record, call func(Adapter) error) Report {
	var report Report

	for _, a := range m.Adapters() {
		name := a.Name()
		if !a.Capabilities().Supports(op) {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		err := invoke(name, op, func() error { return call(a) })
		switch {
		case err == nil:
			report.Delivered = append(report.Delivered, name)
			m.discard(ctx, name, rec)
		case apperrors.Is(err, apperrors.ErrNotImplemented):
			report.Skipped = append(report.Skipped, name)
		default:
			logging.ErrorWithCode("Sync adapter failed", string(apperrors.ErrAdapterFailure), err, map[string]interface{}{
				"adapter":   name,
				"operation": op,
				"kind":      rec.Kind(),
				"record_id": rec.RecordID(),
			})
			report.Failed = append(report.Failed, AdapterError{Adapter: name, Err: err})
			if m.enqueue(ctx, name, outboxOp, rec) {
				report.Queued = append(report.Queued, name)
			}
		}
	}
	return report
}

func (m *Manager) enqueue(ctx context.Context, adapter string, op models.OutboxOp, rec models.Record) bool {
	if m.outbox == nil {
		return false
	}
	if _, err := m.outbox.Enqueue(ctx, adapter, op, rec); err != nil {
		logging.Error("Failed to queue propagation for retry", err, map[string]interface{}{
			"adapter":   adapter,
			"kind":      rec.Kind(),
			"record_id": rec.RecordID(),
		})
		return false
	}
	return true
}

// discard drops queued propagations of rec to adapter that a delivery has
// made stale. A failure is logged; the stale entry then stays queued.
func (m *Manager) discard(ctx context.Context, adapter string, rec models.Record) {
	if m.outbox == nil {
		return
	}
	if err := m.outbox.Discard(ctx, adapter, rec); err != nil {
		logging.Error("Failed to drop superseded outbox entries", err, map[string]interface{}{
			"adapter":   adapter,
			"kind":      rec.Kind(),
			"record_id": rec.RecordID(),
		})
	}
}

// invoke runs fn, converting a panic into an ADAPTER_FAILURE error.
func invoke(adapter string, op Op, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Wrap(apperrors.ErrAdapterFailure,
				fmt.Sprintf("%s panicked in %s", adapter, op), fmt.Errorf("%v", r))
		}
	}()
	return fn()
}

// Pulled is the union of every adapter's collections, in registration order.
// Duplicates are kept.
type Pulled struct {
	Notes      []*models.Note
	Categories []*models.Category
	Errors     []AdapterError

	noteSources     []string
	categorySources []string
}

// AddNotes appends notes pulled from the named adapter.
func (p *Pulled) AddNotes(source string, notes ...*models.Note) {
	for _, n := range notes {
		if n == nil {
			continue
		}
		p.Notes = append(p.Notes, n)
		p.noteSources = append(p.noteSources, source)
	}
}

// AddCategories appends categories pulled from the named adapter.
func (p *Pulled) AddCategories(source string, cats ...*models.Category) {
	for _, c := range cats {
		if c == nil {
			continue
		}
		p.Categories = append(p.Categories, c)
		p.categorySources = append(p.categorySources, source)
	}
}

// NoteSource returns the adapter the i-th note came from, or "" if unknown.
func (p *Pulled) NoteSource(i int) string {
	if i < len(p.noteSources) {
		return p.noteSources[i]
	}
	return ""
}

// CategorySource returns the adapter the i-th category came from, or "" if unknown.
func (p *Pulled) CategorySource(i int) string {
	if i < len(p.categorySources) {
		return p.categorySources[i]
	}
	return ""
}

// SyncDown pulls notes and categories from every capable adapter. A failing
// adapter is logged and skipped; the others still contribute.
func (m *Manager) SyncDown(ctx context.Context) *Pulled {
	pulled := &Pulled{}

	for _, a := range m.Adapters() {
		name := a.Name()
		caps := a.Capabilities()

		if caps.Supports(OpPullAllNotes) {
			var notes []*models.Note
			err := invoke(name, OpPullAllNotes, func() (err error) {
				notes, err = a.PullAllNotes(ctx)
				return err
			})
			if m.pullFailed(pulled, name, OpPullAllNotes, err) {
				notes = nil
			}
			pulled.AddNotes(name, notes...)
		}

		if caps.Supports(OpPullAllCategories) {
			var cats []*models.Category
			err := invoke(name, OpPullAllCategories, func() (err error) {
				cats, err = a.PullAllCategories(ctx)
				return err
			})
			if m.pullFailed(pulled, name, OpPullAllCategories, err) {
				cats = nil
			}
			pulled.AddCategories(name, cats...)
		}
	}

	logging.Info("Pulled from sync adapters", map[string]interface{}{
		"notes":      len(pulled.Notes),
		"categories": len(pulled.Categories),
		"failures":   len(pulled.Errors),
	})
	return pulled
}

func (m *Manager) pullFailed(p *Pulled, adapter string, op Op, err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, apperrors.ErrNotImplemented) {
		return true
	}
	logging.ErrorWithCode("Sync adapter pull failed", string(apperrors.ErrAdapterFailure), err, map[string]interface{}{
		"adapter":   adapter,
		"operation": op,
	})
	p.Errors = append(p.Errors, AdapterError{Adapter: adapter, Err: err})
	return true
}

// Deliver re-sends one outbox entry to its adapter. NOT_IMPLEMENTED and a
// missing capability count as delivered since there is nothing to retry.
func (m *Manager) Deliver(ctx context.Context, entry *models.OutboxEntry) error {
	a, ok := m.Adapter(entry.Adapter)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "adapter %q is not registered", entry.Adapter)
	}

	var op Op
	var call func() error
	switch {
	case entry.Kind == models.KindNote && entry.Operation == models.OutboxUpsert:
		n, err := entry.Note()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decode note payload", err)
		}
		op, call = OpUpsertNote, func() error { return a.UpsertNote(ctx, n) }
	case entry.Kind == models.KindNote && entry.Operation == models.OutboxDelete:
		op, call = OpDeleteNote, func() error { return a.DeleteNote(ctx, entry.RecordID) }
	case entry.Kind == models.KindCategory && entry.Operation == models.OutboxUpsert:
		c, err := entry.Category()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decode category payload", err)
		}
		op, call = OpUpsertCategory, func() error { return a.UpsertCategory(ctx, c) }
	case entry.Kind == models.KindCategory && entry.Operation == models.OutboxDelete:
		op, call = OpDeleteCategory, func() error { return a.DeleteCategory(ctx, entry.RecordID) }
	default:
		return apperrors.Newf(apperrors.ErrInvalid, "unknown outbox entry %s/%s", entry.Kind, entry.Operation)
	}

	if !a.Capabilities().Supports(op) {
		return nil
	}
	err := invoke(a.Name(), op, call)
	if err == nil || apperrors.Is(err, apperrors.ErrNotImplemented) {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrAdapterFailure, fmt.Sprintf("%s %s", a.Name(), op), err)
}
