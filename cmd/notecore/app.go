package main

import (
	"context"
	"fmt"

	"github.com/kimhsiao/notecore/internal/adapters/httppeer"
	"github.com/kimhsiao/notecore/internal/adapters/memory"
	"github.com/kimhsiao/notecore/internal/adapters/objectstore"
	"github.com/kimhsiao/notecore/internal/adapters/postgres"
	"github.com/kimhsiao/notecore/internal/adapters/vault"
	"github.com/kimhsiao/notecore/internal/config"
	"github.com/kimhsiao/notecore/internal/db"
	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/export"
	backupsched "github.com/kimhsiao/notecore/internal/export/scheduler"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/notify"
	"github.com/kimhsiao/notecore/internal/services"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
	"github.com/kimhsiao/notecore/internal/sync/queue"
	"github.com/kimhsiao/notecore/internal/sync/scheduler"
)

// app wires the store, the sync layer and the adapters named in the config.
type app struct {
	cfg       *config.Config
	store     *db.Store
	notifier  *notify.Notifier
	outbox    *queue.Outbox
	manager   *syncpkg.Manager
	service   *services.NoteService
	scheduler *scheduler.Scheduler
	backups   *export.Service
	backupper *backupsched.Scheduler

	// watched are the vaults configured with watch: true.
	watched []*vault.Adapter
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, notifier: notify.New()}

	store, err := db.Open(ctx, cfg.DatabasePath(), db.WithNotifier(a.notifier))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	a.outbox = queue.New(store)
	a.manager = syncpkg.NewManager(syncpkg.WithOutbox(a.outbox))

	for _, ac := range cfg.Adapters {
		adapter, err := a.buildAdapter(ctx, ac)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.manager.AddAdapter(adapter)
		logging.Debug("Adapter registered", map[string]interface{}{"name": ac.Name, "type": ac.Type})
	}

	a.service = services.NewNoteService(store, a.manager)
	a.service.SetConflictCallback(logConflicts)
	a.scheduler = scheduler.New(a.service, a.manager, a.outbox, &scheduler.Config{
		SyncInterval:  cfg.SyncInterval,
		QueueInterval: cfg.QueueInterval,
	})
	a.backups = export.NewService(a.service)
	a.backupper = backupsched.New(a.backups, backupsched.Config{
		Interval:  cfg.Backup.Interval,
		Retention: cfg.Backup.Keep,
		Dir:       cfg.BackupDir(),
		Password:  cfg.Backup.Password,
	})

	if _, err := a.service.EnsureDefaultCategories(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases adapters and the store, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) buildAdapter(ctx context.Context, ac config.AdapterConfig) (syncpkg.Adapter, error) {
	switch ac.Type {
	case config.AdapterMemory:
		return memory.New(ac.Name), nil

	case config.AdapterVault:
		v, err := vault.New(ac.Name, ac.Path)
		if err != nil {
			return nil, err
		}
		if ac.Watch {
			a.watched = append(a.watched, v)
		}
		return v, nil

	case config.AdapterPostgres:
		pg, err := postgres.Open(ctx, ac.Name, ac.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil

	case config.AdapterHTTP:
		return httppeer.New(ac.Name, ac.URL, httppeer.WithToken(ac.Token))

	case config.AdapterObjectStore:
		oc, err := objectStoreConfig(ac.ObjectStore)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, ac.Name, err)
		}
		return objectstore.New(ac.Name, objectstore.NewClient(oc), ac.ObjectStore.Prefix), nil

	default:
		return nil, apperrors.Newf(apperrors.ErrConfigInvalid, "%s: unknown adapter type %q", ac.Name, ac.Type)
	}
}

// objectStoreConfig resolves provider defaults into a client configuration.
func objectStoreConfig(o *config.ObjectStoreConfig) (*objectstore.Config, error) {
	useSSL := o.UseSSL == nil || *o.UseSSL

	switch o.Provider {
	case "aws":
		return objectstore.NewAWSConfig(&objectstore.AWSConfig{
			BucketName: o.Bucket,
			AccessKey:  o.AccessKey,
			SecretKey:  o.SecretKey,
			Region:     o.Region,
		}), nil
	case "r2":
		return objectstore.NewR2Config(&objectstore.R2Config{
			AccountID:  o.AccountID,
			BucketName: o.Bucket,
			AccessKey:  o.AccessKey,
			SecretKey:  o.SecretKey,
		})
	case "minio":
		return objectstore.NewMinIOConfig(&objectstore.MinIOConfig{
			Endpoint:   o.Endpoint,
			BucketName: o.Bucket,
			AccessKey:  o.AccessKey,
			SecretKey:  o.SecretKey,
			UseSSL:     useSSL,
		})
	case "s3":
		endpoint, err := objectstore.ParseEndpoint(o.Endpoint, useSSL)
		if err != nil {
			return nil, err
		}
		region := o.Region
		if region == "" {
			region = "us-east-1"
		}
		return &objectstore.Config{
			Endpoint:       endpoint,
			BucketName:     o.Bucket,
			AccessKey:      o.AccessKey,
			SecretKey:      o.SecretKey,
			Region:         region,
			ForcePathStyle: true,
		}, nil
	default:
		return nil, fmt.Errorf("unknown objectstore provider %q", o.Provider)
	}
}

func logConflicts(conflicts []*models.ConflictLog) {
	for _, c := range conflicts {
		logging.Warn("Local record overwritten by newer remote copy", map[string]interface{}{
			"kind":             c.Kind,
			"record_id":        c.RecordID,
			"source":           c.Source,
			"local_timestamp":  c.LocalTimestamp,
			"remote_timestamp": c.RemoteTimestamp,
		})
	}
}

// conflictEvents converts conflicts to the WebSocket event payload.
func conflictEvents(conflicts []*models.ConflictLog) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, map[string]interface{}{
			"kind":             c.Kind,
			"record_id":        c.RecordID,
			"source":           c.Source,
			"local_timestamp":  c.LocalTimestamp,
			"remote_timestamp": c.RemoteTimestamp,
		})
	}
	return out
}
