package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/notecore/cmd/notecore/handlers"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and WebSocket server with background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.ListenAddr = addr
			}
			return serve(ctx, a)
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address (overrides NOTECORE_LISTEN_ADDR)")
	return serveCmd
}

// serve runs until ctx is done or a component fails.
func serve(ctx context.Context, a *app) error {
	hub := notify.NewHub(notify.WithAllowedOrigins(a.cfg.AllowedOrigins...))
	a.scheduler.SetEventSink(hub)
	a.service.SetConflictCallback(func(conflicts []*models.ConflictLog) {
		logConflicts(conflicts)
		hub.BroadcastSyncConflictDetected(conflictEvents(conflicts))
	})

	router := handlers.NewRouter(handlers.Router{
		Notes:      handlers.NewNoteHandler(a.service),
		Categories: handlers.NewCategoryHandler(a.service),
		Sync:       handlers.NewSyncHandler(a.service, a.scheduler, a.outbox, a.store, a.cfg.PeerToken),
		WebSocket:  hub,
	})
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, v := range a.watched {
		v := v
		done, err := v.Watch(ctx, func() {
			logging.Debug("Vault changed on disk", map[string]interface{}{"adapter": v.Name()})
			a.scheduler.TriggerSync(ctx)
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-done
			return nil
		})
	}

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		hub.Relay(ctx, a.notifier)
		return nil
	})
	g.Go(func() error {
		a.scheduler.Start(ctx)
		a.scheduler.TriggerSync(ctx)
		<-ctx.Done()
		a.scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		a.backupper.Start(ctx)
		<-ctx.Done()
		a.backupper.Stop()
		return nil
	})

	g.Go(func() error {
		logging.Info("notecore server listening", map[string]interface{}{
			"addr":     srv.Addr,
			"adapters": len(a.manager.Adapters()),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	logging.Info("notecore server stopped", nil)
	return err
}
