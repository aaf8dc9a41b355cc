package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/optomapp/ledger-engine/api"
)

var (
	serveAddr string
	serveSeed string
)

// optom serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := boot()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			a.cfg.HTTP.Addr = serveAddr
		}
		if serveSeed != "" {
			a.cfg.App.SeedScenario = serveSeed
		}
		return a.serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides OPTOM_HTTP_ADDR)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "demo scenario to load when the database is empty")
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore(ctx, a.cfg.DB.AutoMigrate)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := api.NewMetrics()
	handler := api.NewHandler(store, a.log, metrics)

	if id := a.cfg.App.SeedScenario; id != "" {
		switch err := handler.LoadScenario(ctx, id); {
		case errors.Is(err, api.ErrNotEmpty):
			a.log.Info(a.log.WithField(ctx, "scenario", id), "database not empty, skipping seed")
		case err != nil:
			return err
		}
	}

	monitor := handler.DriftMonitor(a.cfg.App.DriftCheckInterval)
	monitor.Start()
	defer monitor.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
		RateLimit:   a.cfg.HTTP.RateLimit,
		DevMode:     a.cfg.App.IsDev(),
	})

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(a.log.WithFields(ctx, map[string]any{
			"addr": server.Addr,
			"db":   a.cfg.DB.Path,
			"env":  a.cfg.App.Env,
		}), "server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.log.Info(context.Background(), "server stopped")
	return nil
}
