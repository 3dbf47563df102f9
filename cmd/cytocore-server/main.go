// Command cytocore-server serves the assay registry and analysis API over
// HTTP. Storage and artifact drivers are selected through CYTOCORE_*
// environment variables; see internal/core/storage.go and
// internal/infra/blob/factory.go for the accepted values.
package main

import (
	"context"
	"database/sql"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cytocore/internal/adapters/reports"
	"cytocore/internal/core"
	"cytocore/internal/infra/blob"
	"cytocore/internal/observability"
	"cytocore/pkg/assay"
)

var exitFunc = os.Exit

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(context.Background(), logger, os.Args[1:]); err != nil {
		logger.Error("server stopped", "error", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("cytocore-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", "", "listen address (overrides CYTOCORE_HTTP_ADDR)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *addr == "" {
		*addr = os.Getenv("CYTOCORE_HTTP_ADDR")
	}
	if *addr == "" {
		*addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           app.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", "addr", *addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app bundles the wired service, its export worker and the HTTP mux so
// run and the tests can assemble and tear down the same stack.
type app struct {
	mux    *http.ServeMux
	store  assay.PersistentStore
	worker *reports.Worker
	logger *slog.Logger
}

func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	artifacts, err := blob.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open artifact storage: %w", err)
	}

	metrics, promHandler, err := buildMetrics()
	if err != nil {
		return nil, err
	}
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(auditLog{logger}),
	)

	worker := reports.NewWorker(svc, artifacts, exportAuditLog{logger})
	worker.Start()

	handler := reports.NewHandler(svc)
	handler.Exports = worker

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	if promHandler != nil {
		mux.Handle("/metrics", promHandler)
	}
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	return &app{mux: mux, store: store, worker: worker, logger: logger}, nil
}

func (a *app) close() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.worker.Stop(stopCtx); err != nil {
		a.logger.Warn("export worker did not drain", "error", err)
	}
	if db, ok := a.store.(interface{ DB() *sql.DB }); ok {
		if err := db.DB().Close(); err != nil {
			a.logger.Warn("close storage", "error", err)
		}
	}
}

// buildMetrics selects the service metrics backend from
// CYTOCORE_METRICS_DRIVER: prometheus (default), expvar, or none. The
// Prometheus driver also yields the /metrics scrape handler.
func buildMetrics() (core.MetricsRecorder, http.Handler, error) {
	driver := os.Getenv("CYTOCORE_METRICS_DRIVER")
	switch driver {
	case "", "prometheus":
		rec := observability.NewRecorder()
		return rec, rec.Handler(), nil
	case "expvar":
		return core.NewExpvarMetricsRecorder(""), nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics driver %s", driver)
	}
}

// auditLog mirrors service audit entries into the structured log.
type auditLog struct{ logger *slog.Logger }

func (a auditLog) Record(_ context.Context, entry core.AuditEntry) {
	a.logger.Info("service audit",
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"error", entry.Error,
		"duration", entry.Duration,
	)
}

// exportAuditLog mirrors export lifecycle entries into the structured log.
type exportAuditLog struct{ logger *slog.Logger }

func (e exportAuditLog) Record(_ context.Context, entry reports.AuditEntry) {
	e.logger.Info("export audit",
		"export_id", entry.ID,
		"action", entry.Action,
		"run_id", entry.RunID,
		"status", string(entry.Status),
		"actor", entry.Actor,
		"note", entry.Note,
	)
}
