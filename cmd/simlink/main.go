package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"simlink/internal/api"
	"simlink/pkg/config"
	"simlink/pkg/db"
	"simlink/pkg/dispatch"
	"simlink/pkg/logging"
	"simlink/pkg/probe"
	"simlink/pkg/recv"
	"simlink/pkg/session"
	"simlink/pkg/sim"
	"simlink/pkg/store"
	"simlink/pkg/tracker"
	"simlink/pkg/version"
)

const defaultConfigPath = "configs/simlink.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the configuration file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if *initConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("simlink started", "version", version.Version, "provider", appCfg.Sim.Provider)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
		pruneRecordings(appCfg, dbConn)
	}

	if err := probe.AnalyzeResults(nil, probe.Run(ctx, startupProbes(appCfg, dbConn))); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	mode, err := dispatch.ParseMode(appCfg.Dispatch.Mode)
	if err != nil {
		return err
	}

	sessionID := uuid.New()
	calls := tracker.New(appCfg.Tracker.Capacity)
	h, err := openHost(ctx, appCfg, st, sessionID.String(), calls)
	if err != nil {
		return fmt.Errorf("failed to open host: %w", err)
	}

	opts := []session.Option{session.WithID(sessionID), session.WithTracker(calls)}
	if h.recorder != nil {
		opts = append(opts, session.WithCallObserver(h.recorder.RecordSend))
	}
	sess := session.New(h.conn, opts...)
	defer sess.Close()

	if h.player != nil {
		err = sess.Load(appCfg.Definitions)
	} else {
		err = sess.Apply(appCfg.Definitions)
	}
	if err != nil {
		return fmt.Errorf("failed to register definitions: %w", err)
	}

	metrics := dispatch.NewMetrics(nil)
	if err := metrics.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	statusH := api.NewStatusHandler(sessionID.String(), appCfg.Sim.Provider)
	trackH := api.NewTrackHandler(0)
	hub := api.NewEventHub(appCfg.Dispatch.Buffer)
	defer hub.Close()

	handlers := dispatch.Handlers{
		OnAny: func(ev recv.Event) {
			statusH.Observe(ev)
			trackH.Observe(ev)
			hub.Publish(ev)
			logEvent(ev)
		},
	}

	dcfg := dispatch.Config{
		Mode:         mode,
		PollInterval: appCfg.Dispatch.PollInterval.Std(),
		PushInterval: appCfg.Dispatch.PushInterval.Std(),
		Buffer:       appCfg.Dispatch.Buffer,
	}
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		err := sess.Run(ctx, dcfg, handlers, dispatch.WithMetrics(metrics))
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Dispatch failed", "error", err)
			statusH.UpdateState(sim.StateDisconnected)
		}
	}()
	// Stop dispatch before the session and database close
	defer func() {
		cancel()
		<-dispatchDone
	}()

	var recordingsH *api.RecordingHandler
	if st != nil {
		recordingsH = api.NewRecordingHandler(st)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(appCfg.Server.Address,
		statusH,
		api.NewCallsHandler(calls, sess),
		api.NewSchemaHandler(sess),
		hub,
		trackH,
		recordingsH,
		nil,
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func initDB(cfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	var path string
	switch {
	case cfg.Sim.Provider == "replay":
		path = cfg.Sim.Replay.Path
	case cfg.Recorder.Enabled:
		path = cfg.Recorder.Path
	default:
		return nil, nil, nil
	}
	dbConn, err := db.Init(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func pruneRecordings(cfg *config.Config, dbConn *db.DB) {
	if !cfg.Recorder.Enabled || cfg.Recorder.Retention <= 0 {
		return
	}
	n, err := dbConn.PruneSessions(cfg.Recorder.Retention.Std())
	if err != nil {
		slog.Error("Failed to prune recordings", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned old recordings", "sessions", n, "retention", cfg.Recorder.Retention.Std())
	}
}

// logEvent writes lifecycle events and exceptions to the event log.
func logEvent(ev recv.Event) {
	switch e := ev.(type) {
	case recv.Open:
		logging.EventLogger.Info("Open", "app", e.ApplicationName, "version", e.ApplicationVersion.String())
	case recv.Quit:
		logging.EventLogger.Info("Quit")
	case recv.Exception:
		logging.EventLogger.Warn("Exception", "code", e.Code.String(), "send_id", e.SendID, "index", e.Index, "call", e.Call)
	case recv.SystemEvent:
		logging.EventLogger.Info("Event", "event_id", e.EventID, "data", e.Data)
	case recv.Filename:
		logging.EventLogger.Info("Event", "event_id", e.EventID, "file", e.FileName)
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Trace(slog.Default(), "Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
