package main

import (
	"context"
	"fmt"
	"log/slog"

	"simlink/pkg/config"
	"simlink/pkg/replay"
	"simlink/pkg/sim"
	"simlink/pkg/sim/mocksim"
	"simlink/pkg/sim/simconnect"
	"simlink/pkg/store"
	"simlink/pkg/tracker"
)

// host is the opened connection. recorder and player are set when the
// connection is being recorded or replayed.
type host struct {
	conn     sim.Conn
	recorder *replay.Recorder
	player   *replay.Player
}

func openHost(ctx context.Context, cfg *config.Config, st *store.SQLiteStore, sessionID string, calls *tracker.Tracker) (*host, error) {
	if cfg.Sim.Provider == "replay" {
		p, err := replay.Load(ctx, st, cfg.Sim.Replay.Session, replay.WithRealtime(cfg.Sim.Replay.Realtime))
		if err != nil {
			return nil, err
		}
		p.Restore(calls)
		slog.Info("Sim Source: Replay", "session", p.Session().ID, "started", p.Session().StartedAt)
		return &host{conn: p, player: p}, nil
	}

	conn, provider := dialHost(cfg)
	if !cfg.Recorder.Enabled {
		return &host{conn: conn}, nil
	}
	rec, err := replay.NewRecorder(ctx, conn, st, sessionID, cfg.Sim.AppName, provider,
		replay.WithQueue(cfg.Recorder.Queue))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	return &host{conn: rec, recorder: rec}, nil
}

// dialHost opens the configured live host. A SimConnect failure falls back to
// the mock host.
func dialHost(cfg *config.Config) (sim.Conn, string) {
	if cfg.Sim.Provider == "mock" {
		slog.Info("Sim Source: Mock")
		return startMock(cfg), "mock"
	}

	slog.Info("Sim Source: SimConnect")
	conn, err := simconnect.Dial(cfg.Sim.AppName, cfg.Sim.DLLPath)
	if err != nil {
		slog.Error("Failed to connect to SimConnect, falling back to Mock", "error", err)
		return startMock(cfg), "mock"
	}
	return conn, "simconnect"
}

func startMock(cfg *config.Config) *mocksim.Host {
	m := cfg.Sim.Mock
	h := mocksim.New(mocksim.Config{
		AppName:      cfg.Sim.AppName,
		Title:        m.Title,
		StartLat:     m.StartLat,
		StartLon:     m.StartLon,
		StartAlt:     m.StartAlt,
		StartHeading: m.StartHeading,
		GroundSpeed:  m.GroundSpeed,
		Tick:         m.Tick.Std(),
		QuitAfter:    m.QuitAfter.Std(),
	})
	h.Start()
	return h
}
