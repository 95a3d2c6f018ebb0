package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simlink/pkg/config"
	"simlink/pkg/dispatch"
	"simlink/pkg/recv"
	"simlink/pkg/session"
	"simlink/pkg/sim/mocksim"
)

func main() {
	cfg := mockConfig(config.DefaultConfig().Sim.Mock)
	host := mocksim.New(cfg)
	host.Start()

	s := session.New(host)
	defer s.Close()
	if err := s.Apply(config.DefaultConfig().Definitions); err != nil {
		log.Fatalf("Failed to register definitions: %v", err)
	}
	for id, name := range map[uint32]string{1: "1sec", 2: "Pause", 3: "SimStart"} {
		if err := s.Subscribe(id, name); err != nil {
			log.Fatalf("Failed to subscribe to %s: %v", name, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	fmt.Println("Mock Simulator Started. Press Ctrl+C to exit.")

	h := dispatch.Handlers{
		OnAny: func(ev recv.Event) {
			fmt.Printf("[%s] %s", time.Now().Format("15:04:05"), ev.Kind())
			switch e := ev.(type) {
			case recv.SimObjectData:
				for _, item := range e.Data {
					fmt.Printf(" | %s=%s", item.Name(), item.Value)
				}
			case recv.SystemEvent:
				fmt.Printf(" | event=%d data=%d", e.EventID, e.Data)
			case recv.Exception:
				fmt.Printf(" | %s call=%s", e.Code, e.Call)
			}
			fmt.Println()
		},
	}
	if err := s.Run(ctx, dispatch.Config{Mode: dispatch.ModePush, PushInterval: 50 * time.Millisecond, Buffer: 64}, h); err != nil && ctx.Err() == nil {
		log.Printf("Dispatch stopped: %v", err)
	}
	fmt.Println("\nShutting down...")
}

func mockConfig(m config.MockSimConfig) mocksim.Config {
	return mocksim.Config{
		AppName:      "mocksim",
		Title:        m.Title,
		StartLat:     m.StartLat,
		StartLon:     m.StartLon,
		StartAlt:     m.StartAlt,
		StartHeading: m.StartHeading,
		GroundSpeed:  m.GroundSpeed,
		Tick:         m.Tick.Std(),
		QuitAfter:    m.QuitAfter.Std(),
	}
}
