// Command simtest requests tagged data that is only sent when a value
// changes, and prints each update.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simlink/pkg/dispatch"
	"simlink/pkg/recv"
	"simlink/pkg/schema"
	"simlink/pkg/session"
	"simlink/pkg/sim"
	"simlink/pkg/sim/mocksim"
	"simlink/pkg/sim/simconnect"
)

const (
	defIDControls schema.ID = 10
	reqIDControls uint32    = 10

	tagVerticalSpeed uint32 = 1
	tagPitotHeat     uint32 = 2
	tagAltitude      uint32 = 3
)

var fields = []schema.Field{
	{Name: "VERTICAL SPEED", Unit: "feet per minute", Type: schema.Float32, Epsilon: 50, Tag: tagVerticalSpeed},
	{Name: "PITOT HEAT", Unit: "bool", Type: schema.Int32, Tag: tagPitotHeat},
	{Name: "PLANE ALTITUDE", Unit: "feet", Type: schema.Float64, Epsilon: 10, Tag: tagAltitude},
}

func main() {
	useMock := flag.Bool("mock", false, "Use the mock host instead of SimConnect")
	dllPath := flag.String("dll", "", "Path to SimConnect.dll (discovered when empty)")
	flag.Parse()

	conn, err := open(*useMock, *dllPath)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	s := session.New(conn)
	defer s.Close()

	if err := s.Define(defIDControls, fields...); err != nil {
		log.Fatalf("Failed to define controls: %v", err)
	}
	err = s.Request(session.Request{
		ID:       reqIDControls,
		DefineID: defIDControls,
		ObjectID: sim.ObjectIDUser,
		Period:   sim.PeriodSimFrame,
		Flags:    sim.DataRequestFlagChanged | sim.DataRequestFlagTagged,
	})
	if err != nil {
		log.Fatalf("Failed to request controls: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Waiting for changes. Press Ctrl+C to exit.")
	h := dispatch.Handlers{
		OnOpen: func(o recv.Open) {
			fmt.Printf("Connected to %s %s\n", o.ApplicationName, o.ApplicationVersion)
		},
		OnData: func(d recv.SimObjectData) {
			fmt.Printf("[%s] request=%d changed=%d/%d:", time.Now().Format("15:04:05.000"), d.RequestID, len(d.Data), len(fields))
			for _, item := range d.Data {
				fmt.Printf(" %s=%s", item.Name(), item.Value)
			}
			fmt.Println()
		},
		OnException: func(e recv.Exception) {
			fmt.Printf("EXCEPTION %s send_id=%d index=%d call=%s\n", e.Code, e.SendID, e.Index, e.Call)
		},
		OnQuit: func(recv.Quit) {
			fmt.Println("Host quit")
		},
	}
	if err := s.Run(ctx, dispatch.Config{Mode: dispatch.ModePull, PollInterval: 10 * time.Millisecond}, h); err != nil && ctx.Err() == nil {
		log.Fatalf("Dispatch failed: %v", err)
	}
}

func open(useMock bool, dllPath string) (sim.Conn, error) {
	if useMock {
		h := mocksim.New(mocksim.Config{AppName: "simtest", StartLat: 47.45, StartLon: -122.31, StartAlt: 1500, GroundSpeed: 110})
		h.Start()
		return h, nil
	}
	return simconnect.Dial("simtest", dllPath)
}
