// Command debug_simconnect defines candidate variables one at a time and
// reports whether the host accepts them, naming the call behind each
// exception.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"simlink/pkg/dispatch"
	"simlink/pkg/recv"
	"simlink/pkg/schema"
	"simlink/pkg/session"
	"simlink/pkg/sim"
	"simlink/pkg/sim/mocksim"
	"simlink/pkg/sim/simconnect"
)

const AppName = "simlink-debug"

// Candidates are checked in order.
var Candidates = []schema.Field{
	{Name: "AMBIENT VISIBILITY", Unit: "Meters", Type: schema.Float64, Tag: schema.Unused},
	{Name: "CLOUD COVERAGE DENSITY", Unit: "Percent", Type: schema.Float64, Tag: schema.Unused},
	{Name: "AMBIENT IN CLOUD", Unit: "Bool", Type: schema.Float64, Tag: schema.Unused},
	{Name: "Ambient In Cloud", Unit: "Bool", Type: schema.Float64, Tag: schema.Unused}, // case sensitivity
	{Name: "AMBIENT IN CLOUD", Unit: "Enum", Type: schema.Int32, Tag: schema.Unused},   // type check
}

func main() {
	useMock := flag.Bool("mock", false, "Use the mock host instead of SimConnect")
	dllPath := flag.String("dll", "", "Path to SimConnect.dll (discovered when empty)")
	flag.Parse()

	var conn sim.Conn
	if *useMock {
		conn = mocksim.New(mocksim.Config{AppName: AppName})
	} else {
		c, err := simconnect.Dial(AppName, *dllPath)
		if err != nil {
			log.Fatalf("Failed to open connection: %v", err)
		}
		conn = c
	}
	s := session.New(conn)
	defer s.Close()
	fmt.Println("Connected.")

	for i, c := range Candidates {
		fmt.Printf("[%d] Testing Variable: %s (%s, %s)...\n", i, c.Name, c.Unit, c.Type)

		id := schema.ID(i + 100)
		if err := s.AddField(id, c); err != nil {
			fmt.Printf("  -> AddToDataDefinition FAILED locally: %v\n", err)
			continue
		}
		err := s.Request(session.Request{ID: uint32(id), DefineID: id, ObjectID: sim.ObjectIDUser, Period: sim.PeriodOnce})
		if err != nil {
			fmt.Printf("  -> RequestDataOnSimObject FAILED locally: %v\n", err)
			continue
		}
		waitAndListen(s, uint32(id))
	}
}

// waitAndListen routes messages until data for requestID or an exception
// arrives, or two seconds pass.
func waitAndListen(s *session.Session, requestID uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r := s.Router(dispatch.Handlers{
		OnException: func(e recv.Exception) {
			fmt.Printf("  -> EXCEPTION %s SendID=%d Index=%d\n     Call: %s\n", e.Code, e.SendID, e.Index, e.Call)
			cancel()
		},
		OnData: func(d recv.SimObjectData) {
			if d.RequestID != requestID {
				return
			}
			fmt.Printf("  -> SUCCESS: Received Data (Size=%d)\n", d.Size)
			for _, item := range d.Data {
				fmt.Printf("     Value: %s\n", item.Value)
			}
			cancel()
		},
	})
	if err := r.RunPull(ctx, s.Conn(), 10*time.Millisecond); err != nil && ctx.Err() == context.DeadlineExceeded {
		fmt.Println("  -> Timeout waiting for response.")
	}
}
