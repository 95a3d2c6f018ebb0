package main

import (
	"context"

	"simlink/pkg/config"
	"simlink/pkg/db"
	"simlink/pkg/probe"
	"simlink/pkg/schema"
	"simlink/pkg/sim/simconnect"
)

func startupProbes(cfg *config.Config, dbConn *db.DB) []probe.Probe {
	probes := []probe.Probe{
		{
			Name:     "Definitions",
			Check:    func(context.Context) error { return checkDefinitions(cfg.Definitions) },
			Critical: true,
		},
	}

	if cfg.Sim.Provider == "simconnect" && cfg.Sim.DLLPath == "" {
		// Not critical: the mock host takes over
		probes = append(probes, probe.Probe{
			Name: "SimConnect DLL",
			Check: func(context.Context) error {
				_, err := simconnect.FindDLL()
				return err
			},
		})
	}

	if dbConn != nil {
		probes = append(probes, probe.Probe{
			Name:     "Recording Database",
			Check:    dbConn.PingContext,
			Critical: true,
		})
	}
	return probes
}

// checkDefinitions registers every configured field in a scratch registry.
func checkDefinitions(defs []config.DefinitionConfig) error {
	reg := schema.NewRegistry()
	for _, d := range defs {
		for _, f := range d.Fields {
			if err := reg.Define(schema.ID(d.ID), f.Field()); err != nil {
				return err
			}
		}
	}
	return nil
}
