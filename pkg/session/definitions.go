package session

import (
	"fmt"

	"simlink/pkg/config"
	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// Apply registers every configured definition, then issues the configured
// requests. Definitions go out first so no request references a schema the
// host has not seen.
func (s *Session) Apply(defs []config.DefinitionConfig) error {
	for _, d := range defs {
		if err := s.Define(schema.ID(d.ID), fieldsOf(d)...); err != nil {
			return fmt.Errorf("definition %d (%s): %w", d.ID, d.Name, err)
		}
		s.logger.Info("Definition registered", "define_id", d.ID, "name", d.Name, "fields", len(d.Fields))
	}

	for _, d := range defs {
		r := d.Request
		if r == nil {
			continue
		}
		if r.ByType {
			if err := s.RequestByType(r.ID, schema.ID(d.ID), r.Radius.Meters(), sim.SimObjectTypeAircraft); err != nil {
				return err
			}
			continue
		}
		period, ok := sim.ParsePeriod(r.Period)
		if !ok {
			return fmt.Errorf("request %d: unknown period %q", r.ID, r.Period)
		}
		err := s.Request(Request{
			ID:       r.ID,
			DefineID: schema.ID(d.ID),
			ObjectID: r.ObjectID,
			Period:   period,
			Flags:    r.Flags(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Load registers the configured definitions locally without contacting the
// host, for connections that only replay what a host already sent.
func (s *Session) Load(defs []config.DefinitionConfig) error {
	for _, d := range defs {
		for _, f := range fieldsOf(d) {
			if err := s.registry.Define(schema.ID(d.ID), f); err != nil {
				return fmt.Errorf("definition %d (%s): %w", d.ID, d.Name, err)
			}
		}
	}
	return nil
}

func fieldsOf(d config.DefinitionConfig) []schema.Field {
	fields := make([]schema.Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = f.Field()
	}
	return fields
}
