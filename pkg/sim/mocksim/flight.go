package mocksim

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	knotsToMps = 0.514444
	feetToM    = 0.3048
)

type scenarioStep struct {
	Type     string  // "CLIMB" or "WAIT"
	Target   float64 // feet, for CLIMB
	Rate     float64 // feet per minute, negative to descend
	Duration float64 // seconds, for WAIT
}

// aircraft is the simulated user aircraft.
type aircraft struct {
	title         string
	atcID         string
	lat, lon      float64
	altitude      float64 // feet MSL
	heading       float64 // degrees true
	groundSpeed   float64 // knots
	verticalSpeed float64 // feet per minute
	pitotHeat     bool
	onGround      bool

	scenario    []scenarioStep
	scenarioIdx int
	stepElapsed float64
}

func newAircraft(cfg Config) *aircraft {
	a := &aircraft{
		title:       cfg.Title,
		atcID:       "N172SP",
		lat:         cfg.StartLat,
		lon:         cfg.StartLon,
		altitude:    cfg.StartAlt,
		heading:     normalizeHeading(cfg.StartHeading),
		groundSpeed: cfg.GroundSpeed,
		onGround:    cfg.GroundSpeed == 0,
	}
	a.initScenario()
	return a
}

// initScenario climbs in 1000 ft steps from the start altitude, holds, then
// descends back. The cycle repeats.
func (a *aircraft) initScenario() {
	base := a.altitude
	a.scenario = []scenarioStep{
		{Type: "WAIT", Duration: 30},
		{Type: "CLIMB", Target: base + 1000, Rate: 500},
		{Type: "WAIT", Duration: 60},
		{Type: "CLIMB", Target: base + 2000, Rate: 500},
		{Type: "WAIT", Duration: 60},
		{Type: "CLIMB", Target: base, Rate: -700},
	}
	a.scenarioIdx = 0
	a.stepElapsed = 0
}

// Fly advances the aircraft by dt along its heading at its ground speed.
func (a *aircraft) Fly(dt time.Duration) {
	secs := dt.Seconds()
	if secs <= 0 {
		return
	}
	if !a.onGround {
		a.updateScenario(secs)
	}

	dist := a.groundSpeed * knotsToMps * secs
	if dist > 0 {
		next := geo.PointAtBearingAndDistance(a.Point(), a.heading, dist)
		a.lon, a.lat = next.Lon(), next.Lat()
	}
}

func (a *aircraft) updateScenario(secs float64) {
	if len(a.scenario) == 0 {
		return
	}
	if a.scenarioIdx >= len(a.scenario) {
		a.scenarioIdx = 0
	}
	step := a.scenario[a.scenarioIdx]

	switch step.Type {
	case "WAIT":
		a.verticalSpeed = 0
		a.stepElapsed += secs
		if a.stepElapsed >= step.Duration {
			a.scenarioIdx++
			a.stepElapsed = 0
		}
	case "CLIMB":
		delta := step.Rate / 60 * secs
		a.verticalSpeed = step.Rate
		reached := (step.Rate > 0 && a.altitude+delta >= step.Target) ||
			(step.Rate <= 0 && a.altitude+delta <= step.Target)
		if reached {
			a.altitude = step.Target
			a.verticalSpeed = 0
			a.scenarioIdx++
			a.stepElapsed = 0
		} else {
			a.altitude += delta
		}
	}
}

// Point returns the aircraft position.
func (a *aircraft) Point() orb.Point {
	return orb.Point{a.lon, a.lat}
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
