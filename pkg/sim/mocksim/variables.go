package mocksim

import (
	"math"
	"strings"

	"simlink/pkg/recv"
	"simlink/pkg/schema"
)

// variable is one simulation variable the mock host can serve.
type variable struct {
	unit string // unit the getter reports in
	get  func(a *aircraft) any
	set  func(a *aircraft, x float64)
}

var variables = map[string]variable{
	"TITLE":  {get: func(a *aircraft) any { return a.title }},
	"ATC ID": {get: func(a *aircraft) any { return a.atcID }},
	"PLANE LATITUDE": {
		unit: "degrees",
		get:  func(a *aircraft) any { return a.lat },
		set:  func(a *aircraft, x float64) { a.lat = x },
	},
	"PLANE LONGITUDE": {
		unit: "degrees",
		get:  func(a *aircraft) any { return a.lon },
		set:  func(a *aircraft, x float64) { a.lon = x },
	},
	"PLANE ALTITUDE": {
		unit: "feet",
		get:  func(a *aircraft) any { return a.altitude },
		set:  func(a *aircraft, x float64) { a.altitude = x },
	},
	"PLANE HEADING DEGREES TRUE": {
		unit: "degrees",
		get:  func(a *aircraft) any { return a.heading },
		set:  func(a *aircraft, x float64) { a.heading = normalizeHeading(x) },
	},
	"GROUND VELOCITY": {
		unit: "knots",
		get:  func(a *aircraft) any { return a.groundSpeed },
		set:  func(a *aircraft, x float64) { a.groundSpeed = x },
	},
	"VERTICAL SPEED": {
		unit: "feet per minute",
		get:  func(a *aircraft) any { return a.verticalSpeed },
	},
	"PITOT HEAT": {
		unit: "bool",
		get:  func(a *aircraft) any { return a.pitotHeat },
		set:  func(a *aircraft, x float64) { a.pitotHeat = x != 0 },
	},
	"SIM ON GROUND": {
		unit: "bool",
		get:  func(a *aircraft) any { return a.onGround },
	},
	"STRUCT LATLONALT": {
		get: func(a *aircraft) any {
			return recv.LatLonAlt{Latitude: a.lat, Longitude: a.lon, Altitude: a.altitude * feetToM}
		},
	},
}

// unitFactors converts from a variable's unit to a requested unit.
var unitFactors = map[string]map[string]float64{
	"degrees": {"degree": 1, "radians": math.Pi / 180, "radian": math.Pi / 180},
	"feet":    {"foot": 1, "ft": 1, "meters": feetToM, "meter": feetToM, "m": feetToM},
	"knots": {
		"knot":                1,
		"meters per second":   knotsToMps,
		"feet per second":     knotsToMps / feetToM,
		"kilometers per hour": 1.852,
	},
	"feet per minute": {
		"feet/minute":       1,
		"feet per second":   1.0 / 60,
		"meters per second": feetToM / 60,
		"meters per minute": feetToM,
	},
	"bool": {"boolean": 1, "number": 1},
}

func lookupVariable(name string) (variable, bool) {
	v, ok := variables[strings.ToUpper(strings.TrimSpace(name))]
	return v, ok
}

// factor returns the multiplier from the variable's unit to unit. Unknown or
// empty units leave the value as reported.
func (v variable) factor(unit string) float64 {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" || unit == v.unit {
		return 1
	}
	if f, ok := unitFactors[v.unit][unit]; ok {
		return f
	}
	return 1
}

// accepts reports whether the variable can be delivered as type t.
func (v variable) accepts(t schema.DataType) bool {
	switch v.get(&aircraft{}).(type) {
	case string:
		return t.IsString()
	case recv.LatLonAlt:
		return t == schema.LatLonAlt
	default:
		return !t.IsString() && !t.IsComposite()
	}
}

// read returns the variable as a value of the field's type.
func (v variable) read(a *aircraft, f schema.Field) (recv.Value, error) {
	x := v.get(a)
	if n, ok := x.(float64); ok {
		x = n * v.factor(f.Unit)
	}
	return recv.NewValue(f.Type, x)
}
