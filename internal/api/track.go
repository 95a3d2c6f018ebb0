package api

import (
	"net/http"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"simlink/pkg/recv"
)

// Field names the track reads from data events.
const (
	latitudeField  = "PLANE LATITUDE"
	longitudeField = "PLANE LONGITUDE"
	altitudeField  = "PLANE ALTITUDE"
	positionField  = "STRUCT LATLONALT"

	metersPerFoot = 0.3048
)

// TrackHandler keeps the recent path of the user aircraft from data events
// and serves it as GeoJSON.
type TrackHandler struct {
	mu       sync.RWMutex
	max      int
	path     orb.LineString
	altitude float64
}

// NewTrackHandler keeps at most max points; the oldest are dropped first.
func NewTrackHandler(max int) *TrackHandler {
	if max <= 0 {
		max = 3600
	}
	return &TrackHandler{max: max}
}

// Observe appends the position carried by ev, if any. It matches
// dispatch.Handlers.OnAny.
func (h *TrackHandler) Observe(ev recv.Event) {
	data, ok := ev.(recv.SimObjectData)
	if !ok || data.ByType {
		return
	}
	p, alt, ok := position(data)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.altitude = alt
	if n := len(h.path); n > 0 && h.path[n-1].Equal(p) {
		return
	}
	h.path = append(h.path, p)
	if len(h.path) > h.max {
		h.path = append(orb.LineString(nil), h.path[len(h.path)-h.max:]...)
	}
}

func position(data recv.SimObjectData) (orb.Point, float64, bool) {
	if d, ok := data.Get(positionField); ok {
		if lla, ok := d.Value.LatLonAlt(); ok {
			return lla.Point(), lla.Altitude / metersPerFoot, true
		}
	}
	lat, okLat := data.Float64(latitudeField)
	lon, okLon := data.Float64(longitudeField)
	if !okLat || !okLon {
		return orb.Point{}, 0, false
	}
	alt, _ := data.Float64(altitudeField)
	return orb.Point{lon, lat}, alt, true
}

// Len returns the number of points held.
func (h *TrackHandler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.path)
}

// FeatureCollection returns the track as a LineString and the latest position
// as a Point.
func (h *TrackHandler) FeatureCollection() *geojson.FeatureCollection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	if len(h.path) == 0 {
		return fc
	}
	line := geojson.NewFeature(append(orb.LineString(nil), h.path...))
	line.Properties["name"] = "track"
	line.Properties["points"] = len(h.path)
	fc.Append(line)

	pos := geojson.NewFeature(h.path[len(h.path)-1])
	pos.Properties["name"] = "position"
	pos.Properties["altitude_ft"] = h.altitude
	fc.Append(pos)
	return fc
}

func (h *TrackHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	data, err := h.FeatureCollection().MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}
