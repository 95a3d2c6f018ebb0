package mocksim

import (
	"sort"
	"strings"

	"simlink/pkg/recv"
	"simlink/pkg/sim"
)

// Parameter positions for the client event calls.
const (
	paramMapEventID     = 2
	paramMapName        = 3
	paramGroupEventID   = 3
	paramTransmitObject = 2
	paramTransmitEvent  = 3
)

type notificationGroup struct {
	priority sim.GroupPriority
	hasPrio  bool
	events   []uint32
	maskable map[uint32]bool
}

// keyEvents are the sim event names the mock host understands. Names with a
// period are custom events and are always accepted.
var keyEvents = map[string]func(a *aircraft, data uint32){
	"brakes":            nil,
	"parking_brakes":    nil,
	"gear_toggle":       nil,
	"flaps_up":          nil,
	"flaps_down":        nil,
	"ap_master":         nil,
	"pause_toggle":      nil,
	"pitot_heat_toggle": func(a *aircraft, _ uint32) { a.pitotHeat = !a.pitotHeat },
	"pitot_heat_on":     func(a *aircraft, _ uint32) { a.pitotHeat = true },
	"pitot_heat_off":    func(a *aircraft, _ uint32) { a.pitotHeat = false },
	"heading_bug_set":   nil,
	"heading_set":       func(a *aircraft, data uint32) { a.heading = normalizeHeading(float64(data)) },
}

func canonicalKeyEvent(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	if strings.Contains(n, ".") {
		return n, true
	}
	_, ok := keyEvents[n]
	return n, ok
}

// MapClientEventToSimEvent implements sim.Conn.
func (h *Host) MapClientEventToSimEvent(eventID uint32, eventName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	name, ok := canonicalKeyEvent(eventName)
	if !ok {
		h.exception(recv.ExceptionNameUnrecognized, paramMapName)
		return nil
	}
	if _, dup := h.clientEvents[eventID]; dup {
		h.exception(recv.ExceptionEventIDDuplicate, paramMapEventID)
		return nil
	}
	h.clientEvents[eventID] = name
	return nil
}

// AddClientEventToNotificationGroup implements sim.Conn. The event must be
// mapped first.
func (h *Host) AddClientEventToNotificationGroup(groupID, eventID uint32, maskable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	if _, ok := h.clientEvents[eventID]; !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramGroupEventID)
		return nil
	}
	g := h.group(groupID)
	for _, id := range g.events {
		if id == eventID {
			h.exception(recv.ExceptionEventIDDuplicate, paramGroupEventID)
			return nil
		}
	}
	g.events = append(g.events, eventID)
	g.maskable[eventID] = maskable
	return nil
}

// SetNotificationGroupPriority implements sim.Conn. Groups receive events
// only once a priority is set.
func (h *Host) SetNotificationGroupPriority(groupID uint32, priority sim.GroupPriority) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}
	g := h.group(groupID)
	g.priority = priority
	g.hasPrio = true
	return nil
}

// TransmitClientEvent implements sim.Conn. The event's effect is applied to
// the aircraft and every prioritized group holding the event is notified.
func (h *Host) TransmitClientEvent(objectID, eventID, data, groupID uint32, flags sim.EventFlag) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	if objectID != sim.ObjectIDUser && objectID != userObjectID {
		h.exception(recv.ExceptionUnrecognizedID, paramTransmitObject)
		return nil
	}
	name, ok := h.clientEvents[eventID]
	if !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramTransmitEvent)
		return nil
	}
	h.trigger(name, data)
	return nil
}

// Press simulates the user triggering a sim event, as from a key binding.
// Clients that mapped the event and put it in a prioritized group are
// notified.
func (h *Host) Press(eventName string, data uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quit || h.closed {
		return
	}
	name, ok := canonicalKeyEvent(eventName)
	if !ok {
		h.logger.Warn("Mock press of unknown event", "event", eventName)
		return
	}
	h.trigger(name, data)
}

func (h *Host) trigger(name string, data uint32) {
	if apply := keyEvents[name]; apply != nil {
		apply(h.ac, data)
	}
	for _, gid := range h.groupsByPriority() {
		g := h.groups[gid]
		for _, id := range g.events {
			if h.clientEvents[id] == name {
				h.enqueue(recv.SystemEvent{GroupID: gid, EventID: id, Data: data})
			}
		}
	}
}

func (h *Host) group(id uint32) *notificationGroup {
	g, ok := h.groups[id]
	if !ok {
		g = &notificationGroup{maskable: make(map[uint32]bool)}
		h.groups[id] = g
	}
	return g
}

func (h *Host) groupsByPriority() []uint32 {
	var ids []uint32
	for id, g := range h.groups {
		if g.hasPrio {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := h.groups[ids[i]], h.groups[ids[j]]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return ids[i] < ids[j]
	})
	return ids
}
