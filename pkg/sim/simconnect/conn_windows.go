//go:build windows

package simconnect

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"simlink/pkg/sim"
)

// Conn is a live SimConnect connection.
type Conn struct {
	mu     sync.Mutex
	handle uintptr
	logger *slog.Logger

	// dispatchCB is created once per connection; Windows callbacks are a
	// limited resource and are never freed.
	dispatchCB uintptr
	dispatchFn func(raw []byte)
}

// Dial loads the DLL (discovering it when dllPath is empty) and opens a
// connection named appName.
func Dial(appName, dllPath string) (sim.Conn, error) {
	if dllPath == "" {
		var err error
		dllPath, err = FindDLL()
		if err != nil {
			return nil, fmt.Errorf("failed to find SimConnect.dll: %w", err)
		}
	}
	if err := LoadDLL(dllPath); err != nil {
		return nil, err
	}
	handle, err := openHandle(appName)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		handle: handle,
		logger: slog.Default().With("component", "simconnect"),
	}
	c.dispatchCB = syscall.NewCallback(c.onDispatch)
	c.logger.Info("Connected", "app", appName, "dll", dllPath)
	return c, nil
}

func (c *Conn) live() (uintptr, error) {
	if c.handle == 0 {
		return 0, sim.ErrNotConnected
	}
	return c.handle, nil
}

// Next implements sim.Source.
func (c *Conn) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return nil, err
	}
	return getNextDispatch(h)
}

// onDispatch matches DispatchProc(SIMCONNECT_RECV*, DWORD, void*).
func (c *Conn) onDispatch(pData uintptr, cbData uint32, _ uintptr) uintptr {
	if c.dispatchFn != nil && pData != 0 && cbData > 0 {
		c.dispatchFn(unsafe.Slice((*byte)(unsafe.Pointer(pData)), cbData))
	}
	return 0
}

// CallDispatch implements sim.Pump. fn sees memory owned by SimConnect and
// must copy what it keeps.
func (c *Conn) CallDispatch(fn func(raw []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	c.dispatchFn = fn
	defer func() { c.dispatchFn = nil }()
	return call(procCallDispatch, h, c.dispatchCB, 0)
}

// AddToDataDefinition implements sim.Conn.
func (c *Conn) AddToDataDefinition(defineID uint32, datumName, unitsName string, datumType uint32, epsilon float32, datumID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	name := cstr(datumName)
	var units []byte
	if unitsName != "" {
		units = cstr(unitsName)
	}
	// fEpsilon is the sixth argument and travels on the stack, where its
	// bit pattern is read as a float.
	err = call(procAddToDataDefinition,
		h,
		uintptr(defineID),
		cstrPtr(name),
		cstrPtr(units),
		uintptr(datumType),
		uintptr(math.Float32bits(epsilon)),
		uintptr(datumID),
	)
	runtime.KeepAlive(name)
	runtime.KeepAlive(units)
	if err != nil {
		return fmt.Errorf("%s: %w", datumName, err)
	}
	return nil
}

// ClearDataDefinition implements sim.Conn.
func (c *Conn) ClearDataDefinition(defineID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	return call(procClearDataDefinition, h, uintptr(defineID))
}

// RequestDataOnSimObject implements sim.Conn.
func (c *Conn) RequestDataOnSimObject(requestID, defineID, objectID uint32, period sim.Period, flags sim.DataRequestFlag, origin, interval, limit uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	return call(procRequestDataOnSimObject,
		h,
		uintptr(requestID),
		uintptr(defineID),
		uintptr(objectID),
		uintptr(period),
		uintptr(flags),
		uintptr(origin),
		uintptr(interval),
		uintptr(limit),
	)
}

// RequestDataOnSimObjectType implements sim.Conn.
func (c *Conn) RequestDataOnSimObjectType(requestID, defineID, radiusMeters uint32, objType sim.SimObjectType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	return call(procRequestDataOnSimObjectType,
		h,
		uintptr(requestID),
		uintptr(defineID),
		uintptr(radiusMeters),
		uintptr(objType),
	)
}

// SetDataOnSimObject implements sim.Conn.
func (c *Conn) SetDataOnSimObject(defineID, objectID uint32, flags uint32, arrayCount uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("SimConnect_SetDataOnSimObject: empty payload")
	}
	if arrayCount == 0 {
		arrayCount = 1
	}
	err = call(procSetDataOnSimObject,
		h,
		uintptr(defineID),
		uintptr(objectID),
		uintptr(flags),
		uintptr(arrayCount),
		uintptr(uint32(len(data))/arrayCount),
		uintptr(unsafe.Pointer(&data[0])),
	)
	runtime.KeepAlive(data)
	return err
}

// SubscribeToSystemEvent implements sim.Conn.
func (c *Conn) SubscribeToSystemEvent(eventID uint32, eventName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	name := cstr(eventName)
	err = call(procSubscribeToSystemEvent, h, uintptr(eventID), cstrPtr(name))
	runtime.KeepAlive(name)
	if err != nil {
		return fmt.Errorf("%s: %w", eventName, err)
	}
	return nil
}

// MapClientEventToSimEvent implements sim.Conn.
func (c *Conn) MapClientEventToSimEvent(eventID uint32, eventName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	name := cstr(eventName)
	err = call(procMapClientEventToSimEvent, h, uintptr(eventID), cstrPtr(name))
	runtime.KeepAlive(name)
	if err != nil {
		return fmt.Errorf("%s: %w", eventName, err)
	}
	return nil
}

// AddClientEventToNotificationGroup implements sim.Conn.
func (c *Conn) AddClientEventToNotificationGroup(groupID, eventID uint32, maskable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	var m uintptr
	if maskable {
		m = 1
	}
	return call(procAddClientEventToNotificationGroup, h, uintptr(groupID), uintptr(eventID), m)
}

// SetNotificationGroupPriority implements sim.Conn.
func (c *Conn) SetNotificationGroupPriority(groupID uint32, priority sim.GroupPriority) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	return call(procSetNotificationGroupPriority, h, uintptr(groupID), uintptr(priority))
}

// TransmitClientEvent implements sim.Conn.
func (c *Conn) TransmitClientEvent(objectID, eventID, data, groupID uint32, flags sim.EventFlag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return err
	}
	return call(procTransmitClientEvent, h,
		uintptr(objectID),
		uintptr(eventID),
		uintptr(data),
		uintptr(groupID),
		uintptr(flags),
	)
}

// LastSentPacketID implements sim.Conn.
func (c *Conn) LastSentPacketID() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.live()
	if err != nil {
		return 0, err
	}
	return getLastSentPacketID(h)
}

// Close terminates the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 {
		return nil
	}
	err := call(procClose, c.handle)
	c.handle = 0
	c.logger.Info("Disconnected")
	return err
}
