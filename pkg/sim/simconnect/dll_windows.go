//go:build windows

package simconnect

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"
)

// HRESULT values returned by SimConnect.
const (
	SOK   = 0
	EFAIL = 0x80004005
)

// DLL and procedure handles
var (
	dllMu                          sync.Mutex
	dll                            *syscall.LazyDLL
	procOpen                       *syscall.LazyProc
	procClose                      *syscall.LazyProc
	procAddToDataDefinition        *syscall.LazyProc
	procClearDataDefinition        *syscall.LazyProc
	procRequestDataOnSimObject     *syscall.LazyProc
	procRequestDataOnSimObjectType *syscall.LazyProc
	procSetDataOnSimObject         *syscall.LazyProc
	procSubscribeToSystemEvent     *syscall.LazyProc
	procGetNextDispatch            *syscall.LazyProc
	procCallDispatch               *syscall.LazyProc
	procGetLastSentPacketID        *syscall.LazyProc

	procMapClientEventToSimEvent          *syscall.LazyProc
	procAddClientEventToNotificationGroup *syscall.LazyProc
	procSetNotificationGroupPriority      *syscall.LazyProc
	procTransmitClientEvent               *syscall.LazyProc
)

// LoadDLL loads SimConnect.dll from path. Later calls are no-ops.
func LoadDLL(path string) error {
	dllMu.Lock()
	defer dllMu.Unlock()
	if dll != nil {
		return nil
	}

	d := syscall.NewLazyDLL(path)
	if err := d.Load(); err != nil {
		return fmt.Errorf("failed to load SimConnect.dll: %w", err)
	}
	dll = d

	procOpen = dll.NewProc("SimConnect_Open")
	procClose = dll.NewProc("SimConnect_Close")
	procAddToDataDefinition = dll.NewProc("SimConnect_AddToDataDefinition")
	procClearDataDefinition = dll.NewProc("SimConnect_ClearDataDefinition")
	procRequestDataOnSimObject = dll.NewProc("SimConnect_RequestDataOnSimObject")
	procRequestDataOnSimObjectType = dll.NewProc("SimConnect_RequestDataOnSimObjectType")
	procSetDataOnSimObject = dll.NewProc("SimConnect_SetDataOnSimObject")
	procSubscribeToSystemEvent = dll.NewProc("SimConnect_SubscribeToSystemEvent")
	procGetNextDispatch = dll.NewProc("SimConnect_GetNextDispatch")
	procCallDispatch = dll.NewProc("SimConnect_CallDispatch")
	procGetLastSentPacketID = dll.NewProc("SimConnect_GetLastSentPacketID")
	procMapClientEventToSimEvent = dll.NewProc("SimConnect_MapClientEventToSimEvent")
	procAddClientEventToNotificationGroup = dll.NewProc("SimConnect_AddClientEventToNotificationGroup")
	procSetNotificationGroupPriority = dll.NewProc("SimConnect_SetNotificationGroupPriority")
	procTransmitClientEvent = dll.NewProc("SimConnect_TransmitClientEvent")
	return nil
}

func isLoaded() bool {
	dllMu.Lock()
	defer dllMu.Unlock()
	return dll != nil
}

// call invokes proc and turns a failed HRESULT into an error naming the call.
func call(proc *syscall.LazyProc, args ...uintptr) error {
	if !isLoaded() {
		return fmt.Errorf("SimConnect DLL not loaded")
	}
	r1, _, err := proc.Call(args...)
	if int32(r1) < 0 {
		return fmt.Errorf("%s failed: %v (0x%x)", proc.Name, err, uint32(r1))
	}
	return nil
}

// cstr returns a NUL-terminated copy of s. The slice must stay referenced
// until the call returns.
func cstr(s string) []byte {
	return append([]byte(s), 0)
}

func cstrPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func openHandle(name string) (uintptr, error) {
	var handle uintptr
	n := cstr(name)
	err := call(procOpen,
		uintptr(unsafe.Pointer(&handle)),
		cstrPtr(n),
		0, // hWnd
		0, // UserEventWin32
		0, // hEventHandle
		0, // ConfigIndex
	)
	if err != nil {
		return 0, err
	}
	return handle, nil
}

// getNextDispatch returns the next message, or nil when none is waiting.
// The returned memory belongs to SimConnect until the next dispatch call.
func getNextDispatch(handle uintptr) ([]byte, error) {
	if !isLoaded() {
		return nil, fmt.Errorf("SimConnect DLL not loaded")
	}
	var pData unsafe.Pointer
	var cbData uint32
	r1, _, _ := procGetNextDispatch.Call(
		handle,
		uintptr(unsafe.Pointer(&pData)),
		uintptr(unsafe.Pointer(&cbData)),
	)
	if uint32(r1) == EFAIL {
		return nil, nil
	}
	if int32(r1) < 0 {
		return nil, fmt.Errorf("SimConnect_GetNextDispatch failed: 0x%x", uint32(r1))
	}
	if pData == nil || cbData == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(pData), cbData), nil
}

func getLastSentPacketID(handle uintptr) (uint32, error) {
	var id uint32
	if err := call(procGetLastSentPacketID, handle, uintptr(unsafe.Pointer(&id))); err != nil {
		return 0, err
	}
	return id, nil
}
