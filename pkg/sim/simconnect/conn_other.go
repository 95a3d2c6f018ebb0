//go:build !windows

package simconnect

import "simlink/pkg/sim"

// Dial always fails off Windows; use the mock or replay provider instead.
func Dial(appName, dllPath string) (sim.Conn, error) {
	return nil, sim.ErrUnsupportedPlatform
}
