// Package simconnect binds SimConnect.dll for Microsoft Flight Simulator.
// The native transport is Windows-only; DLL discovery works everywhere.
package simconnect

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultSDKDir is used when SIMCONNECT_DIR is not set.
const DefaultSDKDir = `C:\MSFS SDK\SimConnect SDK`

// ErrDLLNotFound is returned when no candidate path holds SimConnect.dll.
var ErrDLLNotFound = errors.New("SimConnect.dll not found")

// Candidate is one place FindDLL looks, with where the guess came from.
type Candidate struct {
	Path   string
	Source string
}

// Candidates lists the DLL locations FindDLL checks, in order:
// SIMCONNECT_DLL, SIMCONNECT_DIR (or DefaultSDKDir), MSFS_SDK, the usual SDK
// install folders and the Steam install location.
func Candidates() []Candidate {
	var out []Candidate
	if p := os.Getenv("SIMCONNECT_DLL"); p != "" {
		out = append(out, Candidate{Path: p, Source: "SIMCONNECT_DLL"})
	}

	dir := os.Getenv("SIMCONNECT_DIR")
	src := "SIMCONNECT_DIR"
	if dir == "" {
		dir, src = DefaultSDKDir, "default SDK dir"
	}
	out = append(out, Candidate{Path: joinLib(dir), Source: src})

	if sdk := os.Getenv("MSFS_SDK"); sdk != "" {
		out = append(out, Candidate{Path: joinLib(filepath.Join(sdk, "SimConnect SDK")), Source: "MSFS_SDK"})
	}

	for _, p := range []string{
		`C:\MSFS 2024 SDK\SimConnect SDK\lib\SimConnect.dll`,
		`C:\Program Files (x86)\Microsoft Flight Simulator SDK\SimConnect SDK\lib\SimConnect.dll`,
	} {
		out = append(out, Candidate{Path: p, Source: "SDK path"})
	}

	for _, dir := range steamInstallDirs() {
		out = append(out, Candidate{Path: filepath.Join(dir, "SimConnect.dll"), Source: "Steam"})
	}
	return out
}

// FindDLL returns the first candidate that exists.
func FindDLL() (string, error) {
	for _, c := range Candidates() {
		if info, err := os.Stat(c.Path); err == nil && !info.IsDir() {
			return c.Path, nil
		}
	}
	return "", ErrDLLNotFound
}

// joinLib keeps backslash separators for Windows-style SDK dirs on any OS.
func joinLib(dir string) string {
	if len(dir) > 2 && dir[1] == ':' {
		return dir + `\lib\SimConnect.dll`
	}
	return filepath.Join(dir, "lib", "SimConnect.dll")
}
