//go:build !windows

package simconnect

func steamInstallDirs() []string { return nil }
