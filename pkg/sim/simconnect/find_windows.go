//go:build windows

package simconnect

import (
	"golang.org/x/sys/windows/registry"
)

// steamAppKeys are the uninstall entries of the Steam release of MSFS.
var steamAppKeys = []string{
	`SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall\Steam App 1250410`,
	`SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall\Steam App 1250410`,
}

func steamInstallDirs() []string {
	var dirs []string
	for _, path := range steamAppKeys {
		key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		if val, _, err := key.GetStringValue("InstallLocation"); err == nil && val != "" {
			dirs = append(dirs, val)
		}
		key.Close()
	}
	return dirs
}
