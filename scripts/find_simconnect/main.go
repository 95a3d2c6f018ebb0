package main

import (
	"fmt"
	"os"

	"simlink/pkg/sim/simconnect"
)

func main() {
	fmt.Println("=== SimConnect.dll Detection Test ===")
	fmt.Println()

	for _, env := range []string{"SIMCONNECT_DLL", "SIMCONNECT_DIR", "MSFS_SDK"} {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("   %s = %s\n", env, v)
		} else {
			fmt.Printf("   %s not set\n", env)
		}
	}
	fmt.Println()

	for i, c := range simconnect.Candidates() {
		fmt.Printf("%d. [%s]\n", i+1, c.Source)
		checkPath(c.Path)
	}
	fmt.Println()

	if p, err := simconnect.FindDLL(); err == nil {
		fmt.Printf("Selected: %s\n", p)
	} else {
		fmt.Printf("Selected: none (%v)\n", err)
	}
	fmt.Println("=== Test Complete ===")
}

func checkPath(path string) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		fmt.Printf("   ✓ FOUND: %s\n", path)
	} else {
		fmt.Printf("   ✗ NOT FOUND: %s\n", path)
	}
}
