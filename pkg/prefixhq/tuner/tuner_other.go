//go:build !linux

package tuner

import (
	"runtime"
)

// defaultTotalRAM is the fallback total RAM value on platforms without
// detection. Set to 8GB as a reasonable default for modern systems.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// Detect uses runtime.NumCPU() for CPU cores and falls back to defaults
// for memory.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2, // Conservative 50% estimate
	}, nil
}
