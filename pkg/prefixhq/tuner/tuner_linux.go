//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// defaultTotalRAM is assumed when sysinfo fails.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// Detect detects available system resources using sysinfo(2). Free plus
// buffer memory is reported as available.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return resources, fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	resources.TotalRAM = int64(uint64(si.Totalram) * unit)
	resources.AvailableRAM = int64((uint64(si.Freeram) + uint64(si.Bufferram)) * unit)
	if resources.AvailableRAM > resources.TotalRAM {
		resources.AvailableRAM = resources.TotalRAM
	}
	return resources, nil
}
