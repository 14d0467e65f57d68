// Package tuner sizes PrefixHQ's concurrent work to the machine it runs on.
// It detects CPU cores and memory, then picks how many prefixes are
// measured at once and how many metadata fetches run in parallel.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}

// Worker limits.
const (
	minSizeWorkers = 2
	maxSizeWorkers = 16

	minMetadataConcurrency = 2
	maxMetadataConcurrency = 8

	// lowMemory is the available RAM below which size workers are halved;
	// every walker keeps a set of seen hard links.
	lowMemory = 1 << 30
)

// OptimalConfig contains worker counts tuned to the detected resources.
type OptimalConfig struct {
	// SizeWorkers is the number of prefixes measured concurrently.
	SizeWorkers int

	// MetadataConcurrency is the number of metadata fetches in flight.
	MetadataConcurrency int
}

// Calculate returns worker counts for resources.
//
//   - SizeWorkers: half the cores, kept within [2, 16] and halved again
//     when less than 1 GiB is free
//   - MetadataConcurrency: one per core within [2, 8]; fetches wait on the
//     network, and the store API rate-limits beyond that
func Calculate(resources SystemResources) OptimalConfig {
	sizeWorkers := min(max(resources.CPUCores/2, minSizeWorkers), maxSizeWorkers)
	if resources.AvailableRAM > 0 && resources.AvailableRAM < lowMemory {
		sizeWorkers = max(sizeWorkers/2, 1)
	}

	return OptimalConfig{
		SizeWorkers:         sizeWorkers,
		MetadataConcurrency: min(max(resources.CPUCores, minMetadataConcurrency), maxMetadataConcurrency),
	}
}

// CalculateWithOverrides applies user overrides to the calculated config.
// A positive override replaces the calculated value; zero or negative keeps it.
func CalculateWithOverrides(resources SystemResources, sizeWorkers, metadataConcurrency int) OptimalConfig {
	config := Calculate(resources)

	if sizeWorkers > 0 {
		config.SizeWorkers = min(sizeWorkers, maxSizeWorkers*4)
	}
	if metadataConcurrency > 0 {
		config.MetadataConcurrency = min(metadataConcurrency, maxMetadataConcurrency*4)
	}

	return config
}

// Tune detects resources and applies overrides. Detection failures fall
// back to the conservative defaults Detect returns alongside the error.
func Tune(sizeWorkers, metadataConcurrency int) OptimalConfig {
	resources, _ := Detect()
	return CalculateWithOverrides(resources, sizeWorkers, metadataConcurrency)
}
