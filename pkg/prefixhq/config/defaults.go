// Package config provides configuration management for prefixhq.
package config

import "time"

// Default configuration values for prefixhq.
const (
	// AppDir is the directory name under $XDG_CONFIG_HOME. It matches the
	// directory the original PrefixHQ desktop tool used so games.json and
	// override covers are shared.
	AppDir = "PrefixHQ"

	// StateDirName is the directory name under the XDG data, state and
	// cache homes.
	StateDirName = "prefixhq"

	// DefaultMetadataConcurrency bounds simultaneous metadata fetches.
	DefaultMetadataConcurrency = 4

	// DefaultMetadataTimeout is the per-request timeout for metadata sources.
	DefaultMetadataTimeout = 10 * time.Second

	// DefaultLanguage is the Steam store language for names.
	DefaultLanguage = "english"

	// DefaultSizeWorkers is the number of prefixes measured concurrently.
	DefaultSizeWorkers = 4

	// DefaultRetentionDays is the default number of days to keep journal entries.
	DefaultRetentionDays = 90

	// DefaultFormat is the default output format.
	DefaultFormat = "pretty"
)

// DefaultIgnoreAppIDs lists Steam runtimes and redistributables whose
// prefixes are never surfaced: 0 (the shared default prefix), Steamworks
// Common Redistributables, and the Steam Linux Runtime variants.
var DefaultIgnoreAppIDs = []uint32{0, 228980, 1070560, 1391110, 1628350}
