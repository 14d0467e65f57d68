// Package types provides the core data model for prefixhq.
// It includes the records produced by each stage of a scan pass (libraries,
// install records, prefix records), the reconciled entries surfaced to the
// presentation layer, and helpers for formatting sizes.
package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
)

// NonSteamThreshold is the first AppID used by non-Steam shortcuts.
// Steam derives shortcut IDs from a CRC with the high bit set.
const NonSteamThreshold AppID = 1 << 31

// AppID is Steam's numeric identifier for a game or application.
type AppID uint32

// ErrInvalidAppID is returned when a string is not a well-formed AppID.
var ErrInvalidAppID = errors.New("invalid app id")

// ParseAppID parses a decimal AppID. Only ASCII digits are accepted; signs,
// whitespace and values that overflow uint32 are rejected.
func ParseAppID(s string) (AppID, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAppID)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAppID, s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAppID, s)
	}
	return AppID(n), nil
}

// String returns the decimal form of the AppID.
func (id AppID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsNonSteam reports whether the AppID belongs to a non-Steam shortcut.
func (id AppID) IsNonSteam() bool {
	return id >= NonSteamThreshold
}

// Origin identifies which Steam installation flavour reported a library.
type Origin string

// Known origins.
const (
	OriginNative  Origin = "native"
	OriginFlatpak Origin = "flatpak"
	OriginSnap    Origin = "snap"
	OriginCustom  Origin = "custom"
)

// LibraryRoot is a directory Steam uses to store games. It always contains
// a steamapps directory. Library roots are re-derived on every scan.
type LibraryRoot struct {
	// Path is the symlink-resolved absolute path of the library.
	Path string `json:"path"`

	// Origin is the install flavour whose libraryfolders.vdf listed it first.
	Origin Origin `json:"origin"`

	// InstallRoot is the Steam install root that reported this library.
	InstallRoot string `json:"install_root"`

	// DiscoveredAt is when discovery found the library.
	DiscoveredAt time.Time `json:"discovered_at"`

	// Order is the position in discovery order, used for deterministic tie-breaks.
	Order int `json:"order"`
}

// SteamApps returns the library's steamapps directory.
func (l LibraryRoot) SteamApps() string {
	return filepath.Join(l.Path, "steamapps")
}

// CompatData returns the library's compatdata directory.
func (l LibraryRoot) CompatData() string {
	return filepath.Join(l.Path, "steamapps", "compatdata")
}

// InstallRecord is one entry derived from an appmanifest_<id>.acf file.
type InstallRecord struct {
	AppID        AppID        `json:"appid"`
	Name         string       `json:"name,omitempty"`
	Library      string       `json:"library"`
	LibraryOrder int          `json:"-"`
	ManifestPath string       `json:"manifest_path"`
	InstallDir   string       `json:"install_dir,omitempty"`
	StateFlags   uint32       `json:"state_flags"`
	State        InstallState `json:"state"`
	SizeOnDisk   int64        `json:"size_on_disk,omitempty"`
	LastUpdated  time.Time    `json:"last_updated,omitempty"`
	ModTime      time.Time    `json:"mod_time"`
}

// Complete reports whether the record counts as an installed game.
func (r InstallRecord) Complete() bool {
	return r.State.Complete()
}

// PrefixRecord is one entry derived from a compatdata subdirectory.
type PrefixRecord struct {
	AppID        AppID     `json:"appid"`
	Library      string    `json:"library"`
	LibraryOrder int       `json:"-"`
	Path         string    `json:"path"`
	ModTime      time.Time `json:"mod_time"`

	// Size is the prefix disk usage in bytes, or -1 when it was not computed.
	Size int64 `json:"size"`
}

// Status is the reconciled state of a prefix.
type Status string

// Reconciled statuses.
const (
	StatusInstalled      Status = "installed"
	StatusOrphaned       Status = "orphaned"
	StatusManuallyMarked Status = "manually_marked"
)

// ParseOverride parses a manual status override value.
// Only installed and orphaned can be asserted by the user.
func ParseOverride(s string) (Status, error) {
	switch Status(s) {
	case StatusInstalled, StatusOrphaned:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status override %q (want installed or orphaned)", s)
	}
}

// NameSource records where an entry's display name came from.
type NameSource string

// Display name sources in resolution order.
const (
	NameCustom   NameSource = "custom"
	NameManifest NameSource = "manifest"
	NameCached   NameSource = "cached"
	NameAppID    NameSource = "appid"
)

// ReconciledEntry is the unit surfaced to the presentation layer: exactly one
// per distinct AppID observed as a prefix. Entries are values; enrichment
// produces new copies rather than mutating published ones.
type ReconciledEntry struct {
	AppID      AppID      `json:"appid"`
	Name       string     `json:"name"`
	NameSource NameSource `json:"name_source"`
	Status     Status     `json:"status"`

	// Derived is the status computed from the filesystem, even when overridden.
	Derived Status `json:"derived"`

	// Override is the user-asserted status when Status is manually marked.
	Override Status `json:"override,omitempty"`

	// Uncertain is set when the install state could not be determined reliably.
	Uncertain bool `json:"uncertain,omitempty"`

	// NonSteam is set for shortcut prefixes that have no store metadata.
	NonSteam bool `json:"non_steam,omitempty"`

	Prefix     PrefixRecord   `json:"prefix"`
	Duplicates []PrefixRecord `json:"duplicates,omitempty"`
	Install    *InstallRecord `json:"install,omitempty"`
	Libraries  []string       `json:"libraries"`

	CoverPath string `json:"cover_path,omitempty"`

	// Retry is set when a previous metadata fetch failed.
	Retry bool `json:"retry,omitempty"`
}

// PrefixPath returns the path of the chosen prefix directory.
func (e ReconciledEntry) PrefixPath() string {
	return e.Prefix.Path
}

// HasDuplicates reports whether stale copies of the prefix exist in other libraries.
func (e ReconciledEntry) HasDuplicates() bool {
	return len(e.Duplicates) > 0
}

// NeedsEnrichment reports whether the entry would benefit from a metadata fetch.
func (e ReconciledEntry) NeedsEnrichment() bool {
	if e.NonSteam {
		return false
	}
	return e.Retry || e.CoverPath == "" || e.NameSource == NameAppID
}

// EntryUpdate is a late-arriving enrichment result for one entry.
type EntryUpdate struct {
	AppID     AppID  `json:"appid"`
	Name      string `json:"name,omitempty"`
	CoverPath string `json:"cover_path,omitempty"`

	// Partial is set when the fetch failed and the AppID was marked for retry.
	Partial bool   `json:"partial,omitempty"`
	Err     string `json:"error,omitempty"`
}

// ScanResult is the output of one reconciliation pass.
type ScanResult struct {
	// SteamFound is false when no Steam install root exists under any origin.
	SteamFound bool `json:"steam_found"`

	Libraries []LibraryRoot     `json:"libraries"`
	Entries   []ReconciledEntry `json:"entries"`

	// Tracked lists installed AppIDs without a prefix, kept for name caching.
	Tracked []InstallRecord `json:"tracked,omitempty"`

	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	ScannedAt   time.Time     `json:"scanned_at"`
}

// Count returns the number of entries with the given status.
func (r *ScanResult) Count(status Status) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Entry returns the entry for an AppID.
func (r *ScanResult) Entry(id AppID) (ReconciledEntry, bool) {
	for _, e := range r.Entries {
		if e.AppID == id {
			return e, true
		}
	}
	return ReconciledEntry{}, false
}

// FormatSize formats a byte count using binary (IEC) units.
// Negative sizes mean "unknown" and render as "-".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}
