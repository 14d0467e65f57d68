package output

import (
	"strings"
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// entryView is the flattened entry shape shared by the structured formatters.
type entryView struct {
	AppID      types.AppID `json:"appid" yaml:"appid"`
	Name       string      `json:"name" yaml:"name"`
	NameSource string      `json:"name_source" yaml:"name_source"`
	Status     string      `json:"status" yaml:"status"`
	Derived    string      `json:"derived" yaml:"derived"`
	Override   string      `json:"override,omitempty" yaml:"override,omitempty"`
	Uncertain  bool        `json:"uncertain,omitempty" yaml:"uncertain,omitempty"`
	NonSteam   bool        `json:"non_steam,omitempty" yaml:"non_steam,omitempty"`
	Path       string      `json:"path" yaml:"path"`
	Library    string      `json:"library" yaml:"library"`
	Size       int64       `json:"size" yaml:"size"`
	SizeHuman  string      `json:"size_human" yaml:"size_human"`
	ModTime    time.Time   `json:"mod_time" yaml:"mod_time"`
	Duplicates []string    `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	InstallDir string      `json:"install_dir,omitempty" yaml:"install_dir,omitempty"`
	State      string      `json:"install_state,omitempty" yaml:"install_state,omitempty"`
	CoverPath  string      `json:"cover_path,omitempty" yaml:"cover_path,omitempty"`
	Retry      bool        `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// metaView summarises the scan in the structured formatters.
type metaView struct {
	SteamFound  bool     `json:"steam_found" yaml:"steam_found"`
	Libraries   []string `json:"libraries" yaml:"libraries"`
	Shown       int      `json:"shown" yaml:"shown"`
	Total       int      `json:"total" yaml:"total"`
	Installed   int      `json:"installed" yaml:"installed"`
	Orphaned    int      `json:"orphaned" yaml:"orphaned"`
	Marked      int      `json:"marked" yaml:"marked"`
	TotalSize   int64    `json:"total_size" yaml:"total_size"`
	Elapsed     string   `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
	ScannedAt   string   `json:"scanned_at,omitempty" yaml:"scanned_at,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Interrupted bool     `json:"interrupted" yaml:"interrupted"`
}

// document is the full structured output.
type document struct {
	Entries []entryView `json:"entries" yaml:"entries"`
	Meta    metaView    `json:"meta" yaml:"meta"`
}

func newEntryView(e types.ReconciledEntry) entryView {
	v := entryView{
		AppID:      e.AppID,
		Name:       e.Name,
		NameSource: string(e.NameSource),
		Status:     string(e.Status),
		Derived:    string(e.Derived),
		Override:   string(e.Override),
		Uncertain:  e.Uncertain,
		NonSteam:   e.NonSteam,
		Path:       e.Prefix.Path,
		Library:    e.Prefix.Library,
		Size:       e.Prefix.Size,
		SizeHuman:  types.FormatSize(e.Prefix.Size),
		ModTime:    e.Prefix.ModTime,
		CoverPath:  e.CoverPath,
		Retry:      e.Retry,
	}
	for _, d := range e.Duplicates {
		v.Duplicates = append(v.Duplicates, d.Path)
	}
	if e.Install != nil {
		v.InstallDir = e.Install.InstallDir
		v.State = string(e.Install.State)
	}
	return v
}

func buildDocument(r *Result) document {
	entries := make([]entryView, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = newEntryView(e)
	}

	meta := metaView{
		SteamFound:  r.SteamFound,
		Libraries:   make([]string, len(r.Libraries)),
		Shown:       len(r.Entries),
		Total:       r.Total,
		Installed:   r.Count(types.StatusInstalled),
		Orphaned:    r.Count(types.StatusOrphaned),
		Marked:      r.Count(types.StatusManuallyMarked),
		TotalSize:   r.TotalSize(),
		Elapsed:     formatDurationString(r.Elapsed),
		Interrupted: r.Interrupted,
	}
	for i, lib := range r.Libraries {
		meta.Libraries[i] = lib.Path
	}
	if !r.ScannedAt.IsZero() {
		meta.ScannedAt = r.ScannedAt.Format(time.RFC3339)
	}
	for _, d := range r.Diagnostics {
		meta.Diagnostics = append(meta.Diagnostics, d.String())
	}

	return document{Entries: entries, Meta: meta}
}

// formatDurationString formats a duration as a string for structured output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// statusLabel renders an entry's status for tables. Manual marks show the
// asserted value, and uncertain install states get a trailing "?".
func statusLabel(e types.ReconciledEntry) string {
	var s string
	switch e.Status {
	case types.StatusManuallyMarked:
		s = "marked:" + string(e.Override)
	default:
		s = string(e.Status)
	}
	if e.Uncertain {
		s += "?"
	}
	return s
}

// flagsLabel lists secondary markers for an entry.
func flagsLabel(e types.ReconciledEntry) string {
	var flags []string
	if e.NonSteam {
		flags = append(flags, "non-steam")
	}
	if e.HasDuplicates() {
		flags = append(flags, "dup")
	}
	if e.Retry {
		flags = append(flags, "retry")
	}
	return strings.Join(flags, ",")
}
