// Package reconcile joins install records and prefix records into one
// entry per AppID, resolving cross-library duplicates and applying the
// user's persisted overrides.
//
// Reconciliation is a pure function of its input: the same records always
// produce the same entries regardless of scan order.
package reconcile

import (
	"sort"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Input holds everything a reconciliation pass needs.
type Input struct {
	// Installs lists every install record read, including the same AppID
	// from several libraries.
	Installs []types.InstallRecord

	Prefixes []types.PrefixRecord

	// Records is a snapshot of the persistent store.
	Records map[types.AppID]store.Record

	// Ignore lists AppIDs that are never surfaced (Steam runtimes,
	// redistributables).
	Ignore map[types.AppID]bool
}

// Result is the reconciled view.
type Result struct {
	// Entries holds one entry per prefixed AppID, sorted by AppID.
	Entries []types.ReconciledEntry

	// Tracked holds installed AppIDs without a prefix, sorted by AppID.
	Tracked []types.InstallRecord
}

// Reconcile produces the reconciled entry set.
func Reconcile(in Input) *Result {
	installs := make(map[types.AppID][]types.InstallRecord)
	for _, rec := range in.Installs {
		installs[rec.AppID] = append(installs[rec.AppID], rec)
	}
	prefixes := make(map[types.AppID][]types.PrefixRecord)
	for _, p := range in.Prefixes {
		prefixes[p.AppID] = append(prefixes[p.AppID], p)
	}

	res := &Result{}
	for id, group := range prefixes {
		if in.Ignore[id] {
			continue
		}
		var install *types.InstallRecord
		if recs := installs[id]; len(recs) > 0 {
			chosen := ChooseInstall(recs)
			install = &chosen
		}
		res.Entries = append(res.Entries, buildEntry(id, group, install, in.Records[id]))
	}

	for id, recs := range installs {
		if in.Ignore[id] || len(prefixes[id]) > 0 {
			continue
		}
		res.Tracked = append(res.Tracked, ChooseInstall(recs))
	}

	sort.Slice(res.Entries, func(i, j int) bool { return res.Entries[i].AppID < res.Entries[j].AppID })
	sort.Slice(res.Tracked, func(i, j int) bool { return res.Tracked[i].AppID < res.Tracked[j].AppID })
	return res
}

func buildEntry(id types.AppID, group []types.PrefixRecord, install *types.InstallRecord, rec store.Record) types.ReconciledEntry {
	primary, dups := ChoosePrefix(group)

	derived := types.StatusOrphaned
	if install != nil && install.Complete() {
		derived = types.StatusInstalled
	}

	e := types.ReconciledEntry{
		AppID:      id,
		Status:     derived,
		Derived:    derived,
		Uncertain:  install != nil && install.State.Uncertain(),
		NonSteam:   id.IsNonSteam(),
		Prefix:     primary,
		Duplicates: dups,
		Install:    install,
		CoverPath:  rec.CachedCoverPath,
		Retry:      rec.Retry,
	}
	if rec.StatusOverride != "" {
		e.Status = types.StatusManuallyMarked
		e.Override = rec.StatusOverride
	}
	e.Name, e.NameSource = ResolveName(id, rec, install)
	e.Libraries = libraries(primary, dups, install)
	return e
}

// ResolveName applies the display name order: custom name, manifest name,
// cached metadata name, then the AppID itself.
func ResolveName(id types.AppID, rec store.Record, install *types.InstallRecord) (string, types.NameSource) {
	switch {
	case rec.CustomName != "":
		return rec.CustomName, types.NameCustom
	case install != nil && install.Name != "":
		return install.Name, types.NameManifest
	case rec.CachedName != "":
		return rec.CachedName, types.NameCached
	default:
		return id.String(), types.NameAppID
	}
}

// ChooseInstall collapses install records for one AppID: install-complete
// beats incomplete, a certain state beats an uncertain one, then the newest
// manifest wins, then the earliest library in discovery order.
func ChooseInstall(recs []types.InstallRecord) types.InstallRecord {
	best := recs[0]
	for _, r := range recs[1:] {
		if betterInstall(r, best) {
			best = r
		}
	}
	return best
}

func betterInstall(a, b types.InstallRecord) bool {
	if a.Complete() != b.Complete() {
		return a.Complete()
	}
	if a.State.Uncertain() != b.State.Uncertain() {
		return !a.State.Uncertain()
	}
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.LibraryOrder < b.LibraryOrder
}

// ChoosePrefix picks the most recently modified prefix directory, breaking
// ties by discovery order, and returns the others as duplicates.
func ChoosePrefix(group []types.PrefixRecord) (types.PrefixRecord, []types.PrefixRecord) {
	sorted := make([]types.PrefixRecord, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.After(sorted[j].ModTime)
		}
		return sorted[i].LibraryOrder < sorted[j].LibraryOrder
	})
	if len(sorted) == 1 {
		return sorted[0], nil
	}
	return sorted[0], sorted[1:]
}

// libraries lists the distinct libraries an entry was seen in, primary
// prefix first.
func libraries(primary types.PrefixRecord, dups []types.PrefixRecord, install *types.InstallRecord) []string {
	seen := map[string]bool{primary.Library: true}
	out := []string{primary.Library}
	add := func(lib string) {
		if lib != "" && !seen[lib] {
			seen[lib] = true
			out = append(out, lib)
		}
	}
	if install != nil {
		add(install.Library)
	}
	for _, d := range dups {
		add(d.Library)
	}
	return out
}
