package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/broadcaster"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/cache"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/journal"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/library"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/metadata"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// fixture is a Steam install at /steam with a second library at /steam2:
//
//	/steam:  appmanifest_440.acf (installed), compatdata/440, compatdata/228980
//	/steam2: compatdata/440 (stale), compatdata/999999, compatdata/pfx
type fixture struct {
	steam, steam2 string
	storePath     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		steam:     mkdir(t, filepath.Join(base, "steam")),
		steam2:    mkdir(t, filepath.Join(base, "steam2")),
		storePath: filepath.Join(base, "config", "games.json"),
	}

	folders := fmt.Sprintf("\"libraryfolders\"\n{\n\t\"0\"\n\t{\n\t\t\"path\"\t\t%q\n\t}\n\t\"1\"\n\t{\n\t\t\"path\"\t\t%q\n\t}\n}\n", f.steam, f.steam2)
	writeFile(t, filepath.Join(f.steam, "steamapps", "libraryfolders.vdf"), folders)
	writeFile(t, filepath.Join(f.steam, "steamapps", "appmanifest_440.acf"), manifest(440, "Team Fortress 2", 4))

	mkPrefix(t, f.steam, "440")
	mkPrefix(t, f.steam, "228980")
	stale := mkPrefix(t, f.steam2, "440")
	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	mkPrefix(t, f.steam2, "999999")
	mkPrefix(t, f.steam2, "pfx")
	return f
}

func mkPrefix(t *testing.T, lib, name string) string {
	t.Helper()
	dir := filepath.Join(lib, "steamapps", "compatdata", name)
	mkdir(t, filepath.Join(dir, "pfx"))
	return dir
}

func (f *fixture) discovery() library.Options {
	return library.Options{Candidates: []library.Candidate{{Path: f.steam, Origin: types.OriginNative}}}
}

func (f *fixture) openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(f.storePath)
	require.NoError(t, err)
	return s
}

func mkdir(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func manifest(id types.AppID, name string, flags int) string {
	return fmt.Sprintf("\"AppState\"\n{\n\t\"appid\"\t\t\"%d\"\n\t\"name\"\t\t\"%s\"\n\t\"StateFlags\"\t\t\"%d\"\n\t\"installdir\"\t\t\"%s\"\n}\n", id, name, flags, name)
}

func newEngine(t *testing.T, f *fixture, opts Options) *Engine {
	t.Helper()
	opts.Discovery = f.discovery()
	if opts.Store == nil {
		opts.Store = f.openStore(t)
	}
	if opts.Ignore == nil {
		opts.Ignore = []types.AppID{0, 228980}
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func jpeg() []byte {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	data = append(data, []byte(strings.Repeat("x", 64))...)
	return append(data, 0xFF, 0xD9)
}

// steamServer knows app 999999 and serves its cover.
func steamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("appids")
		entry := map[string]any{"success": false}
		if id == "999999" {
			entry = map[string]any{"success": true, "data": map[string]any{"name": "Lost Game"}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{id: entry})
	})
	mux.HandleFunc("/cdn/999999/library_600x900.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(jpeg())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(t *testing.T, st *store.Store, covers *metadata.CoverCache, baseURL string) *metadata.Resolver {
	t.Helper()
	src := metadata.NewSteamStore(http.DefaultClient, "english", "")
	src.BaseURL = baseURL
	src.CDNURL = baseURL + "/cdn"
	return metadata.NewResolver(metadata.ResolverOptions{
		Store:   st,
		Covers:  covers,
		Sources: []metadata.Source{src},
		Client:  http.DefaultClient,
	})
}

func drain(ch <-chan types.EntryUpdate) []types.EntryUpdate {
	var out []types.EntryUpdate
	for u := range ch {
		out = append(out, u)
	}
	return out
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestScanReconcilesAcrossLibraries(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{Parallel: true})

	res, err := e.Scan(context.Background())
	require.NoError(t, err)

	assert.True(t, res.SteamFound)
	require.Len(t, res.Libraries, 2)
	require.Len(t, res.Entries, 2, "228980 is ignored and pfx is not an AppID")

	tf2, ok := res.Entry(440)
	require.True(t, ok)
	assert.Equal(t, types.StatusInstalled, tf2.Status)
	assert.Equal(t, "Team Fortress 2", tf2.Name)
	assert.Equal(t, filepath.Join(f.steam, "steamapps", "compatdata", "440"), tf2.PrefixPath())
	require.Len(t, tf2.Duplicates, 1)
	assert.Equal(t, filepath.Join(f.steam2, "steamapps", "compatdata", "440"), tf2.Duplicates[0].Path)

	lost, ok := res.Entry(999999)
	require.True(t, ok)
	assert.Equal(t, types.StatusOrphaned, lost.Status)
	assert.Equal(t, "999999", lost.Name)
	assert.Equal(t, types.NameAppID, lost.NameSource)
	assert.Equal(t, int64(-1), lost.Prefix.Size)

	assert.Equal(t, res.Entries, e.Entries())

	// Manifest names are cached for when the game is uninstalled.
	rec, _ := e.opts.Store.Get(440)
	assert.Equal(t, "Team Fortress 2", rec.CachedName)
}

func TestScanSequentialMatchesParallel(t *testing.T) {
	f := newFixture(t)
	seq, err := newEngine(t, f, Options{}).Scan(context.Background())
	require.NoError(t, err)
	par, err := newEngine(t, f, Options{Parallel: true}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq.Entries, par.Entries)
}

func TestScanUninstalledGameKeepsName(t *testing.T) {
	f := newFixture(t)
	st := f.openStore(t)
	_, err := newEngine(t, f, Options{Store: st}).Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.steam, "steamapps", "appmanifest_440.acf")))
	res, err := newEngine(t, f, Options{Store: st}).Scan(context.Background())
	require.NoError(t, err)

	tf2, _ := res.Entry(440)
	assert.Equal(t, types.StatusOrphaned, tf2.Status)
	assert.Equal(t, "Team Fortress 2", tf2.Name)
	assert.Equal(t, types.NameCached, tf2.NameSource)
}

func TestScanSteamNotFound(t *testing.T) {
	e, err := New(Options{
		Discovery: library.Options{Candidates: []library.Candidate{{Path: filepath.Join(t.TempDir(), "none"), Origin: types.OriginNative}}},
		Store:     newFixture(t).openStore(t),
	})
	require.NoError(t, err)

	res, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.SteamFound)
	assert.Empty(t, res.Entries)
}

func TestScanCancelled(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{Parallel: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, e.Result())
}

func TestScanWithCacheAndSizes(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.steam, "steamapps", "compatdata", "440", "pfx", "user.reg"), strings.Repeat("r", 4096))

	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	e := newEngine(t, f, Options{Cache: c, ComputeSizes: true, SizeWorkers: 2})
	for range 2 {
		res, err := e.Scan(context.Background())
		require.NoError(t, err)
		tf2, _ := res.Entry(440)
		assert.GreaterOrEqual(t, tf2.Prefix.Size, int64(4096))
	}

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.GreaterOrEqual(t, stats.Hits, 1)
}

func TestScanReportsCorruptStore(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.storePath, "{not json")

	res, err := newEngine(t, f, Options{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2, "a corrupt store never aborts the scan")

	var kinds []types.DiagnosticKind
	for _, d := range res.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, types.KindStore)
}

func TestScanBrokenManifestIsDiagnostic(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.steam2, "steamapps", "appmanifest_570.acf"), "\"AppState\"\n{\n\t\"name\"\t\"Do")

	res, err := newEngine(t, f, Options{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, types.KindParse, res.Diagnostics[0].Kind)
}

func TestEnrichUpdatesPublishedEntries(t *testing.T) {
	f := newFixture(t)
	srv := steamServer(t)
	st := f.openStore(t)
	covers := metadata.NewCoverCache(t.TempDir(), "")

	e := newEngine(t, f, Options{
		Store:       st,
		Covers:      covers,
		Resolver:    newResolver(t, st, covers, srv.URL),
		Concurrency: 2,
	})
	sub := e.Subscribe(999999)

	res, err := e.Scan(context.Background())
	require.NoError(t, err)

	// Entries are usable before any fetch completes.
	lost, _ := res.Entry(999999)
	assert.Equal(t, "999999", lost.Name)

	updates := drain(e.Enrich(context.Background(), res))
	assert.Len(t, updates, 2)

	lost, ok := e.Entry(999999)
	require.True(t, ok)
	assert.Equal(t, "Lost Game", lost.Name)
	assert.Equal(t, types.NameCached, lost.NameSource)
	assert.Equal(t, filepath.Join(covers.Dir(), "999999.jpg"), lost.CoverPath)
	assert.False(t, lost.Retry)

	tf2, _ := e.Entry(440)
	assert.Equal(t, "Team Fortress 2", tf2.Name, "manifest names are not replaced")

	var seen []broadcaster.EventType
	for len(sub.Events) > 0 {
		ev := <-sub.Events
		seen = append(seen, ev.Type)
	}
	assert.Equal(t, []broadcaster.EventType{broadcaster.EventScanned, broadcaster.EventEnriched}, seen)

	// A later scan picks the name and cover up from the store.
	res, err = e.Scan(context.Background())
	require.NoError(t, err)
	lost, _ = res.Entry(999999)
	assert.Equal(t, "Lost Game", lost.Name)
	assert.NotEmpty(t, lost.CoverPath)
}

func TestEnrichRefetchesInvalidated(t *testing.T) {
	f := newFixture(t)
	srv := steamServer(t)
	st := f.openStore(t)
	covers := metadata.NewCoverCache(t.TempDir(), "")
	resolver := newResolver(t, st, covers, srv.URL)
	e := newEngine(t, f, Options{Store: st, Covers: covers, Resolver: resolver})

	scanEnrich := func() []types.EntryUpdate {
		t.Helper()
		res, err := e.Scan(context.Background())
		require.NoError(t, err)
		return drain(e.Enrich(context.Background(), res))
	}

	scanEnrich()
	first := resolver.Fetches()
	require.Positive(t, first)

	lost, _ := e.Entry(999999)
	require.Equal(t, "Lost Game", lost.Name)
	require.NotEmpty(t, lost.CoverPath)

	require.NoError(t, e.InvalidateCache(999999))
	updates := scanEnrich()
	assert.Equal(t, first+1, resolver.Fetches())
	assert.Contains(t, updates, types.EntryUpdate{AppID: 999999, Name: "Lost Game", CoverPath: lost.CoverPath})
	rec, _ := st.Get(999999)
	assert.False(t, rec.Invalidated)

	// Nothing is stale now.
	scanEnrich()
	assert.Equal(t, first+1, resolver.Fetches())

	require.NoError(t, e.InvalidateAll())
	scanEnrich()
	assert.Equal(t, 2*first+1, resolver.Fetches())
}

func TestEnrichRefetchesExpired(t *testing.T) {
	f := newFixture(t)
	srv := steamServer(t)
	st := f.openStore(t)
	covers := metadata.NewCoverCache(t.TempDir(), "")

	src := metadata.NewSteamStore(http.DefaultClient, "english", "")
	src.BaseURL = srv.URL
	src.CDNURL = srv.URL + "/cdn"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver := metadata.NewResolver(metadata.ResolverOptions{
		Store:   st,
		Covers:  covers,
		Sources: []metadata.Source{src},
		Client:  http.DefaultClient,
		TTL:     24 * time.Hour,
		Now:     func() time.Time { return now },
	})
	e := newEngine(t, f, Options{Store: st, Covers: covers, Resolver: resolver})

	scanEnrich := func() {
		t.Helper()
		res, err := e.Scan(context.Background())
		require.NoError(t, err)
		drain(e.Enrich(context.Background(), res))
	}

	scanEnrich()
	first := resolver.Fetches()
	require.Positive(t, first)

	now = now.Add(time.Hour)
	scanEnrich()
	assert.Equal(t, first, resolver.Fetches(), "still fresh")

	now = now.Add(24 * time.Hour)
	scanEnrich()
	assert.Equal(t, 2*first, resolver.Fetches(), "expired entries are fetched again")
}

func TestEnrichNetworkUnreachable(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := f.openStore(t)
	covers := metadata.NewCoverCache(t.TempDir(), "")
	e := newEngine(t, f, Options{Store: st, Covers: covers, Resolver: newResolver(t, st, covers, url)})

	res, err := e.Scan(context.Background())
	require.NoError(t, err)
	updates := drain(e.Enrich(context.Background(), res))
	require.Len(t, updates, 2)

	for _, u := range updates {
		assert.True(t, u.Partial)
		assert.Empty(t, u.CoverPath)
	}
	for _, entry := range e.Entries() {
		assert.True(t, entry.Retry)
		assert.Empty(t, entry.CoverPath)
	}

	// The retry flag survives into the next launch.
	res, err = newEngine(t, f, Options{}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	for _, entry := range res.Entries {
		assert.True(t, entry.Retry)
	}
}

func TestEnrichWithoutResolver(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{})
	res, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drain(e.Enrich(context.Background(), res)))
}

func TestOverridePersistsAcrossScans(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{})
	_, err := e.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.SetStatusOverride(440, types.StatusOrphaned))
	tf2, _ := e.Entry(440)
	assert.Equal(t, types.StatusManuallyMarked, tf2.Status)
	assert.Equal(t, types.StatusOrphaned, tf2.Override)
	assert.Equal(t, types.StatusInstalled, tf2.Derived)

	for range 2 {
		res, err := newEngine(t, f, Options{}).Scan(context.Background())
		require.NoError(t, err)
		tf2, _ = res.Entry(440)
		assert.Equal(t, types.StatusManuallyMarked, tf2.Status)
	}

	require.NoError(t, e.ClearStatusOverride(440))
	tf2, _ = e.Entry(440)
	assert.Equal(t, types.StatusInstalled, tf2.Status)

	assert.Error(t, e.SetStatusOverride(440, types.StatusManuallyMarked))
}

func TestMutationsRefreshAndBroadcast(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{})
	_, err := e.Scan(context.Background())
	require.NoError(t, err)

	sub := e.Subscribe()
	require.NoError(t, e.SetCustomName(999999, "My Mod"))

	ev := <-sub.Events
	assert.Equal(t, broadcaster.EventChanged, ev.Type)
	require.NotNil(t, ev.Entry)
	assert.Equal(t, "My Mod", ev.Entry.Name)
	assert.Equal(t, types.NameCustom, ev.Entry.NameSource)

	require.NoError(t, e.InvalidateCache(999999))
	require.NoError(t, e.Forget(999999))
	lost, _ := e.Entry(999999)
	assert.Equal(t, "999999", lost.Name)
	_, ok := e.opts.Store.Get(999999)
	assert.False(t, ok)
}

func TestRemovedEntriesAreBroadcast(t *testing.T) {
	f := newFixture(t)
	e := newEngine(t, f, Options{})
	_, err := e.Scan(context.Background())
	require.NoError(t, err)

	sub := e.Subscribe()
	require.NoError(t, os.RemoveAll(filepath.Join(f.steam2, "steamapps", "compatdata", "999999")))
	_, err = e.Scan(context.Background())
	require.NoError(t, err)

	ev := <-sub.Events
	assert.Equal(t, broadcaster.EventRemoved, ev.Type)
	assert.Equal(t, types.AppID(999999), ev.AppID)
	ev = <-sub.Events
	assert.Equal(t, broadcaster.EventScanned, ev.Type)
	assert.Equal(t, 1, ev.Count)
}

func TestRequestDeletionOnlyJournals(t *testing.T) {
	f := newFixture(t)
	j, err := journal.New(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)

	noJournal := newEngine(t, f, Options{})
	_, err = noJournal.RequestDeletion(440)
	assert.ErrorIs(t, err, ErrNoJournal)

	e := newEngine(t, f, Options{Journal: j})
	_, err = e.RequestDeletion(440)
	assert.ErrorIs(t, err, types.ErrNotFound, "nothing is published before a scan")

	_, err = e.Scan(context.Background())
	require.NoError(t, err)

	entry, err := e.RequestDeletion(440)
	require.NoError(t, err)
	assert.Equal(t, journal.OpDeleteRequest, entry.Operation)
	assert.Equal(t, []string{
		filepath.Join(f.steam, "steamapps", "compatdata", "440"),
		filepath.Join(f.steam2, "steamapps", "compatdata", "440"),
	}, entry.Request.Paths)
	assert.True(t, entry.Request.Installed)

	for _, p := range entry.Request.Paths {
		assert.DirExists(t, p)
	}

	history, err := j.List(0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, journal.OpScan, history[1].Operation)
}
