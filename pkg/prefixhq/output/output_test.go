package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

var scannedAt = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testResult() *Result {
	entries := []types.ReconciledEntry{
		{
			AppID: 440, Name: "Team Fortress 2", NameSource: types.NameManifest,
			Status: types.StatusInstalled, Derived: types.StatusInstalled,
			Prefix:    types.PrefixRecord{AppID: 440, Library: "/steam", Path: "/steam/steamapps/compatdata/440", Size: 1 << 30, ModTime: scannedAt.Add(-time.Hour)},
			Install:   &types.InstallRecord{AppID: 440, InstallDir: "Team Fortress 2", State: types.InstallInstalled},
			Libraries: []string{"/steam"},
		},
		{
			AppID: 999999, Name: "999999", NameSource: types.NameAppID,
			Status: types.StatusOrphaned, Derived: types.StatusOrphaned,
			Prefix:     types.PrefixRecord{AppID: 999999, Library: "/steam2", Path: "/steam2/steamapps/compatdata/999999", Size: 512 << 20, ModTime: scannedAt.Add(-48 * time.Hour)},
			Duplicates: []types.PrefixRecord{{AppID: 999999, Path: "/steam/steamapps/compatdata/999999", Size: -1}},
			Libraries:  []string{"/steam2", "/steam"},
		},
		{
			AppID: 620, Name: "Portal | 2", NameSource: types.NameCustom,
			Status: types.StatusManuallyMarked, Derived: types.StatusOrphaned, Override: types.StatusInstalled,
			Prefix:    types.PrefixRecord{AppID: 620, Library: "/steam", Path: "/steam/steamapps/compatdata/620", Size: -1, ModTime: scannedAt},
			Libraries: []string{"/steam"},
		},
	}
	scan := &types.ScanResult{
		SteamFound: true,
		Libraries:  []types.LibraryRoot{{Path: "/steam"}, {Path: "/steam2", Order: 1}},
		Entries:    append(entries, types.ReconciledEntry{AppID: 10}),
		Diagnostics: []types.Diagnostic{
			{Kind: types.KindParse, Path: "/steam/steamapps/appmanifest_1.acf", Message: "unexpected EOF"},
		},
		Elapsed:   1500 * time.Millisecond,
		ScannedAt: scannedAt,
	}
	return NewResult(scan, entries)
}

func format(t *testing.T, name string, r *Result) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	names := Available()
	for _, want := range []string{"csv", "json", "jsonl", "markdown", "null", "paths", "plain", "pretty", "template", "yaml"} {
		assert.Contains(t, names, want)
	}

	_, err := Get("xml")
	assert.Error(t, err)

	r := NewRegistry()
	r.Register("x", func() Formatter { return &PathsFormatter{} })
	assert.Equal(t, []string{"x"}, r.Available())
}

func TestNewResult(t *testing.T) {
	r := testResult()
	assert.Len(t, r.Entries, 3)
	assert.Equal(t, 4, r.Total)
	assert.True(t, r.SteamFound)
	assert.Equal(t, int64(1<<30+512<<20), r.TotalSize(), "unknown sizes are skipped")
	assert.Equal(t, 1, r.Count(types.StatusManuallyMarked))

	empty := NewResult(nil, nil)
	assert.Zero(t, empty.Total)
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", testResult())

	var doc struct {
		Entries []map[string]any `json:"entries"`
		Meta    map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Entries, 3)

	assert.Equal(t, float64(440), doc.Entries[0]["appid"])
	assert.Equal(t, "installed", doc.Entries[0]["install_state"])
	assert.Equal(t, "1.0 GiB", doc.Entries[0]["size_human"])
	assert.Equal(t, []any{"/steam/steamapps/compatdata/999999"}, doc.Entries[1]["duplicates"])
	assert.Equal(t, "installed", doc.Entries[2]["override"])
	assert.Equal(t, "manually_marked", doc.Entries[2]["status"])

	assert.Equal(t, float64(3), doc.Meta["shown"])
	assert.Equal(t, float64(4), doc.Meta["total"])
	assert.Equal(t, "1.5s", doc.Meta["elapsed"])
	assert.Len(t, doc.Meta["diagnostics"], 1)
}

func TestJSONLFormatter(t *testing.T) {
	out := format(t, "jsonl", testResult())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &v))
		assert.Contains(t, v, "path")
	}
}

func TestYAMLFormatter(t *testing.T) {
	out := format(t, "yaml", testResult())

	var doc document
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Entries, 3)
	assert.Equal(t, "Team Fortress 2", doc.Entries[0].Name)
	assert.Equal(t, []string{"/steam", "/steam2"}, doc.Meta.Libraries)
	assert.Equal(t, 1, doc.Meta.Orphaned)
}

func TestPlainFormatter(t *testing.T) {
	out := format(t, "plain", testResult())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "APPID"))
	assert.Contains(t, lines[1], "Team Fortress 2")
	assert.Contains(t, lines[3], "marked:installed")
	assert.Contains(t, lines[3], "-", "unknown size renders as a dash")
}

func TestCSVFormatter(t *testing.T) {
	out := format(t, "csv", testResult())
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, tableHeader, rows[0])
	assert.Equal(t, []string{"999999", "orphaned", "999999", "536870912",
		"2026-05-30T12:00:00Z", "/steam2/steamapps/compatdata/999999", "dup"}, rows[2])
	assert.Equal(t, "Portal | 2", rows[3][2])
}

func TestMarkdownFormatter(t *testing.T) {
	out := format(t, "markdown", testResult())
	assert.Contains(t, out, `Portal \| 2`)
	assert.Equal(t, 5, strings.Count(out, "\n"))
}

func TestPathsFormatter(t *testing.T) {
	out := format(t, "paths", testResult())
	assert.Equal(t, "/steam/steamapps/compatdata/440\n"+
		"/steam2/steamapps/compatdata/999999\n"+
		"/steam/steamapps/compatdata/999999\n"+
		"/steam/steamapps/compatdata/620\n", out)

	null := format(t, "null", testResult())
	assert.Equal(t, 4, strings.Count(null, "\x00"))
}

func TestTemplateFormatter(t *testing.T) {
	out := format(t, "template", testResult())
	assert.Contains(t, out, "440\tinstalled\tTeam Fortress 2\n")

	f := NewTemplateFormatter(`{{range .Entries}}{{bytes .Prefix.Size}} {{date .Prefix.ModTime "2006-01-02"}}{{"\n"}}{{end}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, testResult()))
	assert.Equal(t, "1.0 GiB 2026-06-01\n512 MiB 2026-05-30\n- 2026-06-01\n", buf.String())

	f.SetTemplate("{{.Missing")
	assert.Error(t, f.Format(&buf, testResult()))
}

func TestPrettyFormatter(t *testing.T) {
	f := &PrettyFormatter{now: func() time.Time { return scannedAt }}
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, testResult()))
	out := buf.String()

	assert.Contains(t, out, "/steam, /steam2")
	assert.Contains(t, out, "4 prefixes in 1.5s")
	assert.Contains(t, out, "Team Fortress 2")
	assert.Contains(t, out, "1 hour ago")
	assert.Contains(t, out, "[dup]")
	assert.Contains(t, out, "1 orphaned")
	assert.Contains(t, out, "Warnings (1):")
	assert.Contains(t, out, "unexpected EOF")
}

func TestPrettyFormatterSteamNotFound(t *testing.T) {
	out := format(t, "pretty", NewResult(&types.ScanResult{}, nil))
	assert.Contains(t, out, "Steam not found")
}

func TestPrettyFormatterEmpty(t *testing.T) {
	r := testResult()
	r.Entries = nil
	out := format(t, "pretty", r)
	assert.Contains(t, out, "No prefixes found matching criteria")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
