package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

func jpegBytes() []byte {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	data = append(data, bytes.Repeat([]byte{0x42}, 64)...)
	return append(data, 0xFF, 0xD9)
}

func pngBytes() []byte {
	data := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	data = append(data, 0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R')
	data = append(data, bytes.Repeat([]byte{0x01}, 64)...)
	return append(data, 0x00, 0x00, 0x00, 0x00, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82)
}

func webpBytes() []byte {
	body := append([]byte("WEBPVP8 "), bytes.Repeat([]byte{0x07}, 64)...)
	data := []byte("RIFF")
	data = binary.LittleEndian.AppendUint32(data, uint32(len(body)))
	return append(data, body...)
}

// fakeSteam serves appdetails and CDN covers for the apps it knows.
type fakeSteam struct {
	*httptest.Server
	apps      map[types.AppID]string
	covers    map[types.AppID][]byte
	hold      chan struct{}
	apiHits   atomic.Int64
	coverHits atomic.Int64
}

func newFakeSteam(t *testing.T) *fakeSteam {
	t.Helper()
	f := &fakeSteam{
		apps:   map[types.AppID]string{},
		covers: map[types.AppID][]byte{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		f.apiHits.Add(1)
		if f.hold != nil {
			<-f.hold
		}
		raw := r.URL.Query().Get("appids")
		id, err := types.ParseAppID(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		entry := map[string]any{"success": false}
		if name, ok := f.apps[id]; ok {
			entry = map[string]any{
				"success": true,
				"data":    map[string]any{"name": name, "header_image": f.URL + "/header/" + raw + ".jpg"},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{raw: entry})
	})
	mux.HandleFunc("/cdn/", func(w http.ResponseWriter, r *http.Request) {
		f.coverHits.Add(1)
		raw := strings.Split(strings.TrimPrefix(r.URL.Path, "/cdn/"), "/")[0]
		id, err := types.ParseAppID(raw)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data, ok := f.covers[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/header/", http.NotFound)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSteam) source() *SteamStore {
	s := NewSteamStore(f.Client(), "english", "")
	s.BaseURL = f.URL
	s.CDNURL = f.URL + "/cdn"
	return s
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "games.json"))
	require.NoError(t, err)
	return s
}

func newTestResolver(t *testing.T, st *store.Store, covers *CoverCache, sources ...Source) *Resolver {
	t.Helper()
	return NewResolver(ResolverOptions{
		Store:   st,
		Covers:  covers,
		Sources: sources,
		Client:  http.DefaultClient,
	})
}
