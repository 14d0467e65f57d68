// Package metadata resolves display names and cover art for AppIDs.
//
// Resolution consults the persistent store first, then user-supplied cover
// overrides, and only then the network. Concurrent requests for the same
// AppID share one fetch, and failures degrade to placeholder data with a
// retry flag rather than blocking the scan.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Default endpoints.
const (
	DefaultStoreURL       = "https://store.steampowered.com"
	DefaultCDNURL         = "https://shared.cloudflare.steamstatic.com/store_item_assets/steam/apps"
	DefaultSteamGridDBURL = "https://www.steamgriddb.com"
	DefaultTimeout        = 10 * time.Second
)

// maxJSONBody bounds metadata responses; appdetails for large titles is
// well under a megabyte.
const maxJSONBody = 4 << 20

// UserAgent is sent with every request.
var UserAgent = "prefixhq"

// Metadata is what a source knows about an AppID.
type Metadata struct {
	Name string

	// CoverURLs are candidate images, best first.
	CoverURLs []string
}

// Source looks up metadata for an AppID. Implementations return an error
// wrapping types.ErrNetwork for transport failures and types.ErrNotFound
// when the source has nothing for the AppID.
type Source interface {
	Name() string
	Lookup(ctx context.Context, id types.AppID) (Metadata, error)
}

// NewHTTPClient returns the client used for metadata and cover requests.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes a JSON body into v.
func getJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(v); err != nil {
		// A truncated body is a transport problem worth retrying.
		return fmt.Errorf("%w: decoding %s: %w", types.ErrNetwork, req.URL.Host, err)
	}
	return nil
}

// checkStatus maps HTTP status codes onto the error taxonomy. Rate limits
// and server errors are retryable; 404 and other client errors are not.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, resp.Request.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %s", types.ErrNetwork, resp.Request.URL.Host, resp.Status)
	default:
		return fmt.Errorf("%s returned %s", resp.Request.URL.Host, resp.Status)
	}
}

// SteamStore queries the Steam store appdetails endpoint.
type SteamStore struct {
	Client   *http.Client
	BaseURL  string
	CDNURL   string
	Language string
	Country  string
}

// NewSteamStore creates a store source with default endpoints.
func NewSteamStore(client *http.Client, language, country string) *SteamStore {
	return &SteamStore{
		Client:   client,
		BaseURL:  DefaultStoreURL,
		CDNURL:   DefaultCDNURL,
		Language: language,
		Country:  country,
	}
}

// Name implements Source.
func (s *SteamStore) Name() string { return "steam" }

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Name        string `json:"name"`
		HeaderImage string `json:"header_image"`
	} `json:"data"`
}

// Lookup implements Source.
func (s *SteamStore) Lookup(ctx context.Context, id types.AppID) (Metadata, error) {
	q := url.Values{}
	q.Set("appids", id.String())
	if s.Language != "" {
		q.Set("l", s.Language)
	}
	if s.Country != "" {
		q.Set("cc", s.Country)
	}
	// Only the name and header image are needed.
	q.Set("filters", "basic")

	endpoint := strings.TrimRight(s.BaseURL, "/") + "/api/appdetails?" + q.Encode()

	var body map[string]appDetails
	if err := getJSON(ctx, s.Client, endpoint, nil, &body); err != nil {
		return Metadata{}, err
	}

	details, ok := body[id.String()]
	if !ok || !details.Success {
		return Metadata{}, fmt.Errorf("%w: app %s not in store", types.ErrNotFound, id)
	}

	md := Metadata{Name: strings.TrimSpace(details.Data.Name)}
	if s.CDNURL != "" {
		md.CoverURLs = append(md.CoverURLs, fmt.Sprintf("%s/%s/library_600x900.jpg", strings.TrimRight(s.CDNURL, "/"), id))
	}
	if details.Data.HeaderImage != "" {
		md.CoverURLs = append(md.CoverURLs, details.Data.HeaderImage)
	}
	return md, nil
}

// SteamGridDB queries SteamGridDB for vertical grid covers. It supplies
// covers only; names come from the Steam store.
type SteamGridDB struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
}

// NewSteamGridDB creates a SteamGridDB source.
func NewSteamGridDB(client *http.Client, apiKey string) *SteamGridDB {
	return &SteamGridDB{Client: client, BaseURL: DefaultSteamGridDBURL, APIKey: apiKey}
}

// Name implements Source.
func (g *SteamGridDB) Name() string { return "steamgriddb" }

type gridResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Lookup implements Source.
func (g *SteamGridDB) Lookup(ctx context.Context, id types.AppID) (Metadata, error) {
	if g.APIKey == "" {
		return Metadata{}, errors.New("steamgriddb api key not configured")
	}
	endpoint := fmt.Sprintf("%s/api/v2/grids/steam/%s?dimensions=600x900", strings.TrimRight(g.BaseURL, "/"), id)
	header := http.Header{"Authorization": []string{"Bearer " + g.APIKey}}

	var body gridResponse
	if err := getJSON(ctx, g.Client, endpoint, header, &body); err != nil {
		return Metadata{}, err
	}
	if !body.Success || len(body.Data) == 0 {
		return Metadata{}, fmt.Errorf("%w: no grids for app %s", types.ErrNotFound, id)
	}

	var md Metadata
	for _, d := range body.Data {
		if d.URL != "" {
			md.CoverURLs = append(md.CoverURLs, d.URL)
		}
	}
	return md, nil
}
