package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/store"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// maxCoverBytes bounds a single cover download.
const maxCoverBytes = 16 << 20

// Result is the outcome of resolving one AppID.
type Result struct {
	AppID     types.AppID
	Name      string
	CoverPath string

	// Fetched is true when this call (or the fetch it joined) hit the network.
	Fetched bool

	// Partial is true when the network was needed but failed; the AppID is
	// flagged for retry in the store.
	Partial bool
	Err     error
}

// Update converts the result into the value published to subscribers.
func (r Result) Update() types.EntryUpdate {
	u := types.EntryUpdate{
		AppID:     r.AppID,
		Name:      r.Name,
		CoverPath: r.CoverPath,
		Partial:   r.Partial,
	}
	if r.Err != nil {
		u.Err = r.Err.Error()
	}
	return u
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Store  *store.Store
	Covers *CoverCache

	// Sources are consulted in order. The first non-empty name wins; cover
	// URLs from every source are tried in order.
	Sources []Source

	// Client downloads cover images.
	Client *http.Client

	// TTL is how long a successful fetch stays fresh. Zero means forever.
	TTL time.Duration

	// Offline disables network access; resolves use local data only.
	Offline bool

	Now func() time.Time
}

// Resolver answers resolve(AppID) -> {name, cover}. At most one network
// fetch per AppID is in flight at a time; concurrent callers share it.
type Resolver struct {
	store   *store.Store
	covers  *CoverCache
	sources []Source
	client  *http.Client
	ttl     time.Duration
	offline bool
	now     func() time.Time
	logger  *logging.Logger

	group   singleflight.Group
	fetches atomic.Int64
}

// NewResolver creates a resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	return &Resolver{
		store:   opts.Store,
		covers:  opts.Covers,
		sources: opts.Sources,
		client:  client,
		ttl:     opts.TTL,
		offline: opts.Offline || len(opts.Sources) == 0,
		now:     now,
		logger:  logging.Get("metadata"),
	}
}

// Fetches returns the number of network fetches performed.
func (r *Resolver) Fetches() int64 {
	return r.fetches.Load()
}

// Resolve returns the name and cover for id, fetching them if the stored
// metadata is missing, stale or invalidated. It never returns an error
// for network problems; those are reported through Result.Partial.
func (r *Resolver) Resolve(ctx context.Context, id types.AppID) Result {
	if res, ok := r.local(id); ok || r.offline {
		return res
	}

	v, err, _ := r.group.Do(id.String(), func() (any, error) {
		// A flight that finished between the check above and this call
		// has already stored what we need.
		if res, ok := r.local(id); ok {
			return res, nil
		}
		return r.fetch(ctx, id), nil
	})
	if err != nil {
		return Result{AppID: id, Err: err}
	}
	return v.(Result)
}

// NeedsFetch reports whether resolving id would go to the network because
// its stored metadata is missing, stale, invalidated or marked for retry.
func (r *Resolver) NeedsFetch(id types.AppID) bool {
	if r.offline {
		return false
	}
	_, ok := r.local(id)
	return !ok
}

// local returns what is known without the network, and whether that is
// enough to skip a fetch.
func (r *Resolver) local(id types.AppID) (Result, bool) {
	rec, _ := r.store.Get(id)
	res := Result{AppID: id, Name: rec.CachedName, CoverPath: r.covers.Find(id)}

	switch {
	case id.IsNonSteam():
		// Shortcut AppIDs are local to this machine; no source knows them.
		return res, true
	case r.fresh(rec) && (res.CoverPath != "" || rec.CachedCoverPath == ""):
		// A fresh record whose cover file went missing or was left
		// truncated is refetched; one that never had a cover is not.
		return res, true
	case !rec.Invalidated && rec.CachedName != "" && r.covers.Override(id) != "":
		return res, true
	}
	return res, false
}

// fresh reports whether rec holds a successful fetch still inside the TTL.
func (r *Resolver) fresh(rec store.Record) bool {
	if rec.LastFetchTime.IsZero() || rec.Invalidated || rec.Retry {
		return false
	}
	return r.ttl <= 0 || r.now().Sub(rec.LastFetchTime) < r.ttl
}

// fetch queries the sources, downloads a cover and persists the outcome.
func (r *Resolver) fetch(ctx context.Context, id types.AppID) Result {
	r.fetches.Add(1)
	start := r.now()

	var (
		name       string
		urls       []string
		networkErr error
		answered   bool
	)
	for _, src := range r.sources {
		md, err := src.Lookup(ctx, id)
		switch {
		case err == nil:
			answered = true
			if name == "" {
				name = md.Name
			}
			urls = append(urls, md.CoverURLs...)
		case errors.Is(err, types.ErrNotFound):
			answered = true
			r.logger.Debug("source has no metadata", "source", src.Name(), "appid", id)
		case errors.Is(err, types.ErrNetwork) || ctx.Err() != nil:
			networkErr = err
			r.logger.Warn("metadata fetch failed", "source", src.Name(), "appid", id, "error", err)
		default:
			r.logger.Debug("metadata source error", "source", src.Name(), "appid", id, "error", err)
		}
	}

	coverPath := r.covers.Override(id)
	if coverPath == "" {
		var err error
		coverPath, err = r.downloadCover(ctx, id, urls)
		if err != nil {
			networkErr = errors.Join(networkErr, err)
		}
	}
	if coverPath == "" {
		coverPath = r.covers.Cached(id)
	}

	// A cancelled fetch is abandoned without touching the store.
	if ctx.Err() != nil {
		rec, _ := r.store.Get(id)
		return Result{AppID: id, Name: rec.CachedName, CoverPath: coverPath, Fetched: true, Partial: true, Err: ctx.Err()}
	}

	if networkErr != nil && (!answered || coverPath == "") {
		if name != "" {
			if err := r.store.Update(id, func(rec *store.Record) { rec.CachedName = name }); err != nil {
				r.logger.Error("failed to store fetched name", "appid", id, "error", err)
			}
		}
		if err := r.store.RecordFailure(id, networkErr); err != nil {
			r.logger.Error("failed to record fetch failure", "appid", id, "error", err)
		}
		rec, _ := r.store.Get(id)
		return Result{AppID: id, Name: rec.CachedName, CoverPath: coverPath, Fetched: true, Partial: true, Err: networkErr}
	}

	if err := r.store.RecordFetch(id, name, coverPath, r.now()); err != nil {
		r.logger.Error("failed to record fetch", "appid", id, "error", err)
	}
	rec, _ := r.store.Get(id)
	r.logger.Debug("metadata fetched", "appid", id, "name", rec.CachedName,
		"cover", coverPath != "", "duration", r.now().Sub(start))
	return Result{AppID: id, Name: rec.CachedName, CoverPath: coverPath, Fetched: true}
}

// downloadCover tries each URL until one yields a complete image. It
// returns a network error only when no URL succeeded and at least one
// failed for a retryable reason.
func (r *Resolver) downloadCover(ctx context.Context, id types.AppID, urls []string) (string, error) {
	var networkErr error
	for _, u := range urls {
		data, err := r.download(ctx, u)
		if err != nil {
			if errors.Is(err, types.ErrNetwork) {
				networkErr = err
			}
			r.logger.Debug("cover download failed", "appid", id, "url", u, "error", err)
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		path, err := r.covers.Save(id, data)
		if err != nil {
			r.logger.Debug("cover rejected", "appid", id, "url", u, "error", err)
			continue
		}
		return path, nil
	}
	return "", networkErr
}

func (r *Resolver) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	// The whole image is held in memory so nothing reaches the cache
	// directory until it is known to be complete.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading cover: %w", types.ErrNetwork, err)
	}
	if len(data) > maxCoverBytes {
		return nil, fmt.Errorf("cover exceeds %d bytes", maxCoverBytes)
	}
	return data, nil
}
