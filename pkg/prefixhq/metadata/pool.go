package metadata

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// DefaultConcurrency keeps the request rate below the store API's limits.
const DefaultConcurrency = 4

// Pool runs resolves on a bounded number of workers.
type Pool struct {
	resolver    *Resolver
	concurrency int64
}

// NewPool creates a pool. A non-positive concurrency uses DefaultConcurrency.
func NewPool(r *Resolver, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pool{resolver: r, concurrency: int64(concurrency)}
}

// Run resolves every AppID in ids and sends one update per distinct AppID.
// The returned channel is closed when all resolves have finished or ctx is
// cancelled; after cancellation no further updates are sent.
func (p *Pool) Run(ctx context.Context, ids []types.AppID) <-chan types.EntryUpdate {
	out := make(chan types.EntryUpdate, len(ids))
	sem := semaphore.NewWeighted(p.concurrency)

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		seen := make(map[types.AppID]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Go(func() {
				defer sem.Release(1)
				res := p.resolver.Resolve(ctx, id)
				if ctx.Err() != nil {
					return
				}
				out <- res.Update()
			})
		}
		wg.Wait()
	}()

	return out
}
