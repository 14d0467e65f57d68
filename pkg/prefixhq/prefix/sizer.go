package prefix

import (
	"context"
	"errors"
	"io/fs"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// DefaultSizeWorkers is the number of prefixes measured concurrently.
const DefaultSizeWorkers = 4

// Sizer measures prefix disk usage with fastwalk. Symlinks are not
// followed, and hard-linked files are counted once per walk.
type Sizer struct {
	workers int
}

// NewSizer creates a sizer measuring up to workers prefixes at once.
func NewSizer(workers int) *Sizer {
	if workers <= 0 {
		workers = DefaultSizeWorkers
	}
	return &Sizer{workers: workers}
}

// Size returns the number of bytes used by regular files under path.
// Unreadable entries are skipped.
func (s *Sizer) Size(ctx context.Context, path string) (int64, error) {
	var (
		total atomic.Int64
		mu    sync.Mutex
		seen  = make(map[fileID]struct{})
	)

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: max(1, runtime.NumCPU()/s.workers),
	}

	err := fastwalk.Walk(&conf, path, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if id, ok := hardLinkID(info); ok {
			mu.Lock()
			_, dup := seen[id]
			seen[id] = struct{}{}
			mu.Unlock()
			if dup {
				return nil
			}
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return total.Load(), err
	}
	return total.Load(), nil
}

// Fill sets Size on every record in place. Measurement failures leave the
// size at -1; only cancellation is returned.
func (s *Sizer) Fill(ctx context.Context, records []types.PrefixRecord) error {
	logger := logging.Get("prefix")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			size, err := s.Size(ctx, rec.Path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("prefix size incomplete", "path", rec.Path, "error", err)
				return nil
			}
			rec.Size = size
			return nil
		})
	}
	return g.Wait()
}
