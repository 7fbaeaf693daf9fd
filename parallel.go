package dieselcmd

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RecordFunc records into b on behalf of worker. b is in the Initial state
// and must be Executable when the function returns without error.
type RecordFunc func(ctx context.Context, worker int, b CommandBuffer) error

// RecordConcurrently records one buffer per pool, each on its own goroutine.
// Worker i allocates its buffer from pools[i], so no pool is shared between
// goroutines and every pool may appear only once. The first error cancels
// ctx for the remaining workers; all buffers are then freed again.
func RecordConcurrently(ctx context.Context, pools []*CommandPool, primary bool, fn RecordFunc) ([]CommandBuffer, error) {
	if fn == nil {
		return nil, validationf("RecordConcurrently: nil record function")
	}
	seen := make(map[*CommandPool]struct{}, len(pools))
	for i, p := range pools {
		if err := p.check("RecordConcurrently"); err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			return nil, validationf("RecordConcurrently: pool %d (%s) used by more than one worker", i, p)
		}
		seen[p] = struct{}{}
	}

	bufs := make([]CommandBuffer, len(pools))
	group, gctx := errgroup.WithContext(ctx)
	for i, p := range pools {
		i, p := i, p
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			allocated, err := p.Allocate(1, primary)
			if err != nil {
				return err
			}
			b := allocated[0]
			bufs[i] = b
			if err := fn(gctx, i, b); err != nil {
				return err
			}
			if !b.IsReady() {
				return validationf("RecordConcurrently: worker %d left %s %s", i, b, b.State())
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		for _, b := range bufs {
			if b.pool == nil || b.State() == Freed {
				continue
			}
			if ferr := b.pool.releaseUnsubmitted(b); ferr != nil {
				b.pool.ctx.cfg.WarnLog.Printf("RecordConcurrently: releasing %s: %v", b, ferr)
			}
		}
		return nil, err
	}
	return bufs, nil
}
