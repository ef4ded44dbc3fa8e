package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ygrebnov/imagesource/pool"
)

// dispatcher moves admitted units onto pool workers. It acquires a worker
// before starting the next unit, so a saturated fixed pool leaves units queued
// and Admit starts rejecting once the queue fills. It never closes channels it
// doesn't own and leaves queued units in place on cancellation.
type dispatcher struct {
	units     <-chan Unit
	inflight  *sync.WaitGroup
	pool      pool.Pool
	executing *atomic.Int64
}

func newDispatcher(units <-chan Unit, inflight *sync.WaitGroup, p pool.Pool, executing *atomic.Int64) *dispatcher {
	return &dispatcher{units: units, inflight: inflight, pool: p, executing: executing}
}

// run starts the dispatch loop and returns when the context is canceled.
func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-d.units:
			ww := d.pool.Get().(*worker)
			d.inflight.Add(1)
			d.executing.Add(1)
			go func() {
				defer d.inflight.Done()
				defer d.executing.Add(-1)
				ww.execute(ctx, u)
				d.pool.Put(ww)
			}()
		}
	}
}
