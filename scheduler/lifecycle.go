package scheduler

import (
	"sync"
)

// lifecycleCoordinator encapsulates the shutdown sequence for Scheduler.
// It is a wiring helper: it doesn't own channels; it orchestrates cancellation,
// waits and the final drain in a deterministic order.
type lifecycleCoordinator struct {
	cancel       func()
	seal         func()
	dispatcherWG *sync.WaitGroup
	inflight     *sync.WaitGroup
	drain        func()

	once sync.Once
}

func newLifecycleCoordinator(
	cancel func(),
	seal func(),
	dispatcherWG *sync.WaitGroup,
	inflight *sync.WaitGroup,
	drain func(),
) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		cancel:       cancel,
		seal:         seal,
		dispatcherWG: dispatcherWG,
		inflight:     inflight,
		drain:        drain,
	}
}

// Close executes the shutdown sequence exactly once:
// 1) cancel the internal context (unblocks dispatcher and Submit)
// 2) seal admission and wait for pending Submit calls
// 3) wait for the dispatcher to stop
// 4) wait for executing units
// 5) drain units that were admitted but never dispatched
func (lc *lifecycleCoordinator) Close() {
	lc.once.Do(func() {
		if lc.cancel != nil {
			lc.cancel()
		}
		if lc.seal != nil {
			lc.seal()
		}
		// No further inflight.Add can happen once the dispatcher has exited.
		if lc.dispatcherWG != nil {
			lc.dispatcherWG.Wait()
		}
		if lc.inflight != nil {
			lc.inflight.Wait()
		}
		if lc.drain != nil {
			lc.drain()
		}
	})
}
