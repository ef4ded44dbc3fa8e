// Package scheduler provides a bounded, shared worker pool that runs units of
// work on behalf of many independent owners (image sources).
//
// Admission
//   - Admit(unit) never blocks: it enqueues the unit or reports rejection when
//     the queue is saturated or the scheduler is closed.
//   - Submit(ctx, unit) waits for queue space, bounded by ctx.
//
// Execution
//   - A fixed pool (default) caps the number of units executing concurrently;
//     WithDynamicPool removes the cap.
//   - A panicking unit is recovered and reported; the pool keeps serving others.
//
// Close
// Close stops dispatching, waits for executing units, then runs every unit that
// was admitted but never dispatched with an already cancelled context. Each
// admitted unit is therefore invoked exactly once, which lets owners fail fast
// instead of waiting forever.
//
// Defaults
//   - fixed pool of 4 workers
//   - queue size 64
//   - StartImmediately: false (call Start)
package scheduler
