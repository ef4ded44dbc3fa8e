package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

type worker struct {
	logger    logging.Logger
	m         instruments
	onFailure func(error)
}

func newWorker(l logging.Logger, m instruments, onFailure func(error)) *worker {
	return &worker{logger: l, m: m, onFailure: onFailure}
}

// execute runs u to completion on the calling goroutine. A panic is recovered
// and reported so the worker stays usable.
func (w *worker) execute(ctx context.Context, u Unit) {
	start := time.Now()
	w.m.inflight.Add(1)
	defer func() {
		w.m.inflight.Add(-1)
		w.m.duration.Record(time.Since(start).Seconds())
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %v", ErrUnitPanicked, p)
			w.m.panicked.Add(1)
			w.logger.Error("unit panicked", "error", err)
			if w.onFailure != nil {
				w.onFailure(err)
			}
			return
		}
		w.m.completed.Add(1)
	}()
	u(ctx)
}

// instruments groups the scheduler's metrics.
type instruments struct {
	admitted  metrics.Counter
	rejected  metrics.Counter
	completed metrics.Counter
	panicked  metrics.Counter
	inflight  metrics.UpDownCounter
	duration  metrics.Histogram
}

func newInstruments(p metrics.Provider) instruments {
	return instruments{
		admitted:  p.Counter("scheduler_units_admitted_total", metrics.WithDescription("Units accepted by Admit or Submit.")),
		rejected:  p.Counter("scheduler_units_rejected_total", metrics.WithDescription("Units rejected by Admit.")),
		completed: p.Counter("scheduler_units_completed_total", metrics.WithDescription("Units that returned normally.")),
		panicked:  p.Counter("scheduler_units_panicked_total", metrics.WithDescription("Units that panicked.")),
		inflight:  p.UpDownCounter("scheduler_units_inflight", metrics.WithDescription("Units currently executing.")),
		duration: p.Histogram("scheduler_unit_duration_seconds",
			metrics.WithDescription("Unit execution time."), metrics.WithUnit("seconds")),
	}
}
