package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ygrebnov/imagesource/pool"
)

// Unit is one admitted piece of work. The context is cancelled when the
// scheduler closes; a unit admitted but not yet dispatched at Close receives
// an already cancelled context.
type Unit = func(ctx context.Context)

// Scheduler runs admitted units on a worker pool.
// Methods are safe for concurrent use.
type Scheduler struct {
	// noCopy prevents accidental copying of the controller.
	//go:nocopy
	nc noCopy

	config *config
	m      instruments

	once      sync.Once
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	pool  pool.Pool
	units chan Unit
	// closing is closed as the first step of Close.
	closing chan struct{}

	// admitMu serializes admission against Close so no unit can be
	// enqueued after the final drain.
	admitMu sync.RWMutex
	closed  bool

	inflight     sync.WaitGroup
	dispatcherWG sync.WaitGroup
	// submitters counts Submit calls past the closed check.
	submitters sync.WaitGroup
	executing    atomic.Int64
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// New creates a Scheduler. Dispatching begins at Start, or in New with WithStartImmediately.
func New(ctx context.Context, opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	s := &Scheduler{
		config:  &cfg,
		m:       newInstruments(cfg.Metrics),
		units:   make(chan Unit, cfg.QueueSize),
		closing: make(chan struct{}),
	}
	newWorkerFn := func() interface{} { return newWorker(cfg.Logger, s.m, cfg.ErrorHandler) }
	if cfg.pool == poolDynamic {
		s.pool = pool.NewDynamic(newWorkerFn)
	} else {
		s.pool = pool.NewFixed(cfg.Workers, newWorkerFn)
	}

	if cfg.StartImmediately {
		s.Start(ctx)
	}
	return s, nil
}

// Start begins dispatching admitted units. Calls after the first, or after Close, are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.once.Do(func() {
		s.admitMu.Lock()
		defer s.admitMu.Unlock()
		if s.closed {
			return
		}
		s.ctx, s.cancel = context.WithCancel(ctx)
		d := newDispatcher(s.units, &s.inflight, s.pool, &s.executing)
		s.dispatcherWG.Add(1)
		go func() {
			defer s.dispatcherWG.Done()
			d.run(s.ctx)
		}()
		s.config.Logger.Debug("scheduler started", "workers", s.config.Workers, "queue", s.config.QueueSize)
	})
}

// Admit enqueues u without blocking. It reports false when the queue is full
// or the scheduler is closed; a rejected unit is never run.
func (s *Scheduler) Admit(u Unit) bool {
	s.admitMu.RLock()
	defer s.admitMu.RUnlock()
	if s.closed || u == nil {
		s.m.rejected.Add(1)
		return false
	}
	select {
	case s.units <- u:
		s.m.admitted.Add(1)
		return true
	default:
		s.m.rejected.Add(1)
		return false
	}
}

// Submit enqueues u, waiting for queue space until ctx is done.
// It returns ErrClosed if the scheduler is or becomes closed while waiting.
// The wait holds no lock, so Start and Close proceed while Submit blocks.
func (s *Scheduler) Submit(ctx context.Context, u Unit) error {
	s.admitMu.RLock()
	if s.closed {
		s.admitMu.RUnlock()
		return ErrClosed
	}
	var internal <-chan struct{}
	if s.ctx != nil {
		internal = s.ctx.Done()
	}
	s.submitters.Add(1)
	s.admitMu.RUnlock()
	defer s.submitters.Done()

	select {
	case <-s.closing:
		return ErrClosed
	default:
	}
	select {
	case s.units <- u:
		s.m.admitted.Add(1)
		return nil
	case <-s.closing:
		return ErrClosed
	case <-internal:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Queued    int
	Executing int64
	Closed    bool
}

// Stats reports queue depth and executing units.
func (s *Scheduler) Stats() Stats {
	s.admitMu.RLock()
	closed := s.closed
	s.admitMu.RUnlock()
	return Stats{Queued: len(s.units), Executing: s.executing.Load(), Closed: closed}
}

// Close stops dispatching, waits for executing units, then runs units still
// queued with a cancelled context. It is idempotent.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		lc := newLifecycleCoordinator(
			func() {
				// Closed before any lock is taken so a blocked Submit is released first.
				close(s.closing)
				s.admitMu.RLock()
				cancel := s.cancel
				s.admitMu.RUnlock()
				if cancel != nil {
					cancel()
				}
			},
			func() {
				s.admitMu.Lock()
				s.closed = true
				s.admitMu.Unlock()
				// A unit enqueued by a returning Submit is still drained below.
				s.submitters.Wait()
			},
			&s.dispatcherWG,
			&s.inflight,
			s.drainQueued,
		)
		lc.Close()
		s.config.Logger.Debug("scheduler closed")
	})
}

// drainQueued invokes every queued unit inline with a cancelled context.
func (s *Scheduler) drainQueued() {
	ctx := s.ctx
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		cancel()
	}
	w := newWorker(s.config.Logger, s.m, s.config.ErrorHandler)
	for {
		select {
		case u := <-s.units:
			w.execute(ctx, u)
		default:
			return
		}
	}
}
