package imagesource

import (
	"context"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

// Opener opens a fresh stream over the encoded bytes. It is called once per
// decode attempt, on a scheduler worker goroutine.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// State is the production cycle position of a Source.
type State int

const (
	StateIdle State = iota
	StateAwaitingAdmission
	StateDecoding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAdmission:
		return "awaiting_admission"
	case StateDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// Source serves pixel data decoded from one encoded stream to any number of
// observers, running at most one decode attempt at a time.
//
// All state is guarded by one mutex. Observer callbacks are never invoked
// while it is held, so they may call back into the Source.
type Source struct {
	// noCopy prevents accidental copying of the source.
	//go:nocopy
	nc noCopy

	cfg    config
	open   Opener
	logger logging.Logger
	m      instruments

	mu       sync.Mutex
	reg      *registry
	active   *Decoder
	awaiting bool
	closed   bool
	result   *codec.Result
	lastErr  error
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// NewSource creates an idle Source reading through open. WithScheduler is required.
func NewSource(open Opener, opts ...Option) (*Source, error) {
	if open == nil {
		return nil, errorc.With(ErrInvalidConfig, errorc.String("opener", "nil"))
	}
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

	return &Source{
		cfg:    cfg,
		open:   open,
		logger: cfg.Logger,
		m:      newInstruments(cfg.Metrics),
		reg:    newRegistry(),
	}, nil
}

// Name returns the configured source name.
func (s *Source) Name() string { return s.cfg.Name }

// Subscribe registers o. Re-subscribing is idempotent except that start may
// raise a waiting subscription to interested. When no decode is running and
// someone is interested, a decode is requested from the scheduler.
//
// Subscribe never blocks on decoding. A trust tag conflicting with the one
// recorded for this source fails with ErrTrustViolation; every tagged
// subscription, o included, is then terminated through OnError.
func (s *Source) Subscribe(o Observer, tag TrustTag, start bool) error {
	if err := checkObserver(o); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	newly, d, err := s.reg.register(o, tag, start)
	if err != nil {
		s.mu.Unlock()
		s.m.trustViolations.Add(1)
		s.logger.Warn("trust violation", "source", s.cfg.Name, "terminated", len(d.observers))
		d.send(s.logger)
		return err
	}
	admit := s.claimAdmissionLocked()
	s.mu.Unlock()

	if newly {
		s.logger.Debug("observer subscribed", "source", s.cfg.Name, "interested", start)
	}
	if admit {
		s.requestAdmission()
	}
	return nil
}

// StartProduction subscribes o with immediate interest.
func (s *Source) StartProduction(o Observer, tag TrustTag) error {
	return s.Subscribe(o, tag, true)
}

// Unsubscribe removes o. A running decode keeps serving the remaining
// observers. It reports whether o was subscribed.
func (s *Source) Unsubscribe(o Observer) bool {
	if checkObserver(o) != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.unregister(o)
}

// IsSubscribed reports whether o holds a subscription, interested or not.
func (s *Source) IsSubscribed(o Observer) bool {
	if checkObserver(o) != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.has(o)
}

// Len returns the number of subscriptions.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.len()
}

// State reports the production cycle position.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.active != nil:
		return StateDecoding
	case s.awaiting:
		return StateAwaitingAdmission
	default:
		return StateIdle
	}
}

// Result returns the last successfully decoded image, if one is retained.
func (s *Source) Result() (codec.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return codec.Result{}, false
	}
	return *s.result, true
}

// Err returns the error of the last failed attempt, or nil.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// TrustViolations returns how many trust violations occurred since the last Flush.
func (s *Source) TrustViolations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.violations
}

// Flush invalidates the running attempt and everything decoded so far. The
// running decoder finishes silently; interested observers are served by a
// fresh attempt. An admission already pending is reused rather than requested
// again, so State keeps reporting StateAwaitingAdmission until it runs; it
// decodes the current bytes either way.
func (s *Source) Flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if dec := s.active; dec != nil {
		s.supersedeLocked(dec)
	}
	s.result = nil
	s.lastErr = nil
	s.reg.reset()
	admit := s.claimAdmissionLocked()
	s.mu.Unlock()

	s.logger.Debug("source flushed", "source", s.cfg.Name)
	if admit {
		s.requestAdmission()
	}
}

// Close terminates every subscription with ErrClosed and needsReload set, and
// supersedes the running attempt. Later subscriptions fail with ErrClosed.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if dec := s.active; dec != nil {
		s.supersedeLocked(dec)
	}
	s.result = nil
	d := s.reg.drain(Event{Kind: EventError, Err: ErrClosed, NeedsReload: true})
	s.mu.Unlock()

	s.logger.Debug("source closed", "source", s.cfg.Name, "terminated", len(d.observers))
	d.send(s.logger)
}

func (s *Source) supersedeLocked(dec *Decoder) {
	dec.supersede()
	s.active = nil
	s.m.active.Add(-1)
	s.m.superseded.Add(1)
	s.logger.Debug("decoder superseded", "source", s.cfg.Name, "decoder", dec.id.String())
}

// claimAdmissionLocked reports whether the caller must request admission,
// recording that a request is outstanding.
func (s *Source) claimAdmissionLocked() bool {
	if s.closed || s.active != nil || s.awaiting || s.reg.interestedCount() == 0 {
		return false
	}
	s.awaiting = true
	return true
}

// requestAdmission must be called without s.mu held: a synchronous scheduler
// runs the unit inside Admit.
func (s *Source) requestAdmission() {
	s.logger.Debug("admission requested", "source", s.cfg.Name)
	if s.cfg.Scheduler.Admit(s.onAdmitted) {
		return
	}

	s.m.rejected.Add(1)
	err := errorc.With(ErrAdmissionRejected, errorc.String("source", s.cfg.Name))
	s.mu.Lock()
	s.awaiting = false
	s.lastErr = err
	d := s.reg.notifyAll(Event{Kind: EventError, Err: err})
	s.mu.Unlock()

	s.logger.Warn("admission rejected", "source", s.cfg.Name, "failed", len(d.observers))
	d.send(s.logger)
}

// onAdmitted runs on a scheduler worker when this source's unit is dispatched.
func (s *Source) onAdmitted(ctx context.Context) {
	s.mu.Lock()
	s.awaiting = false
	if s.active != nil || s.closed {
		s.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		err := errorc.With(ErrAdmissionRejected, errorc.String("reason", ctx.Err().Error()))
		s.lastErr = err
		d := s.reg.notifyAll(Event{Kind: EventError, Err: err})
		s.mu.Unlock()
		s.m.rejected.Add(1)
		s.logger.Warn("admitted unit cancelled before start", "source", s.cfg.Name, "failed", len(d.observers))
		d.send(s.logger)
		return
	}
	snap := s.reg.snapshot()
	if snap.Len() == 0 {
		s.mu.Unlock()
		return
	}
	dec := newDecoder(s, snap)
	s.active = dec
	s.m.started.Add(1)
	s.m.active.Add(1)
	s.mu.Unlock()

	s.logger.Debug("decode started", "source", s.cfg.Name, "decoder", dec.id.String(), "observers", snap.Len())
	dec.run(ctx)
}

func (s *Source) deliverProgress(dec *Decoder, b codec.Block) {
	s.mu.Lock()
	if s.active != dec {
		s.mu.Unlock()
		return
	}
	d := s.reg.notifySnapshot(dec.snapshot, Event{Kind: EventProgress, Block: b})
	s.mu.Unlock()
	d.send(s.logger)
}

// onDecodeFinished accepts the outcome only from the active decoder.
func (s *Source) onDecodeFinished(dec *Decoder, out outcome) {
	elapsed := time.Since(dec.started).Seconds()

	s.mu.Lock()
	if s.active != dec {
		s.mu.Unlock()
		s.m.stale.Add(1)
		s.logger.Debug("stale result discarded", "source", s.cfg.Name, "decoder", dec.id.String(), "error", ErrStaleResult)
		return
	}
	s.active = nil
	s.m.active.Add(-1)
	s.m.duration.Record(elapsed)

	var ev Event
	if out.err == nil {
		dec.setState(DecoderCompleted)
		res := out.result
		s.result = &res
		s.lastErr = nil
		ev = Event{Kind: EventCompleted}
		s.m.completed.Add(1)
	} else {
		dec.setState(DecoderFailed)
		de := newDecodeError(out.err, s.cfg.Name, dec.id)
		if de.NeedsReload() {
			s.result = nil
		}
		s.lastErr = de
		ev = Event{Kind: EventError, Err: de, NeedsReload: de.NeedsReload()}
		s.m.failed.Add(1)
	}
	d := s.reg.notifySnapshot(dec.snapshot, ev)
	admit := s.claimAdmissionLocked()
	s.mu.Unlock()

	if out.err != nil {
		s.logger.Warn("decode failed", "source", s.cfg.Name, "decoder", dec.id.String(), "error", out.err)
	} else {
		s.logger.Debug("decode completed", "source", s.cfg.Name, "decoder", dec.id.String(), "seconds", elapsed)
	}
	d.send(s.logger)
	if admit {
		s.requestAdmission()
	}
}

func checkObserver(o Observer) error {
	if o == nil {
		return ErrNilObserver
	}
	v := reflect.ValueOf(o)
	if !v.Type().Comparable() {
		return errorc.With(ErrInvalidObserver, errorc.String("type", v.Type().String()))
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return ErrNilObserver
	}
	return nil
}

// instruments groups a source's metrics.
type instruments struct {
	started         metrics.Counter
	completed       metrics.Counter
	failed          metrics.Counter
	stale           metrics.Counter
	superseded      metrics.Counter
	rejected        metrics.Counter
	trustViolations metrics.Counter
	active          metrics.UpDownCounter
	duration        metrics.Histogram
}

func newInstruments(p metrics.Provider) instruments {
	return instruments{
		started:         p.Counter("imagesource_decodes_started_total", metrics.WithDescription("Decode attempts started.")),
		completed:       p.Counter("imagesource_decodes_completed_total", metrics.WithDescription("Decode attempts that completed.")),
		failed:          p.Counter("imagesource_decodes_failed_total", metrics.WithDescription("Decode attempts that failed.")),
		stale:           p.Counter("imagesource_decodes_stale_total", metrics.WithDescription("Outcomes discarded from superseded attempts.")),
		superseded:      p.Counter("imagesource_decodes_superseded_total", metrics.WithDescription("Attempts superseded by Flush or Close.")),
		rejected:        p.Counter("imagesource_admissions_rejected_total", metrics.WithDescription("Admissions refused by the scheduler.")),
		trustViolations: p.Counter("imagesource_trust_violations_total", metrics.WithDescription("Registrations rejected for a conflicting trust tag.")),
		active:          p.UpDownCounter("imagesource_decodes_active", metrics.WithDescription("Decode attempts currently accepted as active.")),
		duration: p.Histogram("imagesource_decode_duration_seconds",
			metrics.WithDescription("Duration of accepted decode attempts."), metrics.WithUnit("seconds")),
	}
}
