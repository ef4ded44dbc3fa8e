package imagesource

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
)

// syncScheduler runs admitted units inline on the caller's goroutine.
type syncScheduler struct {
	reject   bool
	admitted atomic.Int32
}

func (s *syncScheduler) Admit(u func(context.Context)) bool {
	if s.reject {
		return false
	}
	s.admitted.Add(1)
	u(context.Background())
	return true
}

// manualScheduler queues admitted units until the test steps them.
type manualScheduler struct {
	mu     sync.Mutex
	units  []func(context.Context)
	reject bool
}

func (s *manualScheduler) Admit(u func(context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.units = append(s.units, u)
	return true
}

func (s *manualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

func (s *manualScheduler) pop() func(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		return nil
	}
	u := s.units[0]
	s.units = s.units[1:]
	return u
}

// Step runs the oldest queued unit with ctx. It reports whether one ran.
func (s *manualScheduler) Step(ctx context.Context) bool {
	u := s.pop()
	if u == nil {
		return false
	}
	u(ctx)
	return true
}

// StepAsync runs the oldest queued unit on a new goroutine.
func (s *manualScheduler) StepAsync(t *testing.T) <-chan struct{} {
	t.Helper()
	u := s.pop()
	require.NotNil(t, u, "no unit queued")
	done := make(chan struct{})
	go func() {
		defer close(done)
		u(context.Background())
	}()
	return done
}

func (s *manualScheduler) Drain() {
	for s.Step(context.Background()) {
	}
}

// recorder is an Observer that records every event it receives.
type recorder struct {
	name string

	mu     sync.Mutex
	events []Event

	// onEvent runs after recording, outside the recorder lock.
	onEvent func(Event)
}

func newRecorder(name string) *recorder { return &recorder{name: name} }

func (r *recorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	fn := r.onEvent
	r.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (r *recorder) OnProgress(b codec.Block) { r.record(Event{Kind: EventProgress, Block: b}) }
func (r *recorder) OnCompleted()             { r.record(Event{Kind: EventCompleted}) }
func (r *recorder) OnError(err error, needsReload bool) {
	r.record(Event{Kind: EventError, Err: err, NeedsReload: needsReload})
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Kinds() []EventKind {
	var kinds []EventKind
	for _, e := range r.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) Count(k EventKind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func (r *recorder) Terminals() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

// bandCodec emits one-row bands of a blank image after draining the stream.
// When gate is set it blocks after the first block until gate is closed.
type bandCodec struct {
	blocks  int
	err     error
	panicV  any
	gate    chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func (c *bandCodec) Decode(ctx context.Context, r io.Reader, emit func(codec.Block)) (codec.Result, error) {
	n := c.calls.Add(1)
	if _, err := io.Copy(io.Discard, r); err != nil {
		return codec.Result{}, err
	}
	if c.panicV != nil {
		panic(c.panicV)
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, c.blocks))
	for i := 0; i < c.blocks; i++ {
		emit(codec.Block{Index: i, Bounds: image.Rect(0, i, 1, i+1), Pixels: img.SubImage(image.Rect(0, i, 1, i+1))})
		if i == 0 && c.gate != nil && n == 1 {
			if c.entered != nil {
				close(c.entered)
			}
			select {
			case <-c.gate:
			case <-ctx.Done():
				return codec.Result{}, ctx.Err()
			}
		}
	}
	if c.err != nil {
		return codec.Result{}, c.err
	}
	return codec.Result{Image: img, Format: "band", Blocks: c.blocks}, nil
}

// trackingOpener counts opened and closed streams.
type trackingOpener struct {
	data   []byte
	err    error
	opened atomic.Int32
	closed atomic.Int32
}

func (o *trackingOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.opened.Add(1)
	return &trackedReader{Reader: bytes.NewReader(o.data), closed: &o.closed}, nil
}

type trackedReader struct {
	io.Reader
	closed *atomic.Int32
}

func (r *trackedReader) Close() error {
	r.closed.Add(1)
	return nil
}

func newTestSource(t *testing.T, sched Scheduler, c codec.Codec, open Opener, opts ...Option) *Source {
	t.Helper()
	if open == nil {
		open = (&trackingOpener{data: []byte("encoded")}).Open
	}
	opts = append([]Option{WithScheduler(sched), WithCodec(c), WithLogger(logging.NewTest(t))}, opts...)
	s, err := NewSource(open, opts...)
	require.NoError(t, err)
	return s
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
