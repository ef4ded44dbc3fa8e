package imagesource

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ygrebnov/imagesource/codec"
)

// DecoderState is the lifecycle position of one decode attempt.
type DecoderState int32

const (
	DecoderCreated DecoderState = iota
	DecoderDecoding
	DecoderCompleted
	DecoderAborted
	DecoderFailed
)

func (s DecoderState) String() string {
	switch s {
	case DecoderCreated:
		return "created"
	case DecoderDecoding:
		return "decoding"
	case DecoderCompleted:
		return "completed"
	case DecoderAborted:
		return "aborted"
	case DecoderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s DecoderState) Terminal() bool { return s >= DecoderCompleted }

// Decoder is one decode attempt of a Source.
//
// It owns the stream it opens and only ever notifies the observers latched in
// its snapshot. A superseded decoder keeps running until the codec returns,
// closes its stream, and has its outcome discarded.
type Decoder struct {
	id       ulid.ULID
	source   *Source
	snapshot Snapshot
	started  time.Time

	state      atomic.Int32
	superseded atomic.Bool
}

type outcome struct {
	result codec.Result
	err    error
}

func newDecoder(s *Source, snap Snapshot) *Decoder {
	return &Decoder{id: ulid.Make(), source: s, snapshot: snap}
}

// ID identifies the attempt. IDs of one process sort by creation time.
func (d *Decoder) ID() ulid.ULID { return d.id }

// State reports the current lifecycle state.
func (d *Decoder) State() DecoderState { return DecoderState(d.state.Load()) }

// Snapshot returns the observers latched when the attempt started.
func (d *Decoder) Snapshot() Snapshot { return d.snapshot }

// setState moves d into a terminal state once. Later transitions are ignored.
func (d *Decoder) setState(to DecoderState) bool {
	for {
		cur := d.state.Load()
		if DecoderState(cur).Terminal() {
			return false
		}
		if d.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// supersede marks the attempt aborted. Its remaining progress is suppressed.
func (d *Decoder) supersede() {
	d.superseded.Store(true)
	d.setState(DecoderAborted)
}

func (d *Decoder) run(ctx context.Context) {
	d.started = time.Now()
	d.setState(DecoderDecoding)
	out := d.decode(ctx)
	d.source.onDecodeFinished(d, out)
}

func (d *Decoder) decode(ctx context.Context) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = outcome{err: fmt.Errorf("codec panicked: %v", p)}
		}
	}()

	rc, err := d.source.open(ctx)
	if err != nil {
		return outcome{err: err}
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			d.source.logger.Warn("closing stream", "source", d.source.cfg.Name, "decoder", d.id.String(), "error", cerr)
		}
	}()

	res, err := d.source.cfg.Codec.Decode(ctx, rc, d.emit)
	return outcome{result: res, err: err}
}

func (d *Decoder) emit(b codec.Block) {
	if d.superseded.Load() {
		return
	}
	d.source.deliverProgress(d, b)
}
