package imagesource

import (
	"fmt"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
)

// Observer receives pixel data as a source decodes.
//
// Observers are identified by reference: implementations must be comparable,
// which in practice means pointer types. Callbacks run on scheduler worker
// goroutines; marshaling to another thread is the observer's business.
// Callbacks may call back into the source (Subscribe, Unsubscribe, Flush).
type Observer interface {
	OnProgress(block codec.Block)
	OnCompleted()
	// OnError reports a terminal failure. needsReload asks the observer to drop
	// any decoded pixels it cached from this source.
	OnError(err error, needsReload bool)
}

// ObserverFuncs adapts plain functions to Observer. Use a pointer: two
// distinct *ObserverFuncs are distinct observers. Nil fields are skipped.
type ObserverFuncs struct {
	Progress  func(codec.Block)
	Completed func()
	Error     func(err error, needsReload bool)
}

var _ Observer = (*ObserverFuncs)(nil)

func (o *ObserverFuncs) OnProgress(b codec.Block) {
	if o.Progress != nil {
		o.Progress(b)
	}
}

func (o *ObserverFuncs) OnCompleted() {
	if o.Completed != nil {
		o.Completed()
	}
}

func (o *ObserverFuncs) OnError(err error, needsReload bool) {
	if o.Error != nil {
		o.Error(err, needsReload)
	}
}

// EventKind enumerates lifecycle events delivered to observers.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one notification. Completed and Error are terminal.
type Event struct {
	Kind        EventKind
	Block       codec.Block
	Err         error
	NeedsReload bool
}

// Terminal reports whether the event ends a subscription's decode attempt.
func (e Event) Terminal() bool { return e.Kind != EventProgress }

func (e Event) deliver(o Observer) {
	switch e.Kind {
	case EventProgress:
		o.OnProgress(e.Block)
	case EventCompleted:
		o.OnCompleted()
	case EventError:
		o.OnError(e.Err, e.NeedsReload)
	}
}

// delivery is a batch of notifications decided under the source lock and
// sent after it is released.
type delivery struct {
	observers []Observer
	event     Event
}

// send notifies every observer in order. A panicking observer is logged and
// skipped so the rest of the batch and the worker survive it.
func (d delivery) send(l logging.Logger) {
	for _, o := range d.observers {
		notify(l, o, d.event)
	}
}

func notify(l logging.Logger, o Observer, e Event) {
	defer func() {
		if p := recover(); p != nil {
			l.Error("observer panicked", "event", e.Kind.String(), "observer", fmt.Sprintf("%T", o), "panic", p)
		}
	}()
	e.deliver(o)
}

// deliveries are sent in order.
type deliveries []delivery

func (ds deliveries) send(l logging.Logger) {
	for _, d := range ds {
		d.send(l)
	}
}
