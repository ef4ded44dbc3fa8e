package imagesource

import (
	"slices"

	"github.com/ygrebnov/errorc"
)

// TrustTag names the trust domain a subscriber belongs to. It is opaque to the
// registry apart from equality. NoTrust asserts no domain.
type TrustTag string

const NoTrust TrustTag = ""

type subscription struct {
	observer   Observer
	interested bool
	tag        TrustTag
	seq        uint64
}

// registry maps observer identity to subscription state for one source.
//
// Entries live in a slice indexed by a map, so removal is a swap with the last
// entry and iteration never chases pointers. The registry is not safe for
// concurrent use; the owning Source's lock guards it.
//
// The first non-empty trust tag registered is recorded for the registry's
// lifetime. A later registration offering a different non-empty tag is
// rejected, and every tagged subscription is terminated with it: no two trust
// domains may both believe they observed the same decode.
type registry struct {
	entries []subscription
	index   map[Observer]int
	tag     TrustTag
	seq     uint64

	violations int
}

func newRegistry() *registry {
	return &registry{index: make(map[Observer]int)}
}

// register inserts o or updates its interest. An existing entry's interest is
// only ever raised, and its tag only ever set once, from none to the recorded tag. It reports whether o was newly inserted. On a trust
// violation the returned delivery carries the error notifications for every
// terminated subscription, including o.
func (r *registry) register(o Observer, tag TrustTag, start bool) (bool, delivery, error) {
	if tag != NoTrust && r.tag != NoTrust && tag != r.tag {
		err := errorc.With(ErrTrustViolation, errorc.String("offered", string(tag)))
		return false, r.violate(o, err), err
	}
	if r.tag == NoTrust {
		r.tag = tag
	}

	if i, ok := r.index[o]; ok {
		if start {
			r.entries[i].interested = true
		}
		// An untagged entry presenting the recorded tag now belongs to that domain.
		if r.entries[i].tag == NoTrust {
			r.entries[i].tag = tag
		}
		return false, delivery{}, nil
	}

	r.seq++
	r.index[o] = len(r.entries)
	r.entries = append(r.entries, subscription{observer: o, interested: start, tag: tag, seq: r.seq})
	return true, delivery{}, nil
}

// violate removes every tagged subscription and the offending observer.
// Untagged subscriptions never claimed a domain and are kept.
func (r *registry) violate(offender Observer, err error) delivery {
	r.violations++
	victims := make([]Observer, 0, len(r.entries)+1)
	for i := 0; i < len(r.entries); {
		e := r.entries[i]
		if e.tag != NoTrust || e.observer == offender {
			victims = append(victims, e.observer)
			r.removeAt(i)
			continue
		}
		i++
	}
	if !slices.Contains(victims, offender) {
		victims = append(victims, offender)
	}
	return delivery{observers: victims, event: Event{Kind: EventError, Err: err}}
}

// unregister removes o. It reports whether o was present.
func (r *registry) unregister(o Observer) bool {
	i, ok := r.index[o]
	if !ok {
		return false
	}
	r.removeAt(i)
	return true
}

func (r *registry) removeAt(i int) {
	removed := r.entries[i].observer
	last := len(r.entries) - 1
	if i != last {
		r.entries[i] = r.entries[last]
		r.index[r.entries[i].observer] = i
	}
	r.entries[last] = subscription{}
	r.entries = r.entries[:last]
	delete(r.index, removed)
}

func (r *registry) has(o Observer) bool {
	_, ok := r.index[o]
	return ok
}

func (r *registry) interested(o Observer) bool {
	i, ok := r.index[o]
	return ok && r.entries[i].interested
}

func (r *registry) len() int { return len(r.entries) }

func (r *registry) interestedCount() int {
	n := 0
	for _, e := range r.entries {
		if e.interested {
			n++
		}
	}
	return n
}

// snapshot captures the interested observers in registration order.
func (r *registry) snapshot() Snapshot {
	subs := make([]subscription, 0, len(r.entries))
	for _, e := range r.entries {
		if e.interested {
			subs = append(subs, e)
		}
	}
	slices.SortFunc(subs, func(a, b subscription) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	observers := make([]Observer, len(subs))
	for i, e := range subs {
		observers[i] = e.observer
	}
	return Snapshot{observers: observers}
}

// notifyAll addresses ev to every interested observer.
// Terminal events retire the recipients' subscriptions.
func (r *registry) notifyAll(ev Event) delivery {
	return r.notifyWhere(r.snapshot().observers, ev)
}

// notifyOne addresses ev to o if it is subscribed and interested.
func (r *registry) notifyOne(o Observer, ev Event) delivery {
	return r.notifyWhere([]Observer{o}, ev)
}

// notifySnapshot addresses ev to the members of s that are still subscribed
// and interested. Observers that unsubscribed since s was taken get nothing.
func (r *registry) notifySnapshot(s Snapshot, ev Event) delivery {
	return r.notifyWhere(s.observers, ev)
}

func (r *registry) notifyWhere(candidates []Observer, ev Event) delivery {
	recipients := make([]Observer, 0, len(candidates))
	for _, o := range candidates {
		if !r.interested(o) {
			continue
		}
		recipients = append(recipients, o)
		if ev.Terminal() {
			r.unregister(o)
		}
	}
	return delivery{observers: recipients, event: ev}
}

// drain removes every subscription, interested or not, and addresses ev to all of them.
func (r *registry) drain(ev Event) delivery {
	observers := make([]Observer, len(r.entries))
	for i, e := range r.entries {
		observers[i] = e.observer
	}
	r.entries = r.entries[:0]
	clear(r.index)
	return delivery{observers: observers, event: ev}
}

// reset clears the violation record. The recorded trust tag is kept.
func (r *registry) reset() {
	r.violations = 0
}

// Snapshot is an immutable list of the observers latched by one decode attempt.
type Snapshot struct {
	observers []Observer
}

// Len returns the number of latched observers.
func (s Snapshot) Len() int { return len(s.observers) }

// Contains reports whether o was latched.
func (s Snapshot) Contains(o Observer) bool { return slices.Contains(s.observers, o) }

// Observers returns a copy of the latched observers.
func (s Snapshot) Observers() []Observer { return slices.Clone(s.observers) }
