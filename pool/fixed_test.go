package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type slot struct{ id int32 }

func newCountingFixed(capacity uint) (*fixed, *atomic.Int32) {
	var created atomic.Int32
	p := NewFixed(capacity, func() interface{} {
		return &slot{id: created.Add(1)}
	}).(*fixed)
	return p, &created
}

func TestFixed_CreatesUpToCapacityThenBlocks(t *testing.T) {
	p, created := newCountingFixed(2)

	s1 := p.Get().(*slot)
	s2 := p.Get().(*slot)
	require.NotSame(t, s1, s2)
	require.EqualValues(t, 2, created.Load())

	got := make(chan interface{}, 1)
	go func() { got <- p.Get() }()

	select {
	case <-got:
		t.Fatal("third Get returned before any Put")
	case <-time.After(50 * time.Millisecond):
	}

	p.Put(s1)

	select {
	case g := <-got:
		require.Same(t, s1, g)
	case <-time.After(time.Second):
		t.Fatal("blocked Get did not resume after Put")
	}
	require.EqualValues(t, 2, created.Load())
}

func TestFixed_ReusesIdleWorkerBeforeCreating(t *testing.T) {
	p, created := newCountingFixed(3)

	seeded := &slot{id: 42}
	p.available <- seeded

	require.Same(t, seeded, p.Get())
	require.Zero(t, created.Load())

	p.Put(seeded)
	require.Same(t, seeded, p.Get())
}

func TestFixed_ConcurrentUseNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	p, created := newCountingFixed(capacity)

	var (
		wg      sync.WaitGroup
		busy    atomic.Int32
		maxBusy atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := p.Get()
			n := busy.Add(1)
			for {
				m := maxBusy.Load()
				if n <= m || maxBusy.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			busy.Add(-1)
			p.Put(w)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, created.Load(), int32(capacity))
	require.LessOrEqual(t, maxBusy.Load(), int32(capacity))
}

func TestFixed_ZeroCapacityBlocks(t *testing.T) {
	p, created := newCountingFixed(0)

	done := make(chan struct{})
	go func() {
		_ = p.Get()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Get returned with zero capacity")
	case <-time.After(50 * time.Millisecond):
	}
	require.Zero(t, created.Load())
}

func TestDynamic_NeverBlocks(t *testing.T) {
	var created atomic.Int32
	p := NewDynamic(func() interface{} { return &slot{id: created.Add(1)} })

	a := p.Get()
	b := p.Get()
	require.NotNil(t, a)
	require.NotNil(t, b)
	p.Put(a)
	p.Put(b)
}
