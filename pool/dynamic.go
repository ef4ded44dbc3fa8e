package pool

import "sync"

// NewDynamic returns an unbounded pool backed by sync.Pool.
// Get never blocks; a new worker is created whenever none is idle.
func NewDynamic(newFn func() interface{}) Pool {
	return &sync.Pool{New: newFn}
}
