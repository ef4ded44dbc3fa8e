// Package pool provides the worker pools a scheduler draws execution slots from.
package pool

// Pool is an interface that defines methods on a pool of workers.
type Pool interface {
	// Get returns a worker from the pool.
	// Bounded pools block until a worker is available.
	Get() interface{}

	// Put returns a worker back to the pool.
	Put(interface{})
}
