package pool

// fixed is a bounded pool: at most capacity workers are ever created,
// and Get blocks while all of them are checked out.
type fixed struct {
	available chan interface{}
	// slots holds one token per created worker.
	slots chan struct{}
	newFn func() interface{}
}

// NewFixed returns a pool that creates at most capacity workers.
// With capacity 0 Get blocks forever.
func NewFixed(capacity uint, newFn func() interface{}) Pool {
	return &fixed{
		available: make(chan interface{}, capacity),
		slots:     make(chan struct{}, capacity),
		newFn:     newFn,
	}
}

func (p *fixed) Get() interface{} {
	select {
	case el := <-p.available:
		return el
	default:
	}

	select {
	case p.slots <- struct{}{}:
		return p.newFn()
	default:
	}

	return <-p.available
}

func (p *fixed) Put(el interface{}) {
	p.available <- el
}
