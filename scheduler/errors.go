package scheduler

import "errors"

const Namespace = "scheduler"

var (
	ErrClosed        = errors.New(Namespace + ": scheduler is closed")
	ErrUnitPanicked  = errors.New(Namespace + ": unit execution panicked")
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)
