package imagesource

import (
	"context"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

// Scheduler is the admission interface a Source requires from a shared
// decode worker pool. *scheduler.Scheduler satisfies it.
//
// Admit must not block. For every accepted unit exactly one of two things
// happens: the unit runs once, or it never runs. Units that the scheduler
// gives up on at shutdown should still run with a cancelled context.
type Scheduler interface {
	Admit(unit func(ctx context.Context)) bool
}

// config holds Source configuration.
type config struct {
	// Scheduler runs decode attempts. Required.
	Scheduler Scheduler

	// Codec turns the byte stream into pixel blocks.
	// Default: codec.NewImage().
	Codec codec.Codec

	// Name identifies the source in logs and errors.
	// Default: "source".
	Name string

	Logger  logging.Logger
	Metrics metrics.Provider
}
