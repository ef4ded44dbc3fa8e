package scheduler

import (
	"strconv"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

type poolKind int

const (
	poolUnspecified poolKind = iota
	poolFixed
	poolDynamic
)

// config holds Scheduler configuration.
type config struct {
	// Workers caps concurrently executing units for the fixed pool.
	// Default: 4.
	Workers uint

	// QueueSize is the number of admitted units that may wait for a worker.
	// Zero means a unit is admitted only when the dispatcher is ready to take it.
	// Default: 64.
	QueueSize uint

	// StartImmediately starts dispatching in New.
	// Default: false.
	StartImmediately bool

	Logger       logging.Logger
	Metrics      metrics.Provider
	ErrorHandler func(error)

	pool poolKind
}

func defaultConfig() config {
	return config{
		Workers:   4,
		QueueSize: 64,
		Logger:    logging.NewNop(),
		Metrics:   metrics.NewNoopProvider(),
		pool:      poolUnspecified,
	}
}

func validateConfig(cfg *config) error {
	if cfg.pool == poolUnspecified {
		cfg.pool = poolFixed
	}
	if cfg.pool == poolFixed && cfg.Workers == 0 {
		return errorc.With(ErrInvalidConfig, errorc.String("workers", "0"))
	}
	return nil
}

// Option configures a Scheduler.
type Option func(*config) error

func selectPool(cfg *config, kind poolKind) error {
	if cfg.pool != poolUnspecified && cfg.pool != kind {
		return errorc.With(ErrInvalidConfig, errorc.String("pool", "fixed and dynamic pools both requested"))
	}
	cfg.pool = kind
	return nil
}

// WithFixedPool caps the number of concurrently executing units at n (must be > 0).
func WithFixedPool(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("workers", strconv.FormatUint(uint64(n), 10)))
		}
		if err := selectPool(cfg, poolFixed); err != nil {
			return err
		}
		cfg.Workers = n
		return nil
	}
}

// WithDynamicPool removes the cap on concurrently executing units.
func WithDynamicPool() Option {
	return func(cfg *config) error {
		return selectPool(cfg, poolDynamic)
	}
}

// WithQueueSize sets how many admitted units may wait for a worker.
func WithQueueSize(n uint) Option {
	return func(cfg *config) error { cfg.QueueSize = n; return nil }
}

// WithStartImmediately starts dispatching in New.
func WithStartImmediately() Option {
	return func(cfg *config) error { cfg.StartImmediately = true; return nil }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logging.Logger) Option {
	return func(cfg *config) error {
		if l != nil {
			cfg.Logger = l
		}
		return nil
	}
}

// WithMetrics sets the metrics provider. A nil provider is ignored.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error {
		if p != nil {
			cfg.Metrics = p
		}
		return nil
	}
}

// WithErrorHandler registers a callback for recovered unit panics.
// It is called from the worker goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(cfg *config) error { cfg.ErrorHandler = fn; return nil }
}
