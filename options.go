package imagesource

import (
	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

// Option configures a Source.
type Option func(*config) error

// WithScheduler sets the scheduler decode attempts are admitted to. Required.
func WithScheduler(s Scheduler) Option {
	return func(cfg *config) error {
		if s == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("scheduler", "nil"))
		}
		cfg.Scheduler = s
		return nil
	}
}

// WithCodec sets the codec. A nil codec is ignored.
func WithCodec(c codec.Codec) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.Codec = c
		}
		return nil
	}
}

// WithName names the source in logs and errors.
func WithName(name string) Option {
	return func(cfg *config) error {
		if name == "" {
			return errorc.With(ErrInvalidConfig, errorc.String("name", "empty"))
		}
		cfg.Name = name
		return nil
	}
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
