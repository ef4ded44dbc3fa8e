package imagesource

import (
	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
)

// defaultConfig centralizes default values for a Source.
func defaultConfig() config {
	return config{
		Name:    "source",
		Logger:  logging.NewNop(),
		Metrics: metrics.NewNoopProvider(),
	}
}

// validateConfig checks invariants and fills defaults that are costly to build eagerly.
func validateConfig(cfg *config) error {
	if cfg.Scheduler == nil {
		return errorc.With(ErrInvalidConfig, errorc.String("scheduler", "required"))
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewImage()
	}
	return nil
}
