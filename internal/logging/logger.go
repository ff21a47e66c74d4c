// Package logging builds the zap loggers used across the ingestion
// service. Production output is JSON for log shippers; development
// output is colorized console text.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a ready-to-use logger. The development variant trades
// machine-readability for colored console output; the production
// variant emits JSON with stacktraces kept on errors so failed crawl
// pipelines can be traced after the fact. Both use "ts" as the time key.
func New(development bool) (*zap.Logger, error) {
	cfg := configFor(development)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func configFor(development bool) zap.Config {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg
}
