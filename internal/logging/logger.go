// Package logging builds the zap loggers used across the crawler.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production output is JSON with
// stacktraces kept on, since crawl runs are long-lived and failures
// are usually inspected from logs alone. The development flag switches
// to the console encoder with colored levels.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// A stable time key keeps log pipelines indifferent to the mode.
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
