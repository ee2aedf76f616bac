package bapp

import (
	"github.com/advdv/bpipe"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding suitable for CloudWatch.
// BP_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogUnhandledError(err error) {
	l.Logger.Error("unhandled error", zap.Error(err))
}

func (l zapLogger) LogRenderError(err error) {
	l.Logger.Error("error while rendering error response", zap.Error(err))
}

func (l zapLogger) LogFlushError(err error) {
	l.Logger.Error("error while flushing response", zap.Error(err))
}

// NewPipelineLogger adapts a zap logger to the pipeline's [bpipe.Logger].
func NewPipelineLogger(l *zap.Logger) bpipe.Logger {
	return zapLogger{l.Named("bpipe").Named("bapp")}
}
