package bpipe

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogUnhandledError(err error)
	LogRenderError(err error)
	LogFlushError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogUnhandledError(err error) {
	l.Logger.Printf("bpipe: unhandled error: %+v", err)
}

func (l stdLogger) LogRenderError(err error) {
	l.Logger.Printf("bpipe: error while rendering error response: %s", err)
}

func (l stdLogger) LogFlushError(err error) {
	l.Logger.Printf("bpipe: error while flushing response: %s", err)
}

func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}

	return stdLogger{l}
}

type TestLogger struct {
	tb testing.TB

	NumLogUnhandledError int64
	NumLogRenderError    int64
	NumLogFlushError     int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogUnhandledError(err error) {
	atomic.AddInt64(&l.NumLogUnhandledError, 1)
	l.tb.Logf("bpipe: unhandled error: %s", err)
}

func (l *TestLogger) LogRenderError(err error) {
	atomic.AddInt64(&l.NumLogRenderError, 1)
	l.tb.Logf("bpipe: error while rendering error response: %s", err)
}

func (l *TestLogger) LogFlushError(err error) {
	atomic.AddInt64(&l.NumLogFlushError, 1)
	l.tb.Logf("bpipe: error while flushing response: %s", err)
}

var _ Logger = &TestLogger{}
