package bapp

import (
	"context"
	"time"

	"github.com/advdv/bpipe"
)

// Behind Lambda Web Adapter the "client" is a local proxy and the Lambda invocation deadline is the
// authoritative timeout. Server timeouts derived from BP_LAMBDA_TIMEOUT act as the outer bound, the
// per-request deadline from the x-amzn-lambda-context header takes precedence. Both leave a buffer so
// an error response can still be written before Lambda terminates the process.

// DefaultDeadlineBuffer is the default time reserved before the Lambda deadline
// for cleanup, error responses, and graceful shutdown.
const DefaultDeadlineBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// LambdaTimeout is the configured Lambda function timeout from infrastructure.
	LambdaTimeout time.Duration

	// DeadlineBuffer is subtracted from the Lambda invocation deadline. Defaults to DefaultDeadlineBuffer.
	DeadlineBuffer time.Duration
}

// ServerTimeouts returns the http.Server timeout values, LambdaTimeout minus DeadlineBuffer. The
// header timeout is capped at 5s.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	buffer := tc.DeadlineBuffer
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	timeout := tc.LambdaTimeout - buffer
	if timeout <= 0 {
		timeout = tc.LambdaTimeout // fallback if buffer >= timeout
	}

	readHeaderTimeout = min(timeout, 5*time.Second)
	readTimeout = timeout
	writeTimeout = timeout
	idleTimeout = timeout

	return
}

// WithRequestDeadline returns middleware that sets a context deadline based on
// the Lambda invocation deadline from LWAContext, minus the buffer.
//
// If no LWA context is available (e.g., local development), the context is
// passed through unchanged, and server-level timeouts apply.
func WithRequestDeadline(buffer time.Duration) bpipe.Middleware {
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	return func(next bpipe.Handler) bpipe.Handler {
		return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			if lwa := LWA(ctx); lwa != nil {
				if deadline := lwa.DeadlineTime(); !deadline.IsZero() {
					adjustedDeadline := deadline.Add(-buffer)

					if time.Until(adjustedDeadline) > 0 {
						var cancel context.CancelFunc
						ctx, cancel = context.WithDeadline(ctx, adjustedDeadline)
						defer cancel()
					}
				}
			}

			return next.ServeRequest(ctx, c)
		})
	}
}

// RequestDeadline returns the context deadline for the current request.
// Returns the zero time and false if no deadline is set.
func RequestDeadline(ctx context.Context) (time.Time, bool) {
	return ctx.Deadline()
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}

	return max(time.Until(deadline), 0)
}
