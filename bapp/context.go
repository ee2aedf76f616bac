package bapp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/advdv/bpipe"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ctxKey is the key type for context values.
type ctxKey int

const (
	ctxKeyRequestDep ctxKey = iota
	ctxKeyLWAContext
)

// requestDep holds request-scoped dependencies available via context.
// App-scoped dependencies (env, mux, aws clients) are accessed via Runtime instead.
type requestDep struct {
	logger *zap.Logger
}

// LWAContext contains Lambda execution context from the x-amzn-lambda-context header.
type LWAContext struct {
	RequestID          string       `json:"request_id"`
	Deadline           int64        `json:"deadline"`
	InvokedFunctionARN string       `json:"invoked_function_arn"`
	XRayTraceID        string       `json:"xray_trace_id"`
	EnvConfig          LWAEnvConfig `json:"env_config"`
}

// LWAEnvConfig contains Lambda function environment configuration.
type LWAEnvConfig struct {
	FunctionName string `json:"function_name"`
	Memory       int    `json:"memory"`
	Version      string `json:"version"`
	LogGroup     string `json:"log_group"`
	LogStream    string `json:"log_stream"`
}

// DeadlineTime returns the Lambda invocation deadline as a time.Time.
func (lc *LWAContext) DeadlineTime() time.Time {
	if lc.Deadline == 0 {
		return time.Time{}
	}
	return time.UnixMilli(lc.Deadline)
}

// RemainingTime returns the duration until the Lambda invocation deadline.
func (lc *LWAContext) RemainingTime() time.Duration {
	if lc.Deadline == 0 {
		return 0
	}

	return max(time.Until(lc.DeadlineTime()), 0)
}

// WithRequestLogger makes the logger available to handlers through [Log].
func WithRequestLogger(logger *zap.Logger) bpipe.Middleware {
	d := &requestDep{logger: logger}

	return func(next bpipe.Handler) bpipe.Handler {
		return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			return next.ServeRequest(context.WithValue(ctx, ctxKeyRequestDep, d), c)
		})
	}
}

// WithLWAContext parses the x-amzn-lambda-context header from AWS Lambda Web Adapter.
func WithLWAContext() bpipe.Middleware {
	return func(next bpipe.Handler) bpipe.Handler {
		return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			if header := c.Request().Header().Get("x-amzn-lambda-context"); header != "" {
				var lc LWAContext
				if err := json.Unmarshal([]byte(header), &lc); err == nil {
					ctx = context.WithValue(ctx, ctxKeyLWAContext, &lc)
				}
			}

			return next.ServeRequest(ctx, c)
		})
	}
}

func requestDepFromContext(ctx context.Context) *requestDep {
	d, ok := ctx.Value(ctxKeyRequestDep).(*requestDep)
	if !ok {
		panic("bapp: requestDep not found in context; is the middleware configured?")
	}
	return d
}

// LWA retrieves the LWAContext from the request context.
// Returns nil if not running in a Lambda environment.
func LWA(ctx context.Context) *LWAContext {
	lc, _ := ctx.Value(ctxKeyLWAContext).(*LWAContext)
	return lc
}

// Log returns a trace-correlated zap logger from the context.
func Log(ctx context.Context) *zap.Logger {
	d := requestDepFromContext(ctx)
	return d.logger.With(traceFields(ctx)...)
}

// Span returns the current trace span from the context.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// traceFields extracts trace_id and span_id from the context for log correlation.
func traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	sc := span.SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
