package bapp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/advdv/bpipe/fastwire"
	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig holds optional configuration for the HTTP server.
type ServerConfig struct {
	HealthHandler func(http.ResponseWriter, *http.Request)
}

// ServerParams holds the dependencies for creating an HTTP server.
type ServerParams struct {
	fx.In

	Env        Environment
	Mux        *Mux
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
	Metrics    *Metrics
	Pipeline   PipelineFile
}

// NewServer creates an HTTP server with all middleware and routing configured.
func NewServer(params ServerParams, cfg ServerConfig) *http.Server {
	params.Mux.Guard(params.Pipeline.Guards()...)
	params.Mux.Use(
		WithRequestLogger(params.Logger),
		WithLWAContext(),
		WithRouteSpan(),
		WithRequestDeadline(DefaultDeadlineBuffer),
	)

	// The readiness check of Lambda Web Adapter bypasses the pipeline, its guards and tracing.
	healthPath := params.Env.readinessCheckPath()
	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	params.Mux.HandleStd(healthPath, http.HandlerFunc(healthHandler))

	excluded := []string{healthPath}
	if mp := params.Env.metricsPath(); mp != "" {
		params.Mux.HandleStd(mp, params.Metrics.Handler())
		excluded = append(excluded, mp)
	}

	handler := withTracing(params.TracerProv, params.Propagator, params.Env.serviceName(), excluded...)(
		params.Metrics.Instrument(params.Mux))

	tc := TimeoutConfig{LambdaTimeout: params.Env.lambdaTimeout()}
	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", params.Env.port()),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// startServerHook registers lifecycle hooks for the HTTP server, on the engine of the environment.
func startServerHook(lc fx.Lifecycle, env Environment, server *http.Server, logger *zap.Logger) {
	if env.engine() == "fasthttp" {
		startFastHTTPHook(lc, env, server, logger)
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

// startFastHTTPHook serves the same handler and timeouts from a fasthttp server.
func startFastHTTPHook(lc fx.Lifecycle, env Environment, server *http.Server, logger *zap.Logger) {
	fs := &fasthttp.Server{
		Handler:      fastwire.MuxHandler(server.Handler),
		Name:         env.serviceName(),
		ReadTimeout:  server.ReadTimeout,
		WriteTimeout: server.WriteTimeout,
		IdleTimeout:  server.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting fasthttp server", zap.String("addr", server.Addr))
			go func() {
				if err := fs.ListenAndServe(server.Addr); err != nil {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping fasthttp server")
			return fs.ShutdownWithContext(ctx)
		},
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
