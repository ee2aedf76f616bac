package bapp

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

type runtimeProviderParams[E Environment] struct {
	fx.In

	Env          E
	Mux          *Mux
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// WithAWSClient registers an AWS SDK v2 client for dependency injection.
// Clients are injected directly into handler constructors via fx.
//
// By default, clients target the local region (AWS_REGION env var):
//
//	bapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
//
// For the primary region, wrap with Primary[T] and use ForPrimaryRegion():
//
//	bapp.WithAWSClient(func(cfg aws.Config) *bapp.Primary[ssm.Client] {
//	    return bapp.NewPrimary(ssm.NewFromConfig(cfg))
//	}, bapp.ForPrimaryRegion())
func WithAWSClient[T any](factory func(aws.Config) T, opts ...ClientOption) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, AWSClientProvider(factory, opts...))
	}
}

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom readiness handler. It is served outside of the pipeline.
func WithHealthHandler(h func(http.ResponseWriter, *http.Request)) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// FxOptions returns the complete dependency graph of an app. It is used by [NewApp] and by test
// helpers that want to run the identical graph.
func FxOptions[E Environment](routing any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 20+len(cfg.FxOptions))
	baseOpts = append(baseOpts, []fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(NewLogger),
		fx.Provide(func(e Environment) (PipelineFile, error) { return LoadPipelineFile(e.pipelineFile()) }),
		fx.Provide(NewMetrics),
		fx.Provide(NewPipelineConfig),
		fx.Provide(NewMux),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(provideAWSConfig),
		fx.Provide(func(cfg aws.Config) (SecretReader, error) {
			return NewAWSSecretReader(cfg)
		}),
		fx.Provide(func(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
			return NewHTTPTransport(tp, prop)
		}),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Provide(func(p runtimeProviderParams[E]) *Runtime[E] {
			return NewRuntime(p.Env, p.Mux, RuntimeParams{SecretReader: p.SecretReader, Transport: p.Transport})
		}),
		fx.Invoke(startServerHook),
		fx.Invoke(routing),
		fx.Invoke(func(lc fx.Lifecycle, logger *zap.Logger) {
			lc.Append(fx.StopHook(func() { _ = logger.Sync() }))
		}),
	}...)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates a batteries-included app with dependency injection.
//
// The routing function can request any types that are provided via fx options.
// At minimum, it should accept *Mux for routing.
//
//	bapp.NewApp[Env](func(m *bapp.Mux, h *Handlers) {
//	    m.HandleFunc("GET /items/{id}", h.GetItem, bpipe.Name("get-item"))
//	},
//	    bapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	        return dynamodb.NewFromConfig(cfg)
//	    }),
//	    bapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
func NewApp[E Environment](routing any, opts ...Option) *App {
	return &App{app: fx.New(FxOptions[E](routing, opts...)...)}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application and stops it again once ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
