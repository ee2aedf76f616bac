package bapp

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Primary wraps an AWS client for the primary deployment region.
//
//	bapp.WithAWSClient(func(cfg aws.Config) *bapp.Primary[ssm.Client] {
//	    return bapp.NewPrimary(ssm.NewFromConfig(cfg))
//	}, bapp.ForPrimaryRegion())
type Primary[T any] struct {
	Client *T
}

// InRegion wraps an AWS client configured for a specific fixed region.
//
//	bapp.WithAWSClient(func(cfg aws.Config) *bapp.InRegion[sqs.Client] {
//	    return bapp.NewInRegion(sqs.NewFromConfig(cfg), "us-east-1")
//	}, bapp.ForRegion("us-east-1"))
type InRegion[T any] struct {
	Client *T
	Region string
}

// NewPrimary creates a Primary wrapper, use it in a factory registered with [ForPrimaryRegion].
func NewPrimary[T any](client *T) *Primary[T] {
	return &Primary[T]{Client: client}
}

// NewInRegion creates an InRegion wrapper, use it in a factory registered with [ForRegion].
func NewInRegion[T any](client *T, region string) *InRegion[T] {
	return &InRegion[T]{Client: client, Region: region}
}

type clientOptions struct {
	region Region
}

// ClientOption configures AWS client registration.
type ClientOption func(*clientOptions)

// ForPrimaryRegion configures the client to use BP_PRIMARY_REGION.
func ForPrimaryRegion() ClientOption {
	return func(o *clientOptions) {
		o.region = PrimaryRegion()
	}
}

// ForRegion configures the client to use a specific fixed region.
func ForRegion(region string) ClientOption {
	return func(o *clientOptions) {
		o.region = FixedRegion(region)
	}
}

const awsConfigTimeout = 10 * time.Second

// NewAWSConfig loads the default AWS SDK v2 configuration.
func NewAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to load aws config")
	}

	return cfg, nil
}

// provideAWSConfig loads the AWS config with a timeout and instruments it with OpenTelemetry.
func provideAWSConfig(tp trace.TracerProvider, prop propagation.TextMapPropagator) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), awsConfigTimeout)
	defer cancel()

	cfg, err := NewAWSConfig(ctx)
	if err != nil {
		return cfg, err
	}

	otelaws.AppendMiddlewares(&cfg.APIOptions,
		otelaws.WithTracerProvider(tp),
		otelaws.WithTextMapPropagator(prop),
	)

	return cfg, nil
}

// AWSClientProvider creates an fx.Option that provides an AWS client for injection.
// The factory receives an aws.Config with the region already configured.
func AWSClientProvider[T any](factory func(aws.Config) T, opts ...ClientOption) fx.Option {
	options := &clientOptions{
		region: LocalRegion(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return fx.Provide(func(cfg aws.Config, env Environment) T {
		awsCfg := cfg.Copy()
		if r := options.region(env); r != "" {
			awsCfg.Region = r
		}

		return factory(awsCfg)
	})
}
