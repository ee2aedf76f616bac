package bapp

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/advdv/bpipe"
	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

const tracingInitTimeout = 5 * time.Second

// exporters maps BP_OTEL_EXPORTER to the span exporter it installs. "none" installs no exporter at all.
var exporters = map[string]func(ctx context.Context) (sdktrace.SpanExporter, error){
	"stdout": func(context.Context) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
	"xrayudp": func(ctx context.Context) (sdktrace.SpanExporter, error) {
		return xrayudp.NewSpanExporter(ctx)
	},
	"none": func(context.Context) (sdktrace.SpanExporter, error) { return nil, nil },
}

// NewTracerProvider creates the TracerProvider for the exporter in BP_OTEL_EXPORTER: "stdout" (default),
// "xrayudp" (Lambda) or "none". It is shut down with the fx lifecycle.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	kind := env.otelExporter()

	exporter, err := newExporter(ctx, kind)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, kind, env.serviceName(), env.gatewayAccessLogGroup())
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	}

	if kind == "xrayudp" {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	lc.Append(fx.StopHook(tp.Shutdown))

	return tp, nil
}

// NewPropagator returns the X-Ray propagator when spans go to X-Ray, and W3C trace context with baggage
// otherwise.
func NewPropagator(env Environment) propagation.TextMapPropagator {
	if env.otelExporter() == "xrayudp" {
		return xray.Propagator{}
	}

	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

func newExporter(ctx context.Context, kind string) (sdktrace.SpanExporter, error) {
	if kind == "" {
		kind = "stdout"
	}

	create, ok := exporters[kind]
	if !ok {
		return nil, errors.Newf("unsupported BP_OTEL_EXPORTER: %q (supported: stdout, xrayudp, none)", kind)
	}

	exp, err := create(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s exporter", kind)
	}

	return exp, nil
}

// newResource detects the Lambda resource for X-Ray, so segments show up under the function. Other
// exporters only get the service name.
func newResource(ctx context.Context, kind, serviceName, gatewayAccessLogGroup string) (*resource.Resource, error) {
	if kind != "xrayudp" {
		return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)), nil
	}

	lambdaRes, err := lambda.NewResourceDetector().Detect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "detect lambda resource")
	}

	return withAdditionalLogGroups(ctx, lambdaRes, gatewayAccessLogGroup)
}

// withAdditionalLogGroups adds log groups to aws.log.group.names, for X-Ray log correlation.
func withAdditionalLogGroups(ctx context.Context, base *resource.Resource, logGroups ...string) (*resource.Resource, error) {
	logGroups = lo.Compact(logGroups)
	if len(logGroups) == 0 {
		return base, nil
	}

	extra, err := resource.New(ctx, resource.WithAttributes(attribute.StringSlice("aws.log.group.names", logGroups)))
	if err != nil {
		return nil, errors.Wrap(err, "log group resource")
	}

	return resource.Merge(base, extra)
}

// withTracing starts a server span for every request outside of excludePaths. The span is named after
// the path until the pipeline knows the route, see [WithRouteSpan].
func withTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator, serviceName string, excludePaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !slices.Contains(excludePaths, r.URL.Path)
			}),
		)
	}
}

// WithRouteSpan renames the request span after the activated route, e.g. "GET /items/{id}", so spans of
// the same route group together.
func WithRouteSpan() bpipe.Middleware {
	return func(next bpipe.Handler) bpipe.Handler {
		return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			nameRouteSpan(trace.SpanFromContext(ctx), c.Route())
			return next.ServeRequest(ctx, c)
		})
	}
}

func nameRouteSpan(span trace.Span, route *bpipe.ActivatedRoute) {
	if route == nil || route.Pattern == "" || !span.IsRecording() {
		return
	}

	method, path, hasMethod := strings.Cut(route.Pattern, " ")
	if !hasMethod {
		method, path = route.Method, route.Pattern
	}

	span.SetName(method + " " + path)
	span.SetAttributes(semconv.HTTPRoute(path))
}

// recordSpanError adds a rendered pipeline error to the request span. Guards run before any middleware,
// so the span is named here as well.
func recordSpanError(ctx context.Context, c *bpipe.Context, err *bpipe.Error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	nameRouteSpan(span, c.Route())
	span.AddEvent("bpipe.error", trace.WithAttributes(
		attribute.Int("bpipe.error.code", int(err.Code())),
		attribute.String("bpipe.error.message", err.Message()),
	))

	if err.Code() >= bpipe.CodeInternalServerError {
		span.RecordError(err)
	}
}
