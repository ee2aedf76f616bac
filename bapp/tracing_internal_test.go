package bapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestNewExporter(t *testing.T) {
	ctx := context.Background()

	for _, typ := range []string{"stdout", ""} {
		exp, err := newExporter(ctx, typ)
		require.NoError(t, err)
		assert.NotNil(t, exp)
	}

	_, err := newExporter(ctx, "invalid")
	require.EqualError(t, err, `unsupported BP_OTEL_EXPORTER: "invalid" (supported: stdout, xrayudp, none)`)
}

func logGroups(res *resource.Resource) []string {
	v, ok := res.Set().Value("aws.log.group.names")
	if !ok {
		return nil
	}
	return v.AsStringSlice()
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), "stdout", "my-service", "my-log-group")
	require.NoError(t, err)

	name, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "my-service", name.AsString())
	assert.Nil(t, logGroups(res))
}

func TestWithAdditionalLogGroups(t *testing.T) {
	ctx := context.Background()
	base, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "test-service")))
	require.NoError(t, err)

	for _, tt := range []struct {
		name   string
		groups []string
		want   []string
	}{
		{name: "none"},
		{name: "only empty", groups: []string{"", ""}},
		{name: "single", groups: []string{"my-log-group"}, want: []string{"my-log-group"}},
		{name: "multiple", groups: []string{"log-group-1", "log-group-2"}, want: []string{"log-group-1", "log-group-2"}},
		{name: "mixed", groups: []string{"", "valid-group", ""}, want: []string{"valid-group"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, err := withAdditionalLogGroups(ctx, base, tt.groups...)
			require.NoError(t, err)

			if tt.want == nil {
				assert.Same(t, base, res)
				return
			}

			assert.Equal(t, tt.want, logGroups(res))
		})
	}
}

func TestNewTracerProvider(t *testing.T) {
	for _, exp := range []string{"stdout", "none"} {
		t.Run(exp, func(t *testing.T) {
			var tp trace.TracerProvider
			app := fxtest.New(t,
				fx.Supply(fx.Annotate(testEnv{otelExp: exp}, fx.As(new(Environment)))),
				fx.Provide(NewTracerProvider),
				fx.Populate(&tp),
			)

			app.RequireStart()
			app.RequireStop()

			_, ok := tp.(*sdktrace.TracerProvider)
			assert.True(t, ok)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		app := fx.New(
			fx.NopLogger,
			fx.Supply(fx.Annotate(testEnv{otelExp: "invalid"}, fx.As(new(Environment)))),
			fx.Provide(NewTracerProvider),
			fx.Invoke(func(trace.TracerProvider) {}),
		)

		require.ErrorContains(t, app.Err(), "unsupported BP_OTEL_EXPORTER")
	})
}

func TestNewPropagator(t *testing.T) {
	fields := NewPropagator(testEnv{otelExp: "stdout"}).Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")

	assert.Equal(t, []string{"X-Amzn-Trace-Id"}, NewPropagator(testEnv{otelExp: "xrayudp"}).Fields())
}

func TestWithTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	handler := withTracing(tp, propagation.TraceContext{}, "test-service", "/health")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, r.URL.Path != "/health", trace.SpanFromContext(r.Context()).SpanContext().IsValid())
			w.WriteHeader(http.StatusOK)
		}))

	for _, path := range []string{"/health", "/api/items"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/items", spans[0].Name())
}

func TestRouteSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	mux := NewMux(bpipe.Config{OnError: recordSpanError})
	mux.Use(WithRouteSpan())
	mux.HandleFunc("GET /items/{id}", func(ctx context.Context, c *bpipe.Context) error {
		if c.Route().Param("id") == "broken" {
			return errors.New("table unavailable")
		}

		return c.Response().SendString(ctx, "item")
	})
	mux.HandleFunc("GET /admin/{section}", func(context.Context, *bpipe.Context) error {
		return nil
	}, bpipe.WithGuards(bpipe.Predicate(func(context.Context, *bpipe.ActivatedRoute) (bool, error) {
		return false, bpipe.NewError(bpipe.CodeForbidden, nil)
	})))

	handler := withTracing(tp, propagation.TraceContext{}, "test-service")(mux)
	for path, expCode := range map[string]int{
		"/items/1":      http.StatusOK,
		"/items/broken": http.StatusInternalServerError,
		"/admin/users":  http.StatusForbidden,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, expCode, rec.Code, path)
	}

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range sr.Ended() {
		spans[span.Name()+" "+span.Status().Code.String()] = span
	}

	require.Len(t, spans, 3)
	require.Contains(t, spans, "GET /items/{id} Unset")
	require.Contains(t, spans, "GET /items/{id} Error")
	require.Contains(t, spans, "GET /admin/{section} Unset")

	assert.Contains(t, spans["GET /items/{id} Unset"].Attributes(), attribute.String("http.route", "/items/{id}"))
	assert.Empty(t, spans["GET /items/{id} Unset"].Events())

	events := lo.Map(spans["GET /items/{id} Error"].Events(), func(e sdktrace.Event, _ int) string { return e.Name })
	assert.Equal(t, []string{"bpipe.error", "exception"}, events)

	forbidden := spans["GET /admin/{section} Unset"].Events()
	require.Len(t, forbidden, 1)
	assert.Contains(t, forbidden[0].Attributes, attribute.Int("bpipe.error.code", http.StatusForbidden))
}
