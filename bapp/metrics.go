package bapp

import (
	"context"
	"net/http"
	"strconv"

	"github.com/advdv/bpipe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the prometheus metrics of the app. They live in their own registry so every app (and
// every test) starts from zero.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestsTotal counts requests by method and status code.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration records request durations in seconds by method.
	RequestDuration *prometheus.HistogramVec
	// ErrorsTotal counts the errors rendered by the pipeline by status code.
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics, next to the go runtime collectors.
func NewMetrics(env Environment) *Metrics {
	labels := prometheus.Labels{"service": env.serviceName()}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bpipe_requests_total",
			Help:        "Total requests",
			ConstLabels: labels,
		}, []string{"method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "bpipe_request_duration_seconds",
			Help:        "Request duration",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bpipe_errors_total",
			Help:        "Errors rendered by the pipeline",
			ConstLabels: labels,
		}, []string{"code"}),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// OnError counts rendered errors, it is installed as [bpipe.Config.OnError].
func (m *Metrics) OnError(_ context.Context, _ *bpipe.Context, err *bpipe.Error) {
	m.ErrorsTotal.WithLabelValues(strconv.Itoa(int(err.Code()))).Inc()
}

// Instrument wraps the handler to count and time every request.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.RequestDuration,
		promhttp.InstrumentHandlerCounter(m.RequestsTotal, next))
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
