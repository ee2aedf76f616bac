package bapp

import (
	"context"
	"net/http"

	"github.com/advdv/bpipe"
	"go.uber.org/zap"
)

// Mux is an alias for bpipe.ServeMux.
type Mux = bpipe.ServeMux

// NewMux creates a new Mux that serves every route with the pipeline configuration.
func NewMux(cfg bpipe.Config) *Mux {
	return bpipe.NewServeMuxWith(cfg, http.NewServeMux(), bpipe.NewReverser())
}

// NewPipelineConfig assembles the pipeline configuration from the pipeline file. Rendered errors are
// logged through zap, recorded on the request span and counted in the metrics.
func NewPipelineConfig(pf PipelineFile, logger *zap.Logger, metrics *Metrics) bpipe.Config {
	return bpipe.Config{
		Renderer:    pf.ErrorRenderer(),
		Logger:      NewPipelineLogger(logger),
		TraceErrors: pf.TraceErrors,
		OnError: func(ctx context.Context, c *bpipe.Context, err *bpipe.Error) {
			recordSpanError(ctx, c, err)
			metrics.OnError(ctx, c, err)
		},
	}
}
