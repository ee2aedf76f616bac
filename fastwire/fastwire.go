// Package fastwire serves bpipe pipelines from a fasthttp server.
package fastwire

import (
	"context"
	"net/http"
	"net/url"

	"github.com/advdv/bpipe"
	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Wire writes a bpipe response into a fasthttp request context. The body is buffered by fasthttp and
// sent once the request handler returns.
type Wire struct {
	ctx         *fasthttp.RequestCtx
	headersSent bool
	finished    bool
}

// NewWire inits a wire for the fasthttp request context.
func NewWire(ctx *fasthttp.RequestCtx) *Wire {
	return &Wire{ctx: ctx}
}

func (w *Wire) WriteHead(status int, header http.Header) error {
	if w.headersSent {
		return bpipe.ErrHeadersSent
	}

	for k, vals := range header {
		for _, v := range vals {
			w.ctx.Response.Header.Add(k, v)
		}
	}

	w.ctx.SetStatusCode(status)
	w.headersSent = true

	return nil
}

func (w *Wire) Write(p []byte) (int, error) {
	if !w.headersSent {
		return 0, bpipe.ErrWireHeadNotWritten
	}

	n, err := w.ctx.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "write fasthttp body")
	}

	return n, nil
}

func (w *Wire) End() error {
	w.finished = true
	return nil
}

func (w *Wire) HeadersSent() bool { return w.headersSent }
func (w *Wire) Finished() bool    { return w.finished }

var _ bpipe.Wire = &Wire{}

// Resolver picks the match for a request, nil when nothing matches.
type Resolver func(r *http.Request) *bpipe.Match

// Route resolves every request to the same route.
func Route(rt bpipe.Route) Resolver {
	return rt.Match
}

// Handler serves the resolved match through the pipeline on a native fasthttp wire. Requests that
// cannot be converted are answered with a 400.
func Handler(resolve Resolver, cfg bpipe.Config) fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var r http.Request
		if err := fasthttpadaptor.ConvertRequest(fctx, &r, true); err != nil {
			if r.URL == nil {
				r.URL = &url.URL{Path: "/"}
			}

			bpipe.ServeError(ctx, NewWire(fctx), r.WithContext(ctx),
				bpipe.NewError(bpipe.CodeBadRequest, errors.Wrap(err, "convert request")), cfg)
			return
		}

		req := r.WithContext(ctx)
		bpipe.Serve(ctx, NewWire(fctx), req, resolve(req), cfg)
	}
}

// MuxHandler serves a complete [bpipe.ServeMux] (or any handler wrapping one) from fasthttp. Routing is
// done by the standard library mux, so the response passes through an adapted http.ResponseWriter.
func MuxHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}
