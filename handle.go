package bpipe

import (
	"context"
	"net/http"

	"github.com/samber/lo"
)

// Route is the static description of what serves a pattern. A [Match] is created from it for every
// request.
type Route struct {
	Name       string
	Pattern    string
	Guards     []Guard
	Resolvers  map[string]Resolver
	Data       map[string]any
	Middleware []Middleware
	Handler    Handler
}

// RouteOption configures a [Route] when it is registered.
type RouteOption func(*Route)

// Name names the route so its url can be reversed.
func Name(name string) RouteOption {
	return func(rt *Route) { rt.Name = name }
}

// WithGuards appends guards to the route.
func WithGuards(g ...Guard) RouteOption {
	return func(rt *Route) { rt.Guards = append(rt.Guards, g...) }
}

// WithResolver adds a resolver whose result is stored under key in the route data.
func WithResolver(key string, r Resolver) RouteOption {
	return func(rt *Route) {
		if rt.Resolvers == nil {
			rt.Resolvers = map[string]Resolver{}
		}

		rt.Resolvers[key] = r
	}
}

// WithData adds static route data.
func WithData(key string, v any) RouteOption {
	return func(rt *Route) {
		if rt.Data == nil {
			rt.Data = map[string]any{}
		}

		rt.Data[key] = v
	}
}

// WithMiddleware appends middleware that only wraps this route's handler.
func WithMiddleware(m ...Middleware) RouteOption {
	return func(rt *Route) { rt.Middleware = append(rt.Middleware, m...) }
}

// Match creates the per-request match for the route. Path parameters are read from the request as set
// by the standard library mux.
func (rt Route) Match(r *http.Request) *Match {
	var params []string
	if pat, err := parsePattern(rt.Pattern); err == nil {
		params = pat.wildcards()
	}

	return rt.match(r, params)
}

func (rt Route) match(r *http.Request, params []string) *Match {
	ar := &ActivatedRoute{
		Method:  r.Method,
		Pattern: rt.Pattern,
		Path:    r.URL.Path,
		Params:  make(map[string]string, len(params)),
		Data:    lo.Assign(rt.Data),
	}

	for _, name := range params {
		ar.Params[name] = r.PathValue(name)
	}

	return &Match{
		Route:      ar,
		Guards:     rt.Guards,
		Resolvers:  rt.Resolvers,
		Middleware: rt.Middleware,
		Handler:    rt.Handler,
	}
}

// ToStd converts a route into a standard library http.Handler.
func ToStd(rt Route, cfg Config) http.Handler {
	var params []string
	if pat, err := parsePattern(rt.Pattern); err == nil {
		params = pat.wildcards()
	}

	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		Serve(req.Context(), NewWire(resp), req, rt.match(req, params), cfg)
	})
}

// Serve runs the pipeline for one request and returns once the response was written. A nil match is
// answered with a 404.
func Serve(ctx context.Context, w Wire, r *http.Request, m *Match, cfg Config) {
	c := NewContext(w, r, cfg)
	_ = c.Process(ctx, m)

	endWire(c)
}

// ServeError renders err as the response for the request, without running any guards or handler.
func ServeError(ctx context.Context, w Wire, r *http.Request, err error, cfg Config) {
	c := NewContext(w, r, cfg)
	c.ProcessError(ctx, nil, err)

	endWire(c)
}

func endWire(c *Context) {
	if c.wire.Finished() {
		return
	}

	if err := c.wire.End(); err != nil {
		c.Logger().LogFlushError(err)
	}
}
