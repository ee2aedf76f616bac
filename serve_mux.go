package bpipe

import (
	"net/http"
)

// ServeMux is an HTTP multiplexer that runs every request through the pipeline: guards, handler,
// response modifiers and error rendering. Routes can be named and reversed.
type ServeMux struct {
	cfg         Config
	reverser    *Reverser
	mux         *http.ServeMux
	guards      []Guard
	middlewares struct {
		captured bool
		buffered []Middleware
	}
}

// NewServeMux creates a new ServeMux with default settings.
func NewServeMux() *ServeMux {
	return NewServeMuxWith(Config{}, http.NewServeMux(), NewReverser())
}

// NewServeMuxWith creates a ServeMux with custom settings.
func NewServeMuxWith(cfg Config, baseMux *http.ServeMux, reverser *Reverser) *ServeMux {
	return &ServeMux{
		cfg:      cfg.withDefaults(),
		reverser: reverser,
		mux:      baseMux,
	}
}

// Config returns the pipeline configuration shared by all routes.
func (m *ServeMux) Config() Config { return m.cfg }

// Reverse returns the url based on the name and parameter values.
func (m *ServeMux) Reverse(name string, vals ...string) (string, error) {
	return m.reverser.Reverse(name, vals...)
}

// Use allows providing of middleware.
func (m *ServeMux) Use(mw ...Middleware) {
	m.ensureNoUseAfterHandle()
	m.middlewares.buffered = append(m.middlewares.buffered, mw...)
}

// Guard adds guards that run for every route, before the route's own guards.
func (m *ServeMux) Guard(g ...Guard) {
	m.ensureNoUseAfterHandle()
	m.guards = append(m.guards, g...)
}

// HandleFunc handles the request given the pattern using a function.
func (m *ServeMux) HandleFunc(pattern string, handler HandlerFunc, opts ...RouteOption) {
	m.Handle(pattern, handler, opts...)
}

// Handle handles the request given a handler.
func (m *ServeMux) Handle(pattern string, handler Handler, opts ...RouteOption) {
	rt := m.route(pattern, handler, opts...)
	m.handle(rt.Pattern, ToStd(rt, m.cfg), rt.Name)
}

// HandleStd registers a standard library [http.Handler] for the given pattern. It bypasses the
// pipeline entirely: no guards, middleware or error rendering.
func (m *ServeMux) HandleStd(pattern string, handler http.Handler, name ...string) {
	m.handle(pattern, handler, name...)
}

// ServeHTTP makes the server mux implement the http.Handler interface. Requests that match no pattern
// are answered by the configured error renderer.
func (m *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, pattern := m.mux.Handler(r); pattern == "" {
		ServeError(r.Context(), NewWire(w), r, probeError(h, r), m.cfg)
		return
	}

	m.mux.ServeHTTP(w, r)
}

func (m *ServeMux) route(pattern string, handler Handler, opts ...RouteOption) Route {
	rt := Route{Pattern: pattern, Handler: handler}
	for _, o := range opts {
		o(&rt)
	}

	rt.Guards = append(append([]Guard{}, m.guards...), rt.Guards...)
	rt.Middleware = append(append([]Middleware{}, m.middlewares.buffered...), rt.Middleware...)

	return rt
}

func (m *ServeMux) handle(pattern string, handler http.Handler, name ...string) {
	m.middlewares.captured = true

	if len(name) > 0 && name[0] != "" {
		pattern = m.reverser.Named(name[0], pattern)
	}

	m.mux.Handle(pattern, handler)
}

func (m *ServeMux) ensureNoUseAfterHandle() {
	if m.middlewares.captured {
		panic("bpipe: cannot call Use() or Guard() after calling Handle")
	}
}

// probeError runs the standard library's fallback handler (a 404, or a 405 with an Allow header) into
// a probe and turns the outcome into an error.
func probeError(h http.Handler, r *http.Request) *Error {
	probe := &statusProbe{header: http.Header{}}
	h.ServeHTTP(probe, r)

	herr := NewError(CodeNotFound, nil)
	if probe.status != 0 {
		herr = NewError(Code(probe.status), nil)
	}

	if allow := probe.header.Get("Allow"); allow != "" {
		herr = herr.WithHeader("Allow", allow)
	}

	return herr
}

type statusProbe struct {
	header http.Header
	status int
}

func (p *statusProbe) Header() http.Header { return p.header }

func (p *statusProbe) Write(b []byte) (int, error) {
	if p.status == 0 {
		p.status = http.StatusOK
	}

	return len(b), nil
}

func (p *statusProbe) WriteHeader(code int) {
	if p.status == 0 {
		p.status = code
	}
}
