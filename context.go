package bpipe

import (
	"context"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Config is the explicit configuration of the pipeline. It is shared read-only between requests.
type Config struct {
	// Renderer renders errors unless the handler implements [ErrorRenderer] itself. Defaults to
	// [PlainTextRenderer].
	Renderer ErrorRenderer
	// Logger is informed about important states. Defaults to a standard library logger.
	Logger Logger
	// UpgradeHandlers accept connection upgrades, selected by protocol.
	UpgradeHandlers []UpgradeHandler
	// Providers register constructors in every request's scope.
	Providers []ScopeProvider
	// TraceErrors logs the cause of every rendered error, not just the unhandled ones.
	TraceErrors bool
	// OnError is called for every error before it is rendered.
	OnError func(ctx context.Context, c *Context, err *Error)
}

func (cfg Config) withDefaults() Config {
	if cfg.Renderer == nil {
		cfg.Renderer = PlainTextRenderer{}
	}

	if cfg.Logger == nil {
		cfg.Logger = NewStdLogger(nil)
	}

	return cfg
}

// Context is the per-request aggregate of the incoming view and the outgoing builder. It also hosts the
// request's scope: lazily constructed services that guards and handlers resolve. A context serves
// exactly one request and is processed at most once.
type Context struct {
	cfg   Config
	wire  Wire
	req   *IncomingRequest
	res   *OutgoingResponse
	route *ActivatedRoute
	match *Match

	processing bool
	scope      scope

	// guardHeader are the response headers as the guard chain left them.
	guardHeader http.Header
}

// NewContext creates the context for one request that will be answered over w.
func NewContext(w Wire, r *http.Request, cfg Config) *Context {
	c := &Context{
		cfg:   cfg.withDefaults(),
		wire:  w,
		req:   NewIncomingRequest(r),
		res:   NewOutgoingResponse(w),
		route: &ActivatedRoute{Method: r.Method, Path: r.URL.Path},
		scope: newScope(),
	}

	for _, p := range c.cfg.Providers {
		p(c)
	}

	return c
}

// Request returns the incoming request view.
func (c *Context) Request() *IncomingRequest { return c.req }

// Response returns the outgoing response builder.
func (c *Context) Response() *OutgoingResponse { return c.res }

// Route returns the activated route.
func (c *Context) Route() *ActivatedRoute { return c.route }

// Logger returns the configured logger.
func (c *Context) Logger() Logger { return c.cfg.Logger }

// Process runs the full pipeline for the match: guards, resolvers, the handler and finally the
// response's modifier chain. A nil match is answered with a 404. Failures are never returned, they are
// rendered into the response. The only error is [ErrAlreadyProcessed].
func (c *Context) Process(ctx context.Context, m *Match) error {
	if c.processing {
		return ErrAlreadyProcessed
	}

	c.processing = true
	if err := c.process(ctx, m); err != nil {
		c.ProcessError(ctx, m, err)
	}

	return nil
}

func (c *Context) process(ctx context.Context, m *Match) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("bpipe: panic while processing: %v", p)
		}
	}()

	if m == nil {
		return NewError(CodeNotFound, nil)
	}

	c.match = m
	if m.Route != nil {
		c.route = m.Route
	}

	ok, err := c.checkGuards(ctx, m.Guards)
	c.guardHeader = c.res.Header()

	if err != nil || !ok {
		return err
	}

	if err := c.resolveData(ctx, m); err != nil {
		return err
	}

	if m.Handler == nil {
		return NewError(CodeNotImplemented, nil)
	}

	if err := Wrap(m.Handler, m.Middleware...).ServeRequest(ctx, c); err != nil {
		return err
	}

	return c.res.Finish(ctx)
}

// ProcessError translates err into an [*Error] and renders it, at most once. Nothing is written when
// the response was already sent. Status, body and modifiers are reset but the headers set by the guard
// chain (e.g. CORS) are kept. If rendering fails a plain 500 is written instead, as long as the wire is
// still untouched.
func (c *Context) ProcessError(ctx context.Context, m *Match, err error) {
	herr := AsError(err)

	switch {
	case CodeOf(err) == CodeUnknown:
		c.cfg.Logger.LogUnhandledError(err)
	case c.cfg.TraceErrors && herr.Unwrap() != nil:
		c.cfg.Logger.LogUnhandledError(herr)
	}

	if c.cfg.OnError != nil {
		c.cfg.OnError(ctx, c, herr)
	}

	if c.res.Sent() {
		return
	}

	if rerr := c.resetForError(); rerr != nil {
		c.cfg.Logger.LogRenderError(rerr)
		return
	}

	if hdr := herr.Header(); len(hdr) > 0 {
		_ = c.res.AssignHeaders(hdr)
	}

	rerr := c.rendererFor(m).RenderError(ctx, c, herr)
	if rerr == nil && !c.res.Sent() {
		rerr = c.res.Finish(ctx)
	}

	if rerr == nil {
		return
	}

	c.cfg.Logger.LogRenderError(rerr)
	if c.res.Sent() {
		return
	}

	// if all fails we don't want the client to end up with a white screen so
	// we render a 500 error with the standard text.
	_ = c.resetForError()
	_ = c.res.SetStatus(http.StatusInternalServerError)
	_ = c.res.SetHeader("Content-Type", "text/plain; charset=utf-8")

	if ferr := c.res.SendString(ctx, CodeInternalServerError.Text()); ferr != nil {
		c.cfg.Logger.LogFlushError(ferr)
	}
}

func (c *Context) resetForError() error {
	if err := c.res.Reset(); err != nil {
		return err
	}

	return c.res.AssignHeaders(c.guardHeader)
}

func (c *Context) rendererFor(m *Match) ErrorRenderer {
	if m != nil && m.Handler != nil {
		if r, ok := m.Handler.(ErrorRenderer); ok {
			return r
		}
	}

	return c.cfg.Renderer
}

// UpgradeHandler takes over a connection for the protocol named in the request's Upgrade header.
type UpgradeHandler interface {
	Protocol() string
	Accept(ctx context.Context, c *Context, header http.Header) error
}

// Upgrade hands the connection to the upgrade handler registered for the requested protocol.
func (c *Context) Upgrade(ctx context.Context, header http.Header) error {
	protocol := strings.ToLower(c.req.Header().Get("Upgrade"))
	if protocol == "" {
		return NewError(CodeUpgradeRequired, errors.New("no Upgrade header in request"))
	}

	h, ok := lo.Find(c.cfg.UpgradeHandlers, func(h UpgradeHandler) bool {
		return strings.ToLower(h.Protocol()) == protocol
	})
	if !ok {
		return NewError(CodeNotImplemented, errors.Newf("no handler for upgrade protocol %q", protocol))
	}

	return h.Accept(ctx, c, header)
}

// Abort writes a minimal response straight to the connection and closes it. When the wire cannot hand
// over its connection the response is written the regular way, with "Connection: close".
func (c *Context) Abort(ctx context.Context, code Code, message string, header http.Header) error {
	if message == "" {
		message = code.Text()
	}

	hdr := http.Header{}
	hdr.Set("Connection", "close")
	hdr.Set("Content-Type", "text/plain")
	for k, v := range header {
		hdr[http.CanonicalHeaderKey(k)] = v
	}

	hj, ok := c.wire.(Hijacker)
	if !ok {
		return c.abortRegular(ctx, code, message, hdr)
	}

	conn, brw, err := hj.Hijack()
	if errors.Is(err, http.ErrNotSupported) {
		return c.abortRegular(ctx, code, message, hdr)
	} else if err != nil {
		return err
	}

	defer conn.Close()

	resp := &http.Response{
		StatusCode:    int(code),
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        hdr,
		ContentLength: int64(len(message)),
		Body:          io.NopCloser(strings.NewReader(message)),
		Close:         true,
	}

	if err := resp.Write(brw); err != nil {
		return errors.Wrap(err, "write abort response")
	}

	return errors.Wrap(brw.Flush(), "flush abort response")
}

func (c *Context) abortRegular(ctx context.Context, code Code, message string, hdr http.Header) error {
	if err := c.res.Reset(); err != nil {
		return err
	}

	_ = c.res.SetStatus(int(code))
	_ = c.res.AssignHeaders(hdr)

	return c.res.SendString(ctx, message)
}

// ScopeProvider registers something in a request's scope, see [Scoped].
type ScopeProvider func(c *Context)

// Scoped creates a provider that registers ctor for every request.
func Scoped[T any](ctor func(c *Context) (T, error)) ScopeProvider {
	return func(c *Context) { Provide(c, ctor) }
}

type scope struct {
	ctors     map[reflect.Type]func(c *Context) (any, error)
	vals      map[reflect.Type]any
	resolving map[reflect.Type]bool
}

func newScope() scope {
	return scope{
		ctors:     map[reflect.Type]func(c *Context) (any, error){},
		vals:      map[reflect.Type]any{},
		resolving: map[reflect.Type]bool{},
	}
}

// Provide registers a constructor for T in the request's scope. It is called at most once, on the
// first [Resolve].
func Provide[T any](c *Context, ctor func(c *Context) (T, error)) {
	typ := reflect.TypeFor[T]()
	delete(c.scope.vals, typ)
	c.scope.ctors[typ] = func(c *Context) (any, error) { return ctor(c) }
}

// Store puts a value into the request's scope directly.
func Store[T any](c *Context, v T) {
	c.scope.vals[reflect.TypeFor[T]()] = v
}

// Resolve returns the value of type T from the request's scope, constructing it when necessary. The
// request, response, route and context itself are always available.
func Resolve[T any](c *Context) (res T, err error) {
	typ := reflect.TypeFor[T]()

	switch v := any(&res).(type) {
	case **Context:
		*v = c
		return res, nil
	case **IncomingRequest:
		*v = c.req
		return res, nil
	case **OutgoingResponse:
		*v = c.res
		return res, nil
	case **ActivatedRoute:
		*v = c.route
		return res, nil
	}

	if val, ok := c.scope.vals[typ]; ok {
		res, _ = val.(T)
		return res, nil
	}

	ctor, ok := c.scope.ctors[typ]
	if !ok {
		return res, errors.Newf("bpipe: nothing provided for %s", typ)
	}

	if c.scope.resolving[typ] {
		return res, errors.Newf("bpipe: cyclic dependency while resolving %s", typ)
	}

	c.scope.resolving[typ] = true
	defer delete(c.scope.resolving, typ)

	val, err := ctor(c)
	if err != nil {
		return res, errors.Wrapf(err, "construct %s", typ)
	}

	c.scope.vals[typ] = val
	res, _ = val.(T)

	return res, nil
}

// modifierOf returns the request's instance of a modifier, constructing and registering it on the
// response on first use.
func modifierOf[T Modifier](c *Context, ctor func(c *Context) T) T {
	if v, err := Resolve[T](c); err == nil {
		return v
	}

	v := ctor(c)
	Store(c, v)
	c.res.Use(v)

	return v
}
