package bpipe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// IncomingRequest is a read-only view over the request. Metadata is computed once at construction, the
// body is drained lazily on first use and memoized for every later (or concurrent) reader.
type IncomingRequest struct {
	raw      *http.Request
	uri      *url.URL
	clientIP string
	secure   bool

	bodyOnce sync.Once
	body     []byte
	bodyErr  error
}

// NewIncomingRequest builds the view. X-Real-IP overrides the client address and X-Forwarded-Proto
// overrides the scheme as seen by the proxy in front of us.
func NewIncomingRequest(r *http.Request) *IncomingRequest {
	uri := new(url.URL)
	*uri = *r.URL

	uri.Scheme, uri.Host = "http", r.Host
	secure := r.TLS != nil
	if secure {
		uri.Scheme = "https"
	}

	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}

	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		clientIP = realIP
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		uri.Scheme = strings.TrimSuffix(strings.ToLower(proto), ":")
		secure = strings.HasPrefix(uri.Scheme, "https")
	}

	return &IncomingRequest{raw: r, uri: uri, clientIP: clientIP, secure: secure}
}

// Raw returns the underlying standard library request.
func (r *IncomingRequest) Raw() *http.Request { return r.raw }

// Method is the http method used for the request.
func (r *IncomingRequest) Method() string { return r.raw.Method }

// URL is the request url including the scheme and host, as seen by the client.
func (r *IncomingRequest) URL() *url.URL { return r.uri }

// Header is the request header map. It must not be modified.
func (r *IncomingRequest) Header() http.Header { return r.raw.Header }

// HTTPVersion returns the protocol version, e.g. "HTTP/1.1".
func (r *IncomingRequest) HTTPVersion() string { return r.raw.Proto }

// ClientIP is the requester's ip address.
func (r *IncomingRequest) ClientIP() string { return r.clientIP }

// Secure reports whether the client connected over https.
func (r *IncomingRequest) Secure() bool { return r.secure }

// Query returns the parsed query string.
func (r *IncomingRequest) Query() url.Values { return r.uri.Query() }

// Body drains the request body on first call and returns the same buffer on every later call. Concurrent
// callers block on the first drain, the stream is never read twice.
func (r *IncomingRequest) Body(ctx context.Context) ([]byte, error) {
	r.bodyOnce.Do(func() {
		if r.raw.Body == nil {
			r.body = []byte{}
			return
		}

		r.body, r.bodyErr = io.ReadAll(contextReader{ctx: ctx, r: r.raw.Body})
		if r.bodyErr != nil {
			r.bodyErr = errors.Wrap(r.bodyErr, "read request body")
		}
	})

	return r.body, r.bodyErr
}

// contextReader stops reading as soon as the context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
