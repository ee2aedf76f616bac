package bpipe

import (
	"net/http"
	"net/url"
	"strings"
)

// Mount mounts a Handler on a sub-path pattern. Guards, middleware and the handler see the request with
// the mount prefix stripped from the path.
func (m *ServeMux) Mount(pattern string, handler Handler, opts ...RouteOption) {
	method, path := splitMethodPattern(pattern)
	rt := m.route(method+path, handler, opts...)

	m.mount(method, path, stripPrefix(path, ToStd(rt, m.cfg)), rt.Name)
}

// MountFunc mounts a HandlerFunc on a sub-path pattern, see [ServeMux.Mount].
func (m *ServeMux) MountFunc(pattern string, handler HandlerFunc, opts ...RouteOption) {
	m.Mount(pattern, handler, opts...)
}

// MountStd mounts a standard library [http.Handler] on a sub-path pattern. The mounted handler receives
// requests with the mount prefix stripped from the path, and bypasses the pipeline.
func (m *ServeMux) MountStd(pattern string, handler http.Handler) {
	method, path := splitMethodPattern(pattern)

	m.mount(method, path, stripPrefix(path, handler), "")
}

// mount registers both the exact prefix and the subtree below it, the name goes to the exact one.
func (m *ServeMux) mount(method, path string, handler http.Handler, name string) {
	if path == "" {
		m.handle(method+"/", handler, name)
		return
	}

	m.handle(method+path, handler, name)
	m.handle(method+path+"/", handler)
}

func splitMethodPattern(pattern string) (method, path string) {
	if idx := strings.LastIndex(pattern, "/"); idx > 0 {
		prefix := pattern[:idx]
		if spaceIdx := strings.Index(prefix, " "); spaceIdx >= 0 {
			return pattern[:spaceIdx+1], strings.TrimSuffix(pattern[spaceIdx+1:], "/")
		}
	}

	return "", strings.TrimSuffix(pattern, "/")
}

func stripPrefix(prefix string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, prefix)
		if p == "" {
			p = "/"
		}

		rp := ""
		if r.URL.RawPath != "" {
			rp = strings.TrimPrefix(r.URL.RawPath, prefix)
			if rp == "" {
				rp = "/"
			}
		}

		r2 := new(http.Request)
		*r2 = *r
		r2.URL = new(url.URL)
		*r2.URL = *r.URL
		r2.URL.Path = p
		r2.URL.RawPath = rp

		handler.ServeHTTP(w, r2)
	})
}
