package bpipe

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// CookieOptions configures a cookie set with [Cookies.Set].
type CookieOptions struct {
	Expires  time.Time
	MaxAge   int
	Domain   string
	Path     string
	HTTPOnly bool
	SameSite http.SameSite
}

// DefaultCookieOptions are used when [Cookies.Set] is called without options.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{HTTPOnly: true, Path: "/"}
}

// Cookies parses the request's cookies and collects the cookies to set on the response. It is a
// [Modifier] that writes the collected cookies as Set-Cookie headers.
type Cookies struct {
	secure   bool
	received map[string]string
	names    []string
	set      map[string]string
}

// CookiesOf returns the cookies of the request, the modifier is registered on first use.
func CookiesOf(c *Context) *Cookies {
	return modifierOf(c, func(c *Context) *Cookies { return NewCookies(c.Request()) })
}

// NewCookies parses the Cookie header of the request. The first occurrence of a name wins, quoted
// values are unquoted and values are url-decoded.
func NewCookies(req *IncomingRequest) *Cookies {
	ck := &Cookies{secure: req.Secure(), received: map[string]string{}, set: map[string]string{}}

	for _, line := range req.Header().Values("Cookie") {
		for _, pair := range strings.Split(line, ";") {
			key, val, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}

			key, val = strings.TrimSpace(key), strings.TrimSpace(val)
			if len(val) > 1 && val[0] == '"' && val[len(val)-1] == '"' {
				val = val[1 : len(val)-1]
			}

			if _, exists := ck.received[key]; exists {
				continue
			}

			if dec, err := url.PathUnescape(val); err == nil {
				val = dec
			}

			ck.received[key] = val
		}
	}

	return ck
}

// Get returns a request cookie by name.
func (ck *Cookies) Get(name string) string { return ck.received[name] }

// All returns the request cookies.
func (ck *Cookies) All() map[string]string { return lo.Assign(ck.received) }

// Set adds a cookie to the response, replacing one set earlier with the same name. The Secure attribute
// always follows the request.
func (ck *Cookies) Set(name, value string, opts ...CookieOptions) error {
	opt := DefaultCookieOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	line, err := serializeCookie(name, value, opt, ck.secure)
	if err != nil {
		return err
	}

	if _, exists := ck.set[name]; !exists {
		ck.names = append(ck.names, name)
	}

	ck.set[name] = line
	return nil
}

// ModifyResponse implements [Modifier].
func (ck *Cookies) ModifyResponse(_ context.Context, res *OutgoingResponse) error {
	if len(ck.names) < 1 {
		return nil
	}

	return res.SetHeader("Set-Cookie", lo.Map(ck.names, func(n string, _ int) string { return ck.set[n] })...)
}

func validCookieText(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		if b := s[i]; b != '\t' && (b < 0x20 || b == 0x7f) {
			return false
		}
	}

	return true
}

func serializeCookie(name, value string, opt CookieOptions, secure bool) (string, error) {
	if !validCookieText(name) || strings.ContainsAny(name, "=; ") {
		return "", errors.Newf("cookie name %q is invalid", name)
	}

	parts := []string{name + "=" + url.PathEscape(value)}
	if opt.MaxAge > 0 {
		parts = append(parts, "Max-Age="+strconv.Itoa(opt.MaxAge))
	}

	if !opt.Expires.IsZero() {
		parts = append(parts, "Expires="+opt.Expires.UTC().Format(http.TimeFormat))
	}

	if opt.HTTPOnly {
		parts = append(parts, "HttpOnly")
	}

	if secure {
		parts = append(parts, "Secure")
	}

	if opt.Path != "" {
		parts = append(parts, "Path="+opt.Path)
	}

	if opt.Domain != "" {
		parts = append(parts, "Domain="+opt.Domain)
	}

	switch opt.SameSite {
	case http.SameSiteLaxMode:
		parts = append(parts, "SameSite=Lax")
	case http.SameSiteStrictMode:
		parts = append(parts, "SameSite=Strict")
	case http.SameSiteNoneMode:
		parts = append(parts, "SameSite=None")
	case http.SameSiteDefaultMode:
	}

	return strings.Join(parts, "; "), nil
}
