package bpipe

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// CORSOptions configures [CORSGuard].
type CORSOptions struct {
	// Origins lists the allowed origins. A single "*" allows any origin: it is echoed back when
	// credentials are allowed and sent as "*" otherwise.
	Origins []string `yaml:"origins"`
	// Methods defaults to HEAD, GET, POST, PUT, PATCH and DELETE.
	Methods []string `yaml:"methods"`
	// Headers defaults to Content-Type.
	Headers []string `yaml:"headers"`
	// Credentials sets Access-Control-Allow-Credentials.
	Credentials bool `yaml:"credentials"`
	// MaxAge is in seconds, nil results in -1.
	MaxAge *int `yaml:"max_age"`
}

var defaultCORSMethods = []string{"HEAD", "GET", "POST", "PUT", "PATCH", "DELETE"}

// CORSGuard sets the CORS headers on the response. Requests from an origin that is not allowed are
// rejected with a 400. Preflight requests (OPTIONS with Access-Control-Request-Method) are answered with
// a 204 right away.
func CORSGuard(opts CORSOptions) Guard {
	methods := lo.Map(lo.Ternary(len(opts.Methods) > 0, opts.Methods, defaultCORSMethods),
		func(m string, _ int) string { return strings.ToUpper(m) })
	headers := lo.Ternary(len(opts.Headers) > 0, opts.Headers, []string{"Content-Type"})
	maxAge := -1
	if opts.MaxAge != nil {
		maxAge = *opts.MaxAge
	}

	return Service(func(c *Context) (GuardService, error) {
		return GuardServiceFunc(func(ctx context.Context, _ *ActivatedRoute) (bool, error) {
			origin, ok := allowedOrigin(c.Request(), opts.Origins, opts.Credentials)
			if !ok {
				return false, Errorf(CodeBadRequest, "Origin does not match CORS")
			}

			res := c.Response()
			if err := res.AssignHeaders(http.Header{
				"Access-Control-Allow-Origin":      {origin},
				"Access-Control-Allow-Methods":     {strings.Join(methods, ", ")},
				"Access-Control-Allow-Headers":     {strings.Join(headers, ", ")},
				"Access-Control-Allow-Credentials": {strconv.FormatBool(opts.Credentials)},
				"Access-Control-Max-Age":           {strconv.Itoa(maxAge)},
			}); err != nil {
				return false, err
			}

			if origin != "*" {
				_ = res.SetHeader("Vary", "Origin")
			}

			req := c.Request()
			if req.Method() == http.MethodOptions && req.Header().Get("Access-Control-Request-Method") != "" {
				_ = res.SetStatus(http.StatusNoContent)
				return true, res.Finish(ctx)
			}

			return true, nil
		}), nil
	}).Named("cors")
}

// allowedOrigin falls back to the Host header when the request carries no Origin.
func allowedOrigin(req *IncomingRequest, origins []string, creds bool) (string, bool) {
	reqOrigin := req.Header().Get("Origin")
	if reqOrigin == "" {
		reqOrigin = req.Raw().Host
	}

	switch {
	case reqOrigin == "":
		return "", false
	case len(origins) == 1 && origins[0] == "*":
		return lo.Ternary(creds, reqOrigin, "*"), true
	case slices.Contains(origins, reqOrigin):
		return reqOrigin, true
	default:
		return "", false
	}
}
