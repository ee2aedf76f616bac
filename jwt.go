package bpipe

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// BearerOptions configures [BearerGuard].
type BearerOptions struct {
	// Keyfunc returns the key to verify a token with.
	Keyfunc jwt.Keyfunc
	// Methods restricts the accepted signing algorithms, e.g. "HS256".
	Methods []string
	// Issuer and Audience are verified when set.
	Issuer   string
	Audience string
	// Realm is advertised in the WWW-Authenticate header of rejections.
	Realm string
}

// BearerGuard verifies a JWT bearer token and publishes its claims, see [ClaimsOf]. Requests without a
// valid token are rejected with a 401 that carries a bearer challenge.
func BearerGuard[C jwt.Claims](newClaims func() C, opts BearerOptions) Guard {
	var popts []jwt.ParserOption
	if len(opts.Methods) > 0 {
		popts = append(popts, jwt.WithValidMethods(opts.Methods))
	}

	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}

	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}

	parser := jwt.NewParser(popts...)

	return Service(func(c *Context) (GuardService, error) {
		return GuardServiceFunc(func(context.Context, *ActivatedRoute) (bool, error) {
			auth := NewAuthorization(c.Request())

			reject := func(cause error) error {
				ch := Challenge{Scheme: "Bearer", Realm: opts.Realm}.withDefaults()
				return NewError(CodeUnauthorized, cause).WithHeader("WWW-Authenticate", ch.String())
			}

			if auth.Scheme() != "bearer" || auth.Token() == "" {
				return false, reject(errors.New("missing bearer token"))
			}

			claims := newClaims()
			if _, err := parser.ParseWithClaims(auth.Token(), claims, opts.Keyfunc); err != nil {
				return false, reject(errors.Wrap(err, "invalid bearer token"))
			}

			Store(c, claims)
			return true, nil
		}), nil
	}).Named("bearer")
}

// ClaimsOf returns the claims published by a [BearerGuard] of the same claims type.
func ClaimsOf[C jwt.Claims](c *Context) (C, error) {
	return Resolve[C](c)
}
