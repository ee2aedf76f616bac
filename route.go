package bpipe

import (
	"context"
	"slices"

	"github.com/samber/lo"
)

// ActivatedRoute describes the route that matched the request. It is handed to guards and resolvers, and
// resolvers store their results in Data.
type ActivatedRoute struct {
	Method  string
	Pattern string
	Path    string
	Params  map[string]string
	Data    map[string]any
}

// Param returns a path parameter by name, or an empty string.
func (r *ActivatedRoute) Param(name string) string {
	if r == nil {
		return ""
	}

	return r.Params[name]
}

// Handler serves a request that passed all of its guards. It formulates the response on the [Context]
// and returns an error to have it rendered instead.
type Handler interface {
	ServeRequest(ctx context.Context, c *Context) error
}

// HandlerFunc allow casting a function to implement [Handler].
type HandlerFunc func(ctx context.Context, c *Context) error

// ServeRequest implements the [Handler] interface.
func (f HandlerFunc) ServeRequest(ctx context.Context, c *Context) error {
	return f(ctx, c)
}

// Resolver computes route data after the guards passed and before the handler is called.
type Resolver func(ctx context.Context, c *Context) (any, error)

// Match is what a route resolver hands to [Context.Process]: everything needed to serve one request.
type Match struct {
	Route      *ActivatedRoute
	Guards     []Guard
	Resolvers  map[string]Resolver
	Middleware []Middleware
	Handler    Handler
}

// resolveData runs the resolvers ordered by key and stores the results on the route.
func (c *Context) resolveData(ctx context.Context, m *Match) error {
	if len(m.Resolvers) < 1 {
		return nil
	}

	if c.route.Data == nil {
		c.route.Data = make(map[string]any, len(m.Resolvers))
	}

	keys := lo.Keys(m.Resolvers)
	slices.Sort(keys)

	for _, key := range keys {
		val, err := m.Resolvers[key](ctx, c)
		if err != nil {
			return err
		}

		c.route.Data[key] = val
	}

	return nil
}
