package bpipe

import (
	"context"

	"github.com/cockroachdb/errors"
)

// GuardService is a stateful guard. It is constructed fresh for every request.
type GuardService interface {
	CheckGuard(ctx context.Context, route *ActivatedRoute) (bool, error)
}

// GuardServiceFunc allow casting a function to implement [GuardService].
type GuardServiceFunc func(ctx context.Context, route *ActivatedRoute) (bool, error)

// CheckGuard implements the [GuardService] interface.
func (f GuardServiceFunc) CheckGuard(ctx context.Context, route *ActivatedRoute) (bool, error) {
	return f(ctx, route)
}

// PredicateFunc is a stateless guard.
type PredicateFunc func(ctx context.Context, route *ActivatedRoute) (bool, error)

// ServiceFactory constructs a [GuardService] from the request's scope, see [Provide] and [Resolve].
type ServiceFactory func(c *Context) (GuardService, error)

type guardKind int

const (
	guardPredicate guardKind = iota + 1
	guardService
)

// Guard is an admission check that runs before the handler. It is either a predicate or a service, as
// created by [Predicate] and [Service]. A guard may:
//   - return true to let the request through to the next guard;
//   - return false to reject the request with a 412;
//   - return an error to reject it with that error, a plain error becomes a 500;
//   - send the response itself, which stops the chain without a failure.
type Guard struct {
	name      string
	kind      guardKind
	predicate PredicateFunc
	factory   ServiceFactory
}

// Predicate creates a guard from a function.
func Predicate(fn PredicateFunc) Guard {
	return Guard{kind: guardPredicate, predicate: fn}
}

// Service creates a guard that is constructed for every request.
func Service(factory ServiceFactory) Guard {
	return Guard{kind: guardService, factory: factory}
}

// Named returns a copy of the guard with a name that shows up in errors.
func (g Guard) Named(name string) Guard {
	g.name = name
	return g
}

func (g Guard) String() string {
	if g.name != "" {
		return g.name
	}

	switch g.kind {
	case guardPredicate:
		return "predicate"
	case guardService:
		return "service"
	default:
		return "invalid"
	}
}

func (g Guard) check(ctx context.Context, c *Context) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, errors.Newf("guard %s panicked: %v", g, p)
		}
	}()

	switch g.kind {
	case guardPredicate:
		return g.predicate(ctx, c.route)
	case guardService:
		svc, err := g.factory(c)
		if err != nil {
			return false, errors.Wrapf(err, "construct guard %s", g)
		}

		return svc.CheckGuard(ctx, c.route)
	default:
		return false, errors.Newf("guard %s: neither a predicate nor a service", g)
	}
}

// checkGuards evaluates the guards strictly in order. It returns false without an error when a guard
// answered the request itself.
func (c *Context) checkGuards(ctx context.Context, guards []Guard) (bool, error) {
	for _, g := range guards {
		ok, err := g.check(ctx, c)
		if err != nil {
			return false, err
		}

		if c.res.Sent() {
			return false, nil
		}

		if !ok {
			return false, NewError(CodePreconditionFailed, nil)
		}
	}

	return true, nil
}

// CheckGuards evaluates guards against the context outside of [Context.Process], for example to test a
// guard in isolation.
func CheckGuards(ctx context.Context, c *Context, guards ...Guard) (bool, error) {
	return c.checkGuards(ctx, guards)
}
