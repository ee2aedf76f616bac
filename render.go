package bpipe

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrorRenderer turns an error into a response: it sets the status to the error's code, serializes the
// message and payload into the body and finishes the response. A handler that implements it renders its
// own errors.
type ErrorRenderer interface {
	RenderError(ctx context.Context, c *Context, err *Error) error
}

// ErrorRendererFunc allow casting a function to implement [ErrorRenderer].
type ErrorRendererFunc func(ctx context.Context, c *Context, err *Error) error

// RenderError implements the [ErrorRenderer] interface.
func (f ErrorRendererFunc) RenderError(ctx context.Context, c *Context, err *Error) error {
	return f(ctx, c, err)
}

// PlainTextRenderer renders the error's message as text.
type PlainTextRenderer struct{}

func (PlainTextRenderer) RenderError(ctx context.Context, c *Context, err *Error) error {
	res := c.Response()
	if rerr := errors.CombineErrors(
		res.SetStatus(statusOf(err)),
		res.SetHeader("Content-Type", "text/plain; charset=utf-8"),
	); rerr != nil {
		return rerr
	}

	return res.SendString(ctx, err.Message())
}

// JSONRenderer renders errors as json. A [*ValidationResult] payload is rendered as
// {"type": key, "errors": flattened}, any other payload as {"message": msg, "context": payload} and
// errors without payload as {"code": code, "message": msg}.
type JSONRenderer struct {
	Pretty bool
}

type jsonErrorBody struct {
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Context any    `json:"context,omitempty"`

	Type   string              `json:"type,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func (r JSONRenderer) RenderError(ctx context.Context, c *Context, err *Error) error {
	var body jsonErrorBody

	switch payload := err.Payload().(type) {
	case *ValidationResult:
		body.Type, body.Errors = payload.Key, payload.Flatten()
	case nil:
		body.Code, body.Message = err.Code(), err.Message()
	default:
		body.Message, body.Context = err.Message(), payload
	}

	res := c.Response()
	if rerr := res.SetStatus(statusOf(err)); rerr != nil {
		return rerr
	}

	if rerr := res.JSON(body, JSONOptions{Pretty: r.Pretty}); rerr != nil {
		return rerr
	}

	return res.Finish(ctx)
}

// statusOf never lets an unknown code reach the wire.
func statusOf(err *Error) int {
	if err.Code() < 100 || err.Code() > 999 {
		return int(CodeInternalServerError)
	}

	return int(err.Code())
}
