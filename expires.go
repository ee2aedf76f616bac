package bpipe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// ExpiresOptions configures [Expires].
type ExpiresOptions struct {
	// ExpiresIn is how long the client may cache the resource without asking again.
	ExpiresIn time.Duration
	// LastModified is the resource's modification time, it enables the 304 answer.
	LastModified time.Time
}

// Expires sets caching headers and answers conditional requests. It does nothing until configured.
type Expires struct {
	ifModifiedSince time.Time
	opts            *ExpiresOptions
	now             func() time.Time
}

// ExpiresOf returns the expires modifier of the request, registered on first use.
func ExpiresOf(c *Context) *Expires {
	return modifierOf(c, func(c *Context) *Expires { return NewExpires(c.Request()) })
}

// NewExpires parses the If-Modified-Since header of the request.
func NewExpires(req *IncomingRequest) *Expires {
	e := &Expires{now: time.Now}
	if hdr := req.Header().Get("If-Modified-Since"); hdr != "" {
		if t, err := http.ParseTime(hdr); err == nil {
			e.ifModifiedSince = t
		}
	}

	return e
}

// IfModifiedSince is the conditional timestamp sent by the client, zero if none.
func (e *Expires) IfModifiedSince() time.Time { return e.ifModifiedSince }

// Configure enables the modifier.
func (e *Expires) Configure(opts ExpiresOptions) *Expires {
	e.opts = &opts
	return e
}

// ModifyResponse answers with an empty 304 when the resource was not modified since the time the client
// sent, compared at second resolution. Otherwise it sets the Expires and Last-Modified headers.
func (e *Expires) ModifyResponse(ctx context.Context, res *OutgoingResponse) error {
	if e.opts == nil {
		return nil
	}

	lastMod := e.opts.LastModified
	if !e.ifModifiedSince.IsZero() && !lastMod.IsZero() && lastMod.Unix() == e.ifModifiedSince.Unix() {
		if c, ok := res.Body().(io.Closer); ok {
			_ = c.Close()
		}

		if err := res.Stream(nil); err != nil {
			return err
		}

		_ = res.DelHeader("Content-Length")
		_ = res.SetStatus(http.StatusNotModified)

		return res.Send(ctx, nil)
	}

	if e.opts.ExpiresIn > 0 {
		if err := res.SetHeader("Expires", e.now().Add(e.opts.ExpiresIn).UTC().Format(http.TimeFormat)); err != nil {
			return err
		}
	}

	if !lastMod.IsZero() {
		return res.SetHeader("Last-Modified", lastMod.UTC().Format(http.TimeFormat))
	}

	return nil
}
