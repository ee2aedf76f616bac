package bpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Modifier is a response pipeline step that may alter the status, headers or body before the physical
// write. A modifier may also send the response itself, which stops the rest of the chain.
type Modifier interface {
	ModifyResponse(ctx context.Context, res *OutgoingResponse) error
}

// ModifierFunc allows casting a function to implement [Modifier].
type ModifierFunc func(ctx context.Context, res *OutgoingResponse) error

// ModifyResponse implements the [Modifier] interface.
func (f ModifierFunc) ModifyResponse(ctx context.Context, res *OutgoingResponse) error {
	return f(ctx, res)
}

// JSONOptions configures [OutgoingResponse.JSON].
type JSONOptions struct {
	// Pretty indents the output with tabs.
	Pretty bool
	// PrefixOutput prefixes the output with ")]}',\n" to prevent XSSI.
	PrefixOutput bool
	// Keep drops every top-level key not listed. Arrays are filtered element-wise.
	Keep []string
}

const xssiPrefix = ")]}',\n"

// OutgoingResponse holds the response state and drives the modifier chain. It is the single writer of
// the [Wire]: [OutgoingResponse.Finish] results in exactly one physical write no matter how often it is
// called, or from where.
//
// The response belongs to exactly one request and is not safe for concurrent use.
type OutgoingResponse struct {
	wire      Wire
	status    int
	header    http.Header
	body      io.Reader
	modifiers []Modifier

	finishing bool
	stopped   bool
}

// NewOutgoingResponse inits a response that will be written to w.
func NewOutgoingResponse(w Wire) *OutgoingResponse {
	return &OutgoingResponse{wire: w, status: http.StatusOK, header: http.Header{}}
}

// Sent reports whether the physical write has started. Once true, no mutation reaches the wire.
func (r *OutgoingResponse) Sent() bool {
	return r.wire.HeadersSent() || r.wire.Finished()
}

// Status is the status code that will be written, 200 by default.
func (r *OutgoingResponse) Status() int { return r.status }

// SetStatus sets the status code.
func (r *OutgoingResponse) SetStatus(code int) error {
	if r.Sent() {
		return ErrHeadersSent
	}

	r.status = code
	return nil
}

// Header returns a copy of the headers that will be written.
func (r *OutgoingResponse) Header() http.Header { return r.header.Clone() }

// GetHeader returns the first value of a previously set header.
func (r *OutgoingResponse) GetHeader(name string) string { return r.header.Get(name) }

// HeaderValues returns all values of a previously set header.
func (r *OutgoingResponse) HeaderValues(name string) []string { return r.header.Values(name) }

// SetHeader sets a header by name, replacing previous values.
func (r *OutgoingResponse) SetHeader(name string, values ...string) error {
	if r.Sent() {
		return ErrHeadersSent
	}

	if len(values) == 0 {
		r.header.Del(name)
		return nil
	}

	r.header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	return nil
}

// DelHeader removes a header.
func (r *OutgoingResponse) DelHeader(name string) error {
	if r.Sent() {
		return ErrHeadersSent
	}

	r.header.Del(name)
	return nil
}

// AssignHeaders sets multiple headers, replacing the ones set previously.
func (r *OutgoingResponse) AssignHeaders(h http.Header) error {
	if r.Sent() {
		return ErrHeadersSent
	}

	for k, v := range h {
		r.header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	return nil
}

// Body returns the output stream, nil if none was set.
func (r *OutgoingResponse) Body() io.Reader { return r.body }

// Stream sets the output stream. If it implements io.Closer it is closed after it was drained.
func (r *OutgoingResponse) Stream(body io.Reader) error {
	if r.Sent() {
		return ErrHeadersSent
	}

	r.body = body
	return nil
}

// Send sets data as the body and finishes the response. A nil data sends no body at all.
func (r *OutgoingResponse) Send(ctx context.Context, data []byte) error {
	if data != nil {
		if err := r.Stream(bytes.NewReader(data)); err != nil {
			return err
		}
	}

	return r.Finish(ctx)
}

// SendString is [OutgoingResponse.Send] for strings.
func (r *OutgoingResponse) SendString(ctx context.Context, s string) error {
	return r.Send(ctx, []byte(s))
}

// Redirect finishes the response with a redirect to location, 301 if permanent and 302 otherwise.
func (r *OutgoingResponse) Redirect(ctx context.Context, location string, permanent bool) error {
	status := http.StatusFound
	if permanent {
		status = http.StatusMovedPermanently
	}

	if err := r.SetStatus(status); err != nil {
		return err
	}

	if err := r.SetHeader("Location", location); err != nil {
		return err
	}

	return r.Finish(ctx)
}

// JSON serializes payload as the response body. String payloads are written as-is. The response is not
// finished, handlers may still add modifiers.
func (r *OutgoingResponse) JSON(payload any, opts ...JSONOptions) error {
	var opt JSONOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	data, err := encodeJSON(payload, opt)
	if err != nil {
		return errors.Wrap(err, "encode json response")
	}

	if opt.PrefixOutput {
		data = append([]byte(xssiPrefix), data...)
	}

	if err := r.SetHeader("Content-Type", "application/json"); err != nil {
		return err
	}

	if err := r.SetHeader("Content-Length", strconv.Itoa(len(data))); err != nil {
		return err
	}

	return r.Stream(bytes.NewReader(data))
}

// Use appends modifiers to the pipeline. A modifier that is already registered is not added twice.
func (r *OutgoingResponse) Use(mods ...Modifier) {
	for _, m := range mods {
		if m == nil || r.hasModifier(m) {
			continue
		}

		r.modifiers = append(r.modifiers, m)
	}
}

func (r *OutgoingResponse) hasModifier(m Modifier) bool {
	if !reflect.TypeOf(m).Comparable() {
		return false
	}

	return lo.ContainsBy(r.modifiers, func(e Modifier) bool {
		return reflect.TypeOf(e).Comparable() && e == m
	})
}

// Reset clears status, headers, body and modifiers so a completely new response can be formulated. It
// fails once the physical write started.
func (r *OutgoingResponse) Reset() error {
	if r.Sent() {
		return ErrHeadersSent
	}

	r.discardBody()
	r.status, r.header = http.StatusOK, http.Header{}
	r.modifiers, r.finishing, r.stopped = nil, false, false

	return nil
}

// discardBody closes a stream that will never be written.
func (r *OutgoingResponse) discardBody() {
	if c, ok := r.body.(io.Closer); ok {
		_ = c.Close()
	}

	r.body = nil
}

// Finish runs the modifiers in registration order and then writes the response. The chain stops early
// when a modifier sends the response itself. Repeated and nested calls collapse into a single physical
// write: a call made while finishing only marks the chain as done.
//
// When a modifier fails before anything was written the remaining chain and the body are discarded and
// the response is left unfinished, so the caller can still render the error.
func (r *OutgoingResponse) Finish(ctx context.Context) error {
	if r.finishing {
		r.stopped = true
		return nil
	}

	if r.Sent() {
		return nil
	}

	r.finishing = true

	for i := 0; i < len(r.modifiers) && !r.stopped; i++ {
		if r.Sent() {
			return nil
		}

		if err := r.modifiers[i].ModifyResponse(ctx, r); err != nil {
			if !r.Sent() {
				r.discardBody()
				r.modifiers, r.finishing, r.stopped = nil, false, false
			}

			return err
		}
	}

	if r.Sent() {
		return nil
	}

	return r.write(ctx)
}

// write performs the one physical write: with a body when a stream was set, without otherwise.
func (r *OutgoingResponse) write(ctx context.Context) error {
	if r.body == nil {
		status := r.status
		if status == http.StatusOK {
			status = http.StatusNoContent
		}

		if err := r.wire.WriteHead(status, r.header); err != nil {
			return errors.Wrap(err, "write head")
		}

		return r.wire.End()
	}

	if c, ok := r.body.(io.Closer); ok {
		defer c.Close()
	}

	if err := r.wire.WriteHead(r.status, r.header); err != nil {
		return errors.Wrap(err, "write head")
	}

	_, copyErr := io.Copy(r.wire, contextReader{ctx: ctx, r: r.body})
	if copyErr != nil {
		copyErr = errors.Wrap(copyErr, "stream body")
	}

	return errors.CombineErrors(copyErr, r.wire.End())
}

func encodeJSON(payload any, opt JSONOptions) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}

	if len(opt.Keep) > 0 {
		filtered, err := keepFields(payload, opt.Keep)
		if err != nil {
			return nil, err
		}

		payload = filtered
	}

	if opt.Pretty {
		return json.MarshalIndent(payload, "", "\t")
	}

	return json.Marshal(payload)
}

// keepFields round-trips the payload through its json form and drops unlisted keys.
func keepFields(payload any, keep []string) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	pick := func(v any) any {
		if m, ok := v.(map[string]any); ok {
			return lo.PickByKeys(m, keep)
		}

		return v
	}

	if arr, ok := generic.([]any); ok {
		return lo.Map(arr, func(el any, _ int) any { return pick(el) }), nil
	}

	return pick(generic), nil
}
