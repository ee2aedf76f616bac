// Package bpipetest provides test helpers for code built on bpipe.
//
// The [Recorder] is a [bpipe.Wire] that records what reaches it, including how often the head was
// written, so tests can assert that a response is physically written exactly once.
//
// Example:
//
//	rec := bpipetest.CallHandler(handler, httptest.NewRequest(http.MethodGet, "/", nil))
//	require.Equal(t, 1, rec.NumWriteHead)
package bpipetest

import (
	"bytes"
	"context"
	"net/http"

	"github.com/advdv/bpipe"
)

// Recorder is a [bpipe.Wire] that records the written response.
type Recorder struct {
	Code   int
	Header http.Header
	Body   bytes.Buffer

	NumWriteHead int
	NumWrite     int
	NumEnd       int

	headersSent bool
	finished    bool
}

// NewRecorder inits a recorder.
func NewRecorder() *Recorder {
	return &Recorder{Header: http.Header{}}
}

func (r *Recorder) WriteHead(status int, header http.Header) error {
	r.NumWriteHead++
	if r.headersSent {
		return bpipe.ErrHeadersSent
	}

	r.headersSent, r.Code, r.Header = true, status, header.Clone()
	return nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.NumWrite++
	if !r.headersSent {
		return 0, bpipe.ErrWireHeadNotWritten
	}

	return r.Body.Write(p)
}

func (r *Recorder) End() error {
	r.NumEnd++
	r.finished = true

	return nil
}

func (r *Recorder) HeadersSent() bool { return r.headersSent }
func (r *Recorder) Finished() bool    { return r.finished }

var _ bpipe.Wire = &Recorder{}

// NewContext creates a context for req that writes into a fresh recorder.
func NewContext(req *http.Request, cfg bpipe.Config) (*bpipe.Context, *Recorder) {
	rec := NewRecorder()
	return bpipe.NewContext(rec, req, cfg), rec
}

// Process runs the match through the pipeline and returns the recorded response.
func Process(req *http.Request, m *bpipe.Match, cfg bpipe.Config) *Recorder {
	rec := NewRecorder()
	bpipe.Serve(req.Context(), rec, req, m, cfg)

	return rec
}

// CallHandler runs a handler without any guards and returns the recorded response.
func CallHandler(handler bpipe.HandlerFunc, req *http.Request) *Recorder {
	return Process(req, &bpipe.Match{
		Route:   &bpipe.ActivatedRoute{Method: req.Method, Path: req.URL.Path},
		Handler: handler,
	}, bpipe.Config{})
}

// GuardResult runs a single guard against req and reports what it decided, together with the
// response state it left behind.
func GuardResult(ctx context.Context, g bpipe.Guard, req *http.Request) (rec *Recorder, ok bool, err error) {
	c, rec := NewContext(req, bpipe.Config{})
	ok, err = bpipe.CheckGuards(ctx, c, g)

	return rec, ok, err
}
