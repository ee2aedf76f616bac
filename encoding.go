package bpipe

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
)

// Encoding compresses the response body with gzip when the client accepts it and the content type was
// configured. It does nothing until configured.
type Encoding struct {
	accept *AcceptEncoding
	types  []string
	level  int
}

// EncodingOf returns the encoding modifier of the request, registered on first use.
func EncodingOf(c *Context) *Encoding {
	return modifierOf(c, func(c *Context) *Encoding { return NewEncoding(c.Request()) })
}

// NewEncoding parses the Accept-Encoding header of the request.
func NewEncoding(req *IncomingRequest) *Encoding {
	return &Encoding{accept: NewAcceptEncoding(req), level: gzip.DefaultCompression}
}

// Configure enables compression for the given content types, e.g. "text/css".
func (e *Encoding) Configure(contentTypes ...string) *Encoding {
	e.types = append(e.types, contentTypes...)
	return e
}

// Level sets the gzip compression level.
func (e *Encoding) Level(lvl int) *Encoding {
	e.level = lvl
	return e
}

// ModifyResponse implements [Modifier]. Partial content is never compressed.
func (e *Encoding) ModifyResponse(_ context.Context, res *OutgoingResponse) error {
	body := res.Body()
	if len(e.types) < 1 || body == nil ||
		res.Status() == http.StatusPartialContent ||
		res.GetHeader("Content-Encoding") != "" ||
		!e.accept.Accepts("gzip") {
		return nil
	}

	typ, _, _ := strings.Cut(res.GetHeader("Content-Type"), ";")
	if !containsFold(e.types, strings.ToLower(strings.TrimSpace(typ))) {
		return nil
	}

	gzw, err := gzip.NewWriterLevel(io.Discard, e.level)
	if err != nil {
		return errors.Wrap(err, "init gzip writer")
	}

	pr, pw := io.Pipe()
	gzw.Reset(pw)

	go func() {
		_, err := io.Copy(gzw, body)
		err = errors.CombineErrors(err, gzw.Close())
		if c, ok := body.(io.Closer); ok {
			err = errors.CombineErrors(err, c.Close())
		}

		pw.CloseWithError(err)
	}()

	if err := res.Stream(pr); err != nil {
		pr.Close()
		return err
	}

	_ = res.DelHeader("Content-Length")
	_ = res.SetHeader("Vary", "Accept-Encoding")

	return res.SetHeader("Content-Encoding", "gzip")
}
