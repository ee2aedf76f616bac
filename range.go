package bpipe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// RangeSource is a resource that can be served in byte ranges.
type RangeSource interface {
	Size(ctx context.Context) (int64, error)
	ReadRange(ctx context.Context, start, length int64) (io.ReadCloser, error)
}

// ReaderAtSource serves ranges from an io.ReaderAt of known size.
func ReaderAtSource(r io.ReaderAt, size int64) RangeSource {
	return readerAtSource{r: r, size: size}
}

type readerAtSource struct {
	r    io.ReaderAt
	size int64
}

func (s readerAtSource) Size(context.Context) (int64, error) { return s.size, nil }

func (s readerAtSource) ReadRange(_ context.Context, start, length int64) (io.ReadCloser, error) {
	return io.NopCloser(io.NewSectionReader(s.r, start, length)), nil
}

// FileSource serves ranges from a file on disk. The file is only opened when a range is read.
func FileSource(path string) RangeSource { return fileSource(path) }

type fileSource string

func (p fileSource) Size(context.Context) (int64, error) {
	fi, err := os.Stat(string(p))
	if err != nil {
		return 0, errors.Wrap(err, "stat range file")
	}

	return fi.Size(), nil
}

func (p fileSource) ReadRange(_ context.Context, start, length int64) (io.ReadCloser, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, errors.Wrap(err, "open range file")
	}

	return struct {
		io.Reader
		io.Closer
	}{io.NewSectionReader(f, start, length), f}, nil
}

// Range parses the Range header of the request and answers it from a configured source. Only single
// "bytes=<start>-[<end>]" ranges are understood, anything else is treated as no range at all.
type Range struct {
	start, end int64
	requested  bool
	hasEnd     bool

	accept   bool
	src      RangeSource
	maxChunk int64
}

// RangeOf returns the range modifier of the request, registered on first use.
func RangeOf(c *Context) *Range {
	return modifierOf(c, func(c *Context) *Range { return NewRange(c.Request()) })
}

// NewRange parses the Range header of the request.
func NewRange(req *IncomingRequest) *Range {
	r := &Range{}
	r.start, r.end, r.hasEnd, r.requested = ParseRange(req.Header().Get("Range"))

	return r
}

// ParseRange parses a header of the form "bytes=<start>-[<end>]".
func ParseRange(hdr string) (start, end int64, hasEnd, ok bool) {
	spec, found := strings.CutPrefix(strings.TrimSpace(hdr), "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, false
	}

	if endStr = strings.TrimSpace(endStr); endStr == "" {
		return start, 0, false, true
	}

	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false, false
	}

	return start, end, true, true
}

// Requested returns the requested range. The end is only meaningful when hasEnd is true.
func (r *Range) Requested() (start, end int64, hasEnd, ok bool) {
	return r.start, r.end, r.hasEnd, r.requested
}

// Accept sets whether "Accept-Ranges: bytes" is advertised.
func (r *Range) Accept(v bool) *Range {
	r.accept = v
	return r
}

// Configure sets the resource to serve ranges from. A maxChunkSize of zero or less sends the rest of
// the resource.
func (r *Range) Configure(src RangeSource, maxChunkSize int64) *Range {
	r.src, r.maxChunk = src, maxChunkSize
	return r
}

// ModifyResponse implements [Modifier]. A range that starts or ends beyond the resource fails with a
// 416. The chunk is capped at the configured maximum, a chunk that covers the whole resource is sent as
// a regular 200.
func (r *Range) ModifyResponse(ctx context.Context, res *OutgoingResponse) error {
	if r.accept {
		if err := res.SetHeader("Accept-Ranges", "bytes"); err != nil {
			return err
		}
	}

	if r.src == nil || !r.requested {
		return nil
	}

	total, err := r.src.Size(ctx)
	if err != nil {
		return err
	}

	end := total - 1
	if r.hasEnd {
		end = r.end
	}

	if r.maxChunk > 0 {
		end = min(end, r.start+r.maxChunk-1)
	}

	if r.start >= total || end >= total {
		return Errorf(CodeRequestedRangeNotSatisfiable, "range %d-%d exceeds size %d", r.start, end, total).
			WithHeader("Content-Range", fmt.Sprintf("bytes */%d", total))
	}

	chunk := end - r.start + 1
	status := http.StatusPartialContent
	if chunk == total {
		status = http.StatusOK
	}

	body, err := r.src.ReadRange(ctx, r.start, chunk)
	if err != nil {
		return err
	}

	if c, ok := res.Body().(io.Closer); ok {
		_ = c.Close()
	}

	if err := res.SetStatus(status); err != nil {
		return err
	}

	if err := res.AssignHeaders(http.Header{
		"Content-Length": {strconv.FormatInt(chunk, 10)},
		"Content-Range":  {fmt.Sprintf("bytes %d-%d/%d", r.start, end, total)},
		"Accept-Ranges":  {"bytes"},
	}); err != nil {
		return err
	}

	return res.Stream(body)
}
