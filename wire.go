package bpipe

import (
	"bufio"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Wire abstracts the raw response primitives of the host HTTP stack. The [OutgoingResponse] is its only
// writer: it calls WriteHead exactly once, followed by zero or more Writes and a single End.
type Wire interface {
	WriteHead(status int, header http.Header) error
	Write(p []byte) (int, error)
	End() error
	HeadersSent() bool
	Finished() bool
}

// Hijacker is implemented by wires that can hand over the raw connection, for aborts and upgrades.
type Hijacker interface {
	Hijack() (net.Conn, *bufio.ReadWriter, error)
}

// ErrWireHeadNotWritten is returned when body bytes are written before the head.
var ErrWireHeadNotWritten = errors.New("bpipe: body written before head")

// NewWire adapts a standard library response writer.
func NewWire(w http.ResponseWriter) Wire {
	return &stdWire{w: w, rc: http.NewResponseController(w)}
}

type stdWire struct {
	w           http.ResponseWriter
	rc          *http.ResponseController
	headersSent bool
	finished    bool
}

func (w *stdWire) WriteHead(status int, header http.Header) error {
	if w.headersSent {
		return ErrHeadersSent
	}

	dst := w.w.Header()
	for k, v := range header {
		dst[k] = v
	}

	w.headersSent = true
	w.w.WriteHeader(status)

	return nil
}

func (w *stdWire) Write(p []byte) (int, error) {
	if !w.headersSent {
		return 0, ErrWireHeadNotWritten
	}

	n, err := w.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "write response body")
	}

	return n, nil
}

func (w *stdWire) End() error {
	if w.finished {
		return nil
	}

	w.finished = true
	if err := w.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return errors.Wrap(err, "flush response")
	}

	return nil
}

func (w *stdWire) HeadersSent() bool { return w.headersSent }
func (w *stdWire) Finished() bool    { return w.finished }

func (w *stdWire) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := w.rc.Hijack()
	if err != nil {
		return nil, nil, errors.Wrap(err, "hijack connection")
	}

	w.headersSent, w.finished = true, true

	return conn, brw, nil
}
