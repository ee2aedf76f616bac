package bapptest

import (
	"net/http"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/advdv/bpipe/bapp"
	"github.com/advdv/bpipe/bpipetest"
	"go.uber.org/zap/zaptest"
)

// CallHandler invokes a [bpipe.HandlerFunc] through the pipeline and returns the recorded response.
// The handler runs behind the request logger so [bapp.Log] works, logging to the test.
func CallHandler(t testing.TB, handler bpipe.HandlerFunc, req *http.Request) *bpipetest.Recorder {
	t.Helper()

	h := bapp.WithRequestLogger(zaptest.NewLogger(t))(handler)
	return bpipetest.Process(req, &bpipe.Match{
		Route:   &bpipe.ActivatedRoute{Method: req.Method, Path: req.URL.Path},
		Handler: h,
	}, bpipe.Config{})
}
