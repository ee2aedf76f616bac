package fastwire_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/advdv/bpipe/fastwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newRequestCtx(method, uri, body string, header map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.SetHost("example.com")

	for k, v := range header {
		req.Header.Set(k, v)
	}

	if body != "" {
		req.SetBodyString(body)
	}

	var fctx fasthttp.RequestCtx
	fctx.Init(&req, nil, nil)

	return &fctx
}

func TestWire(t *testing.T) {
	fctx := newRequestCtx(http.MethodGet, "/", "", nil)
	wire := fastwire.NewWire(fctx)

	_, err := wire.Write([]byte("x"))
	require.ErrorIs(t, err, bpipe.ErrWireHeadNotWritten)

	require.NoError(t, wire.WriteHead(http.StatusAccepted, http.Header{"X-Job": {"42"}}))
	require.ErrorIs(t, wire.WriteHead(http.StatusOK, nil), bpipe.ErrHeadersSent)

	_, err = wire.Write([]byte("queued"))
	require.NoError(t, err)
	require.NoError(t, wire.End())

	assert.True(t, wire.HeadersSent())
	assert.True(t, wire.Finished())
	assert.Equal(t, http.StatusAccepted, fctx.Response.StatusCode())
	assert.Equal(t, "42", string(fctx.Response.Header.Peek("X-Job")))
	assert.Equal(t, "queued", string(fctx.Response.Body()))
}

type greeting struct {
	Name string `json:"name" validate:"required"`
}

func TestHandler(t *testing.T) {
	handler := fastwire.Handler(fastwire.Route(bpipe.Route{
		Pattern: "POST /greet",
		Guards:  []bpipe.Guard{bpipe.JSONBodyGuard[greeting](bpipe.JSONBodyOptions{MaxLength: 1024})},
		Handler: bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			body, err := bpipe.BodyOf[greeting](c)
			if err != nil {
				return err
			}

			if err := bpipe.CookiesOf(c).Set("greeted", body.Value().Name); err != nil {
				return err
			}

			return c.Response().SendString(ctx, "hello "+body.Value().Name)
		}),
	}), bpipe.Config{Renderer: bpipe.JSONRenderer{}})

	t.Run("ok", func(t *testing.T) {
		fctx := newRequestCtx(http.MethodPost, "/greet", `{"name":"ann"}`,
			map[string]string{"Content-Type": "application/json"})
		handler(fctx)

		assert.Equal(t, http.StatusOK, fctx.Response.StatusCode())
		assert.Equal(t, "hello ann", string(fctx.Response.Body()))
		assert.Contains(t, string(fctx.Response.Header.Peek("Set-Cookie")), "greeted=ann")
	})

	t.Run("validation", func(t *testing.T) {
		fctx := newRequestCtx(http.MethodPost, "/greet", `{}`,
			map[string]string{"Content-Type": "application/json"})
		handler(fctx)

		assert.Equal(t, http.StatusUnprocessableEntity, fctx.Response.StatusCode())
		assert.JSONEq(t, `{"type":"body","errors":{"name":["required"]}}`, string(fctx.Response.Body()))
	})

	t.Run("no match", func(t *testing.T) {
		notFound := fastwire.Handler(func(*http.Request) *bpipe.Match { return nil }, bpipe.Config{})
		fctx := newRequestCtx(http.MethodGet, "/nope", "", nil)
		notFound(fctx)

		assert.Equal(t, http.StatusNotFound, fctx.Response.StatusCode())
	})
}

func TestMuxHandler(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "item "+c.Route().Param("id"))
	})

	fctx := newRequestCtx(http.MethodGet, "/items/7", "", nil)
	fastwire.MuxHandler(mux)(fctx)

	assert.Equal(t, http.StatusOK, fctx.Response.StatusCode())
	assert.Equal(t, "item 7", string(fctx.Response.Body()))
}
