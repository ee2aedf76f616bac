package bpipe_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func serveBlogPost(ctx context.Context, c *bpipe.Context) error {
	return c.Response().SendString(ctx, fmt.Sprintf(`hello %v, %s`, ctx.Value(ctxKey("foo")), c.Route().Param("slug")))
}

func middleware1(next bpipe.Handler) bpipe.Handler {
	return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
		return next.ServeRequest(context.WithValue(ctx, ctxKey("foo"), "bar"), c)
	})
}

func TestServeMux(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.Use(middleware1)
	mux.HandleFunc("GET /blog/{slug}", serveBlogPost, bpipe.Name("blog_post"))

	loc, err := mux.Reverse("blog_post", "foo")
	require.NoError(t, err)
	require.Equal(t, `/blog/foo`, loc)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/blog/111", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `hello bar, 111`, rec.Body.String())
}

func TestServeMuxActivatedRoute(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.HandleFunc("GET /orgs/{org}/files/{path...}", func(ctx context.Context, c *bpipe.Context) error {
		rt := c.Route()
		return c.Response().SendString(ctx, fmt.Sprintf("%s|%s|%s|%v",
			rt.Pattern, rt.Param("org"), rt.Param("path"), rt.Data["section"]))
	}, bpipe.WithData("section", "files"))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orgs/acme/files/a/b.txt", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "GET /orgs/{org}/files/{path...}|acme|a/b.txt|files", rec.Body.String())
}

func TestServeMuxGuards(t *testing.T) {
	var order []string
	record := func(name string) bpipe.Guard {
		return bpipe.Predicate(func(context.Context, *bpipe.ActivatedRoute) (bool, error) {
			order = append(order, name)
			return true, nil
		})
	}

	mux := bpipe.NewServeMux()
	mux.Guard(record("mux"))
	mux.HandleFunc("GET /x", func(context.Context, *bpipe.Context) error { return nil },
		bpipe.WithGuards(record("route")))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"mux", "route"}, order)
}

func TestServeMuxNotFound(t *testing.T) {
	mux := bpipe.NewServeMuxWith(bpipe.Config{Renderer: bpipe.JSONRenderer{}}, http.NewServeMux(), bpipe.NewReverser())
	mux.HandleFunc("GET /x", func(context.Context, *bpipe.Context) error { return nil })

	t.Run("unknown path", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/y", nil)
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.JSONEq(t, `{"code":404,"message":"Not Found"}`, rec.Body.String())
	})

	t.Run("wrong method", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil)
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Contains(t, rec.Header().Get("Allow"), http.MethodGet)
		require.JSONEq(t, `{"code":405,"message":"Method Not Allowed"}`, rec.Body.String())
	})
}

func TestHandleStd(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "std:%s", r.URL.Path)
	})

	mux := bpipe.NewServeMux()
	mux.HandleStd("GET /std", stdHandler)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/std", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "std:/std", rec.Body.String())
}

func TestHandleStdErrorOwnership(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "custom error", http.StatusTeapot)
	})

	mux := bpipe.NewServeMux()
	mux.HandleStd("GET /teapot", stdHandler)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "custom error\n", rec.Body.String())
}

func TestHandleStdNamed(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.HandleStd("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "metrics")
	}), "metrics")

	loc, err := mux.Reverse("metrics")
	require.NoError(t, err)
	require.Equal(t, "/metrics", loc)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "metrics", rec.Body.String())
}

func TestUseAfterHandle(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.HandleFunc("GET /blog/{slug}", serveBlogPost, bpipe.Name("blog_post"))
	require.PanicsWithValue(t, "bpipe: cannot call Use() or Guard() after calling Handle", func() {
		mux.Use(middleware1)
	})
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) bpipe.Middleware {
		return func(next bpipe.Handler) bpipe.Handler {
			return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
				order = append(order, name)
				return next.ServeRequest(ctx, c)
			})
		}
	}

	mux := bpipe.NewServeMux()
	mux.Use(mw("1"), mw("2"))
	mux.HandleFunc("GET /x", func(context.Context, *bpipe.Context) error {
		order = append(order, "handler")
		return nil
	}, bpipe.WithMiddleware(mw("3")))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, []string{"1", "2", "3", "handler"}, order)
}
