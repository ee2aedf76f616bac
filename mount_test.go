package bpipe_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func apiHandler() bpipe.Handler {
	return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "path:"+c.Request().URL().Path)
	})
}

func TestMountSubPath(t *testing.T) {
	for _, tt := range []struct {
		path    string
		expBody string
	}{
		{"/api/users", "path:/users"},
		{"/api", "path:/"},
		{"/api/", "path:/"},
		{"/api/v1/users/123", "path:/v1/users/123"},
	} {
		t.Run(tt.path, func(t *testing.T) {
			mux := bpipe.NewServeMux()
			mux.Mount("/api", apiHandler())

			rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil)
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tt.expBody, rec.Body.String())
		})
	}
}

func TestMountGuardsSeeStrippedPath(t *testing.T) {
	var seen string

	mux := bpipe.NewServeMux()
	mux.Mount("/api", apiHandler(), bpipe.WithGuards(
		bpipe.Predicate(func(_ context.Context, rt *bpipe.ActivatedRoute) (bool, error) {
			seen = rt.Path
			return true, nil
		})))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/users", seen)
}

func TestMountError(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.Mount("/api", bpipe.HandlerFunc(func(context.Context, *bpipe.Context) error {
		return errors.New("mount error")
	}))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/fail", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal Server Error", rec.Body.String())
}

func TestMountContextAndMiddleware(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.Use(func(next bpipe.Handler) bpipe.Handler {
		return bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			return next.ServeRequest(context.WithValue(ctx, ctxKey("user"), "alice"), c)
		})
	})
	mux.Mount("/api", bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
		user := ctx.Value(ctxKey("user")).(string)
		return c.Response().SendString(ctx, fmt.Sprintf("user:%s,path:%s", user, c.Request().URL().Path))
	}))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user:alice,path:/profile", rec.Body.String())
}

func TestMountFuncError(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.MountFunc("/api", func(context.Context, *bpipe.Context) error {
		return bpipe.NewError(bpipe.CodeNotFound, errors.New("not found"))
	})

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/missing", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found", rec.Body.String())
}

func TestMountFuncWithMethodPattern(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.MountFunc("POST /api", func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "posted:"+c.Request().URL().Path)
	})

	t.Run("POST works", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/create", nil)
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "posted:/create", rec.Body.String())
	})

	t.Run("GET returns 405", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/create", nil)
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMountNamed(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.Mount("/api", apiHandler(), bpipe.Name("api"))

	loc, err := mux.Reverse("api")
	require.NoError(t, err)
	require.Equal(t, "/api", loc)
}

func TestMountStdSubPath(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "std:%s", r.URL.Path)
	})

	mux := bpipe.NewServeMux()
	mux.MountStd("/static", stdHandler)

	for path, exp := range map[string]string{"/static/style.css": "std:/style.css", "/static": "std:/"} {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil)
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, exp, rec.Body.String())
	}
}

func TestMountStdHandlerOwnsErrorResponse(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "custom not found", http.StatusNotFound)
	})

	mux := bpipe.NewServeMux()
	mux.MountStd("/static", stdHandler)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/missing", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "custom not found\n", rec.Body.String())
}

func TestMountStdWithMethodPattern(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "std:%s", r.URL.Path)
	})

	mux := bpipe.NewServeMux()
	mux.MountStd("GET /static", stdHandler)

	t.Run("GET works", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/file", nil)
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "std:/file", rec.Body.String())
	})

	t.Run("POST returns 405", func(t *testing.T) {
		rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/static/file", nil)
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMountCoexistsWithHandle(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.HandleFunc("GET /health", func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "ok")
	})
	mux.Mount("/api", apiHandler())
	mux.MountStd("/static", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "static:%s", r.URL.Path)
	}))

	for path, exp := range map[string]string{
		"/health":         "ok",
		"/api/items":      "path:/items",
		"/static/img.png": "static:/img.png",
	} {
		t.Run(path, func(t *testing.T) {
			rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil)
			mux.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, exp, rec.Body.String())
		})
	}
}

func TestUseAfterMount(t *testing.T) {
	mux := bpipe.NewServeMux()
	mux.Mount("/api", apiHandler())

	require.PanicsWithValue(t, "bpipe: cannot call Use() or Guard() after calling Handle", func() {
		mux.Use(middleware1)
	})
}
