package bpipe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/advdv/bpipe/bpipetest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toInt(s string) (any, error) { return strconv.Atoi(s) }

func TestQueryGuard(t *testing.T) {
	guard := bpipe.QueryGuard(map[string]bpipe.QueryParam{
		"q":    {Required: true},
		"page": {Match: regexp.MustCompile(`^\d+$`), Default: "1", Coerce: toInt},
		"id":   {Coerce: toInt},
	})

	t.Run("coerces and defaults", func(t *testing.T) {
		var got map[string]any
		rec := bpipetest.Process(httptest.NewRequest(http.MethodGet, "/search?q=shoes&id=1&id=2", nil), &bpipe.Match{
			Guards: []bpipe.Guard{guard},
			Handler: bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
				query, err := bpipe.QueryOf[map[string]any](c)
				if err != nil {
					return err
				}

				got = query.Value()
				return nil
			}),
		}, bpipe.Config{})

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, map[string]any{"q": "shoes", "page": 1, "id": []any{1, 2}}, got)
	})

	t.Run("reports every failing field", func(t *testing.T) {
		_, ok, err := bpipetest.GuardResult(t.Context(), guard,
			httptest.NewRequest(http.MethodGet, "/search?page=two&id=x", nil))
		require.False(t, ok)
		require.Equal(t, bpipe.CodeBadRequest, bpipe.CodeOf(err))
		assert.Equal(t, map[string]any{"queryError": map[string]string{
			"q":    "required",
			"page": "patternMismatch",
			"id":   "invalid",
		}}, bpipe.AsError(err).Payload())
	})
}

type listQuery struct {
	Limit  int    `json:"limit" validate:"lte=100"`
	Cursor string `json:"cursor"`
	Desc   bool   `json:"desc"`
}

func TestQuerySchemaGuard(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var got listQuery
		rec := bpipetest.Process(httptest.NewRequest(http.MethodGet, "/items?limit=20&desc=1&cursor=abc", nil),
			&bpipe.Match{
				Guards: []bpipe.Guard{bpipe.QuerySchemaGuard[listQuery](bpipe.QuerySchemaOptions{})},
				Handler: bpipe.HandlerFunc(func(_ context.Context, c *bpipe.Context) error {
					query, err := bpipe.QueryOf[listQuery](c)
					if err != nil {
						return err
					}

					got = query.Value()
					return nil
				}),
			}, bpipe.Config{})

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, listQuery{Limit: 20, Cursor: "abc", Desc: true}, got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := bpipetest.GuardResult(t.Context(), bpipe.QuerySchemaGuard[listQuery](bpipe.QuerySchemaOptions{}),
			httptest.NewRequest(http.MethodGet, "/items?limit=500", nil))
		require.Equal(t, bpipe.CodeUnprocessableEntity, bpipe.CodeOf(err))
	})
}

func TestRouteParamsGuard(t *testing.T) {
	numeric := func(_ context.Context, v any) error {
		if _, err := strconv.Atoi(v.(string)); err != nil {
			return errors.New("must be numeric")
		}

		return nil
	}

	guard := bpipe.RouteParamsGuard(map[string][]bpipe.FieldValidator{"id": {numeric}})

	mux := bpipe.NewServeMuxWith(bpipe.Config{Renderer: bpipe.JSONRenderer{}}, http.NewServeMux(), bpipe.NewReverser())
	mux.HandleFunc("GET /users/{id}", func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "user "+c.Route().Param("id"))
	}, bpipe.WithGuards(guard))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/12", nil)
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user 12", rec.Body.String())

	rec, req = httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/abc", nil)
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"message":"must be numeric","context":{"paramsError":{"id":"must be numeric"}}}`,
		rec.Body.String())
}
