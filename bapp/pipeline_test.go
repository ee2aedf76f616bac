package bapp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/advdv/bpipe"
	"github.com/advdv/bpipe/bapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadPipelineFile(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		pf, err := bapp.LoadPipelineFile("")
		require.NoError(t, err)
		assert.Equal(t, bapp.PipelineFile{}, pf)
		assert.Equal(t, bpipe.PlainTextRenderer{}, pf.ErrorRenderer())
		assert.Empty(t, pf.Guards())
	})

	t.Run("empty file", func(t *testing.T) {
		pf, err := bapp.LoadPipelineFile(writePipelineFile(t, ""))
		require.NoError(t, err)
		assert.Equal(t, bapp.PipelineFile{}, pf)
	})

	t.Run("full", func(t *testing.T) {
		pf, err := bapp.LoadPipelineFile(writePipelineFile(t, `
renderer: json
pretty_errors: true
trace_errors: true
max_body_length: 1024
cors:
  origins: ["https://app.example.com"]
  credentials: true
  max_age: 600
`))
		require.NoError(t, err)

		assert.Equal(t, bpipe.JSONRenderer{Pretty: true}, pf.ErrorRenderer())
		assert.True(t, pf.TraceErrors)
		assert.Equal(t, bpipe.BodyOptions{MaxLength: 1024}, pf.BodyOptions())
		require.NotNil(t, pf.CORS)
		assert.Equal(t, []string{"https://app.example.com"}, pf.CORS.Origins)
		assert.Equal(t, 600, *pf.CORS.MaxAge)
		assert.Len(t, pf.Guards(), 1)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := bapp.LoadPipelineFile(writePipelineFile(t, "renderr: json\n"))
		require.ErrorContains(t, err, "field renderr not found")
	})

	t.Run("unknown renderer", func(t *testing.T) {
		_, err := bapp.LoadPipelineFile(writePipelineFile(t, "renderer: xml\n"))
		require.ErrorContains(t, err, `unsupported renderer "xml"`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := bapp.LoadPipelineFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "failed to read pipeline file")
	})
}

func TestPipelineFileGuards(t *testing.T) {
	pf, err := bapp.LoadPipelineFile(writePipelineFile(t, `
renderer: json
cors:
  origins: ["https://app.example.com"]
`))
	require.NoError(t, err)

	mux := bapp.NewMux(bpipe.Config{Renderer: pf.ErrorRenderer()})
	mux.Guard(pf.Guards()...)
	mux.HandleFunc("GET /items", func(ctx context.Context, c *bpipe.Context) error {
		return c.Response().SendString(ctx, "items")
	})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":400,"message":"Origin does not match CORS"}`, rec.Body.String())
}
