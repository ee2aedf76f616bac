package bpipe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/advdv/bpipe"
	"github.com/advdv/bpipe/bpipetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveExpires(t *testing.T, ifModifiedSince string, opts *bpipe.ExpiresOptions) *bpipetest.Recorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
	if ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", ifModifiedSince)
	}

	return bpipetest.Process(req, &bpipe.Match{
		Handler: bpipe.HandlerFunc(func(ctx context.Context, c *bpipe.Context) error {
			exp := bpipe.ExpiresOf(c)
			if opts != nil {
				exp.Configure(*opts)
			}

			return c.Response().SendString(ctx, "body { color: red }")
		}),
	}, bpipe.Config{})
}

func TestExpiresModifier(t *testing.T) {
	lastMod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("not modified", func(t *testing.T) {
		rec := serveExpires(t, "Mon, 01 Jan 2024 00:00:00 GMT", &bpipe.ExpiresOptions{LastModified: lastMod})
		require.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Empty(t, rec.Header.Get("Content-Length"))
		assert.Equal(t, 1, rec.NumWriteHead)
	})

	t.Run("sub-second differences are ignored", func(t *testing.T) {
		rec := serveExpires(t, "Mon, 01 Jan 2024 00:00:00 GMT",
			&bpipe.ExpiresOptions{LastModified: lastMod.Add(300 * time.Millisecond)})
		require.Equal(t, http.StatusNotModified, rec.Code)
	})

	t.Run("modified", func(t *testing.T) {
		rec := serveExpires(t, "Sun, 31 Dec 2023 00:00:00 GMT", &bpipe.ExpiresOptions{
			LastModified: lastMod,
			ExpiresIn:    time.Hour,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "body { color: red }", rec.Body.String())
		assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", rec.Header.Get("Last-Modified"))

		expires, err := http.ParseTime(rec.Header.Get("Expires"))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)
	})

	t.Run("not configured", func(t *testing.T) {
		rec := serveExpires(t, "Mon, 01 Jan 2024 00:00:00 GMT", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header.Get("Last-Modified"))
		assert.Empty(t, rec.Header.Get("Expires"))
	})
}

func TestNewExpires(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-Modified-Since", "not a date")
	assert.True(t, bpipe.NewExpires(bpipe.NewIncomingRequest(req)).IfModifiedSince().IsZero())

	req.Header.Set("If-Modified-Since", "Mon, 01 Jan 2024 00:00:00 GMT")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		bpipe.NewExpires(bpipe.NewIncomingRequest(req)).IfModifiedSince().UTC())
}
