package bpipe_test

import (
	"testing"

	"github.com/advdv/bpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverser(t *testing.T) {
	rev := bpipe.NewReverser()

	t.Run("should allow naming patterns", func(t *testing.T) {
		s := rev.Named("homepage", "/{$}")
		assert.Equal(t, "/{$}", s)

		s, err := rev.NamedPattern("blog_post", "/blog/{id}/{$}")
		require.NoError(t, err)
		assert.Equal(t, "/blog/{id}/{$}", s)
	})

	t.Run("should reverse named patterns", func(t *testing.T) {
		res, err := rev.Reverse("homepage")
		require.NoError(t, err)
		assert.Equal(t, "/", res)
	})

	t.Run("should error if pattern already exists", func(t *testing.T) {
		_, err := rev.NamedPattern("homepage", "/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("should panic for Named error", func(t *testing.T) {
		assert.PanicsWithValue(t, "bpipe: failed to parse pattern: empty pattern", func() {
			rev.Named("bogus", "")
		})
	})

	t.Run("should error if reversing unknown name", func(t *testing.T) {
		_, err := rev.Reverse("bogus")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no pattern named: \"bogus\"")
	})

	t.Run("should error if url building fails", func(t *testing.T) {
		_, err := rev.Reverse("blog_post")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not enough values")
	})
}

func TestReverseWildcards(t *testing.T) {
	rev := bpipe.NewReverser()
	rev.Named("file", "GET /orgs/{org}/files/{path...}")
	rev.Named("dir", "/dirs/{name}/")

	for _, tt := range []struct {
		name string
		vals []string
		exp  string
	}{
		{"file", []string{"acme inc", "a/b c.txt"}, "/orgs/acme%20inc/files/a/b%20c.txt"},
		{"dir", []string{"x"}, "/dirs/x/"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, err := rev.Reverse(tt.name, tt.vals...)
			require.NoError(t, err)
			assert.Equal(t, tt.exp, res)
		})
	}

	_, err := rev.Reverse("dir", "x", "y")
	require.ErrorContains(t, err, "too many values")
}
