package bpipe_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustAtoi(tb testing.TB, s string) int {
	tb.Helper()

	n, err := strconv.Atoi(s)
	require.NoError(tb, err)

	return n
}
