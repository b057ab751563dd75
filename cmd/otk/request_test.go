package main

import (
	"testing"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestCheckedNumber(t *testing.T) {
	t.Parallel()

	for _, n := range []uint32{0, 7, 1234, 2147483648, 4294967294} {
		str := checkedNumber(n)
		parsed, err := domain.ParseCheckedNumber(str)
		require.NoError(t, err, str)
		require.Equal(t, n, parsed)
	}
}

func TestRequestCommands(t *testing.T) {
	t.Parallel()

	cmds := requestCommands()
	require.Len(t, cmds, len(domain.Commands()))

	names := make(map[string]bool)
	for _, c := range cmds {
		require.False(t, names[c.Name], c.Name)
		names[c.Name] = true
		require.NotNil(t, c.Action)
	}
}
