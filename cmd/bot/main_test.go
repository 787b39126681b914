package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := parseID(" 12345 ")
	require.NoError(t, err)
	require.Equal(t, int64(12345), id)

	for _, bad := range []string{"", "abc", "0", "1.5"} {
		_, err := parseID(bad)
		require.Error(t, err, bad)
	}
}

func TestRootCommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "webhook", "run", "grant", "revoke", "version"} {
		require.True(t, names[want], "missing command %s", want)
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Equal(t, "1.0.0\n", out.String())
}

func TestRunNeedsJob(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	require.Error(t, root.Execute())
}
