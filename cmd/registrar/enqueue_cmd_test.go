package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	t.Parallel()

	raw, err := readInput(strings.NewReader(`{"firstName":"Anna"}`), "-")
	require.NoError(t, err)
	require.JSONEq(t, `{"firstName":"Anna"}`, string(raw))

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"peopleId":"42"}`), 0o600))
	raw, err = readInput(nil, path)
	require.NoError(t, err)
	require.JSONEq(t, `{"peopleId":"42"}`, string(raw))

	raw, err = readInput(nil, "")
	require.NoError(t, err)
	require.Nil(t, raw)

	_, err = readInput(strings.NewReader(`{"firstName":`), "-")
	require.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()
	root := newRootCmd()
	for _, path := range [][]string{
		{"worker"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"enqueue"},
		{"blocked", "list"},
		{"blocked", "resolve"},
		{"blocked", "reject"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}
