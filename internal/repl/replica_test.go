package repl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHostPortAcceptsSpaceSeparatedForm(t *testing.T) {
	host, port, err := splitHostPort("localhost 6380")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, "6380", port)
}

func TestSplitHostPortAcceptsColonForm(t *testing.T) {
	host, port, err := splitHostPort("localhost:6380")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, "6380", port)
}

func TestSplitHostPortRejectsGarbage(t *testing.T) {
	_, _, err := splitHostPort("not-an-address")
	assert.Error(t, err)
}
