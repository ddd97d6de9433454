package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Line(t *testing.T) {
	var out bytes.Buffer

	p := newPrompter(strings.NewReader("  ann@example.com  \nlast"), &out)

	v, err := p.Line("Email: ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", v)
	assert.Equal(t, "Email: ", out.String())

	// A final line without a newline still counts.
	v, err = p.Line("Next: ")
	require.NoError(t, err)
	assert.Equal(t, "last", v)

	_, err = p.Line("More: ")
	require.ErrorIs(t, err, errNoInput)
}

func TestPrompter_SecretFallsBackToLine(t *testing.T) {
	p := newPrompter(strings.NewReader("hunter2\n"), &bytes.Buffer{})

	v, err := p.Secret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}

func TestPrompter_SecretOnTerminal(t *testing.T) {
	origRead, origTerm := readPassword, terminalStdin

	t.Cleanup(func() {
		readPassword, terminalStdin = origRead, origTerm
	})

	terminalStdin = func(*os.File) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("from-tty"), nil }

	var out bytes.Buffer

	p := newPrompter(os.Stdin, &out)

	v, err := p.Secret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "from-tty", v)
	assert.Equal(t, "Password: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("tty gone") }

	_, err = p.Secret("Password: ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tty gone")
}
