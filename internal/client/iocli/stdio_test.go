package iocli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeInput returns a reading end of a pipe pre-filled with input.
func pipeInput(t *testing.T, input string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	go func() {
		_, _ = w.Write([]byte(input))
		_ = w.Close()
	}()
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewStdio(t *testing.T) {
	assert.NotNil(t, NewStdio())
}

func TestStdio_Output(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdioFrom(os.Stdin, &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s\n", 1, "abc")
	_, err := stdio.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

func TestStdio_ReadInput(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdioFrom(pipeInput(t, "  user input \nsecond\nlast"), &out)

	first, err := stdio.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", first)

	// Буфер общий: вторая строка не теряется
	second, err := stdio.ReadInput("Again: ")
	require.NoError(t, err)
	assert.Equal(t, "second", second)

	last, err := stdio.ReadInput("Last: ")
	require.NoError(t, err)
	assert.Equal(t, "last", last)

	_, err = stdio.ReadInput("EOF: ")
	assert.Error(t, err)

	assert.Contains(t, out.String(), "Prompt: ")
}

func TestStdio_ReadPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdioFrom(pipeInput(t, "Str0ng!Pass\nAdm1n!Pass\n"), &out)

	pw, err := stdio.ReadPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "Str0ng!Pass", pw)

	pw, err = stdio.ReadPassword("Confirm: ")
	require.NoError(t, err)
	assert.Equal(t, "Adm1n!Pass", pw)
}
