package hostfuncs

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_Write(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{name: "under limit", limit: 64, writes: []string{"Content-Type: text/plain\n", "\nhi"}, want: "Content-Type: text/plain\n\nhi"},
		{name: "exact limit", limit: 5, writes: []string{"hello", ""}, want: "hello"},
		{name: "split write", limit: 8, writes: []string{"Status: ", "404\n"}, want: "Status: ", truncated: true},
		{name: "single oversized write", limit: 4, writes: []string{"Location: /x\n"}, want: "Loca", truncated: true},
		{name: "write after full", limit: 2, writes: []string{"ab", "c"}, want: "ab", truncated: true},
		{name: "zero limit", limit: 0, writes: []string{"x"}, want: "", truncated: true},
		{name: "no writes", limit: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBoundedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := buf.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n, "writes always report full length")
			}
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, []byte(tt.want), buf.Bytes())
			assert.Equal(t, len(tt.want), buf.Len())
			assert.Equal(t, tt.truncated, buf.Truncated)
		})
	}
}

func TestBoundedBuffer_Reset(t *testing.T) {
	buf := NewBoundedBuffer(3)
	_, _ = buf.Write([]byte("stdout"))
	require.True(t, buf.Truncated)

	buf.Reset()
	assert.Zero(t, buf.Len())
	assert.False(t, buf.Truncated)

	_, _ = buf.Write([]byte("ok"))
	assert.Equal(t, "ok", buf.String())
}

func TestReadBounded(t *testing.T) {
	data, truncated, err := ReadBounded(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "hello", string(data))

	data, truncated, err = ReadBounded(strings.NewReader("hello world"), 5)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "hello", string(data))

	data, truncated, err = ReadBounded(strings.NewReader(""), 5)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.NotNil(t, data)
	assert.Empty(t, data)

	_, _, err = ReadBounded(iotest.ErrReader(errors.New("reset")), 5)
	assert.EqualError(t, err, "reset")
}
