package hostfuncs

import (
	"bytes"
	"io"
)

// DefaultMaxOutputSize is the default limit for guest stdout and outbound response bodies (10MB).
const DefaultMaxOutputSize = 10 * 1024 * 1024

// DefaultMaxRequestSize limits the payload a guest may hand to a host function (1MB).
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer is a bytes.Buffer wrapper that limits the size of written data.
// It is used as the stdout of WAGI guests.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer.
// It writes data up to the limit and then silently discards any additional data.
// The Truncated field is set to true if any data was discarded.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	if b.buffer.Len() >= b.limit {
		if len(p) > 0 {
			b.Truncated = true
		}
		return len(p), nil
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		n, err = b.buffer.Write(p[:remaining])
		if err != nil {
			return n, err
		}
		return len(p), nil
	}

	return b.buffer.Write(p)
}

// String returns the buffer contents as a string.
func (b *BoundedBuffer) String() string {
	return b.buffer.String()
}

// Bytes returns the buffer contents as a byte slice. An empty buffer
// yields an empty, non-nil slice.
func (b *BoundedBuffer) Bytes() []byte {
	if data := b.buffer.Bytes(); data != nil {
		return data
	}
	return []byte{}
}

// Len returns the current length of the buffer.
func (b *BoundedBuffer) Len() int {
	return b.buffer.Len()
}

// Reset resets the buffer and clears the Truncated flag.
func (b *BoundedBuffer) Reset() {
	b.buffer.Reset()
	b.Truncated = false
}

// ReadBounded reads r to EOF, keeping at most limit bytes. truncated reports
// whether r held more than limit bytes; the rest is drained and discarded.
func ReadBounded(r io.Reader, limit int64) (data []byte, truncated bool, err error) {
	buf := NewBoundedBuffer(int(limit))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), buf.Truncated, nil
}
