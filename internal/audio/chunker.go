// Package audio reads waveform files and splits audio buffers into fixed-size
// chunks for incremental transmission.
package audio

import (
	"errors"
	"io"
	"iter"
)

// DefaultChunkSize is 0.5s of 16-bit mono PCM at 8 kHz
const DefaultChunkSize = 8000

// ErrInvalidChunkSize is returned when the chunk size is not positive
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunker yields consecutive, non-overlapping slices of a buffer.
// It is finite and cannot be rewound: once drained it stays drained.
type Chunker struct {
	buf    []byte
	size   int
	offset int
}

// NewChunker creates a chunker over buf. The buffer is not copied.
func NewChunker(buf []byte, size int) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	return &Chunker{buf: buf, size: size}, nil
}

// Next returns the next chunk, or false once the buffer is exhausted.
// Every chunk is size bytes long except possibly the last one.
func (c *Chunker) Next() ([]byte, bool) {
	if c.offset >= len(c.buf) {
		return nil, false
	}
	end := min(c.offset+c.size, len(c.buf))
	chunk := c.buf[c.offset:end:end]
	c.offset = end
	return chunk, true
}

// Len returns the number of chunks not yet returned
func (c *Chunker) Len() int {
	remaining := len(c.buf) - c.offset
	if remaining <= 0 {
		return 0
	}
	return (remaining + c.size - 1) / c.size
}

// All consumes the remaining chunks as a range-over-func sequence
func (c *Chunker) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, ok := c.Next()
			if !ok || !yield(chunk) {
				return
			}
		}
	}
}

// Reader exposes the remaining chunks as a reader. Each Read returns at most one chunk.
func (c *Chunker) Reader() io.Reader {
	return &chunkReader{c: c}
}

type chunkReader struct {
	c       *Chunker
	pending []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		chunk, ok := r.c.Next()
		if !ok {
			return 0, io.EOF
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Split is a convenience that drains a new chunker into a slice
func Split(buf []byte, size int) ([][]byte, error) {
	c, err := NewChunker(buf, size)
	if err != nil {
		return nil, err
	}
	chunks := make([][]byte, 0, c.Len())
	for chunk := range c.All() {
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
