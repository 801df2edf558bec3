package dbc

import (
	"io"
	"sync"

	"github.com/oarkflow/dbc/dbcerr"
)

// InputStream is a forward-only byte cursor over a BLOB or streamed
// column value, per spec.md §4.5. Read returns a negative count on EOF,
// zero on a legitimate short read, and a positive count on progress.
type InputStream interface {
	Read(buf []byte) (n int, err error)
	Skip(n int64) (skipped int64, err error)
	Close() error
}

// OutputStream is an append-only byte sink, per spec.md §4.5.
type OutputStream interface {
	Write(p []byte) (n int, err error)
	Flush() error
	Close() error
}

// memoryInputStream is a bounded in-memory InputStream over a byte slice.
// It grounds the ScyllaDB driver's BLOB accessor (CQL has no server-side
// streaming blob cursor, so a CQL blob column is always read fully before
// being exposed this way) and backs every other driver's getBinaryStream
// when the underlying client library already materializes the value.
type memoryInputStream struct {
	mu     sync.Mutex
	data   []byte
	pos    int
	closed bool
}

// NewMemoryInputStream wraps data as a forward-only InputStream starting
// at offset 0.
func NewMemoryInputStream(data []byte) InputStream {
	return &memoryInputStream{data: data}
}

func (s *memoryInputStream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, dbcerr.New(dbcerr.ResourceClosed, "read from closed stream")
	}
	if s.pos >= len(s.data) {
		return -1, io.EOF
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *memoryInputStream) Skip(n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, dbcerr.New(dbcerr.ResourceClosed, "skip on closed stream")
	}
	if n < 0 {
		n = 0
	}
	remaining := int64(len(s.data) - s.pos)
	if n > remaining {
		n = remaining
	}
	s.pos += int(n)
	return n, nil
}

func (s *memoryInputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memoryOutputStream is an append-only OutputStream writing into a Blob's
// backing store starting at a fixed offset.
type memoryOutputStream struct {
	mu     sync.Mutex
	target *Blob
	pos    int64
	closed bool
}

// NewMemoryOutputStream returns a writer that appends into target starting
// at pos, per spec.md §4.5 setBinaryStream(pos).
func NewMemoryOutputStream(target *Blob, pos int64) OutputStream {
	return &memoryOutputStream{target: target, pos: pos}
}

func (s *memoryOutputStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, dbcerr.New(dbcerr.ResourceClosed, "write to closed stream")
	}
	if err := s.target.SetBytes(s.pos, p); err != nil {
		return 0, err
	}
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *memoryOutputStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dbcerr.New(dbcerr.ResourceClosed, "flush on closed stream")
	}
	return nil
}

func (s *memoryOutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
