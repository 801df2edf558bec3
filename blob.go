package dbc

import (
	"sync"

	"github.com/oarkflow/dbc/dbcerr"
)

// Blob is a random-access, growable byte container, per spec.md §4.5.
// Reads past length return a short result rather than erroring.
type Blob struct {
	mu   sync.Mutex
	data []byte
	free bool
}

// NewBlob wraps an existing byte slice as a Blob. The slice is copied so
// the Blob owns an independent backing array.
func NewBlob(initial []byte) *Blob {
	b := &Blob{data: make([]byte, len(initial))}
	copy(b.data, initial)
	return b
}

// Length returns the current byte length of the blob.
func (b *Blob) Length() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return 0, dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	return int64(len(b.data)), nil
}

// GetBytes returns up to length bytes starting at pos (1-based, matching
// the JDBC-derived convention the rest of this API follows). Reads past
// the end of the blob return whatever bytes remain, possibly empty.
func (b *Blob) GetBytes(pos int64, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return nil, dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	start := pos - 1
	if start < 0 {
		start = 0
	}
	if start >= int64(len(b.data)) {
		return []byte{}, nil
	}
	end := start + length
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	out := make([]byte, end-start)
	copy(out, b.data[start:end])
	return out, nil
}

// SetBytes writes bytes starting at pos (1-based), growing the backing
// store if necessary.
func (b *Blob) SetBytes(pos int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	start := pos - 1
	if start < 0 {
		return dbcerr.Newf(dbcerr.BindError, "blob position %d out of range", pos)
	}
	needed := start + int64(len(data))
	if needed > int64(len(b.data)) {
		grown := make([]byte, needed)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[start:], data)
	return nil
}

// Truncate shortens (or, if len is already <= the requested length, leaves
// unchanged) the blob to length bytes.
func (b *Blob) Truncate(length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	if length < 0 {
		return dbcerr.Newf(dbcerr.BindError, "negative truncate length %d", length)
	}
	if length >= int64(len(b.data)) {
		return nil
	}
	b.data = b.data[:length]
	return nil
}

// GetBinaryStream returns a forward-only reader over the blob starting at
// offset 0.
func (b *Blob) GetBinaryStream() (InputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return nil, dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	snapshot := make([]byte, len(b.data))
	copy(snapshot, b.data)
	return NewMemoryInputStream(snapshot), nil
}

// SetBinaryStream returns a writer that appends into the blob starting at
// pos (1-based).
func (b *Blob) SetBinaryStream(pos int64) (OutputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free {
		return nil, dbcerr.New(dbcerr.ResourceClosed, "blob already freed")
	}
	return NewMemoryOutputStream(b, pos), nil
}

// Free releases the blob's backing store. Idempotent.
func (b *Blob) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.free = true
	b.data = nil
	return nil
}
