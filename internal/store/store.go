// Package store implements the Store abstraction (spec.md §4.11): a
// polymorphic sink/source for the snapshot and WAL engines, with a
// memory-backed implementation for tests and ephemeral engines and a
// file-backed implementation for durable ones. A Store is exclusively
// owned by at most one caller at a time; neither implementation here
// does its own locking.
package store

import (
	"fmt"
	"io"
	"os"

	"github.com/dkit/dkit/pkg/dkiterrors"
)

// Store is the eight-operation interface every persistence component
// reads and writes through.
type Store interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Seek(offset int64) error
	Tell() (int64, error)
	Sync() error
	Truncate() error
	Size() (int64, error)
	Close() error
}

// Memory is an in-memory Store: a growing buffer with geometric
// capacity doubling. position and size are tracked separately, so a
// write past the current size extends it while a seek past the end
// followed by a read returns zero bytes and io.EOF.
type Memory struct {
	buf      []byte
	size     int64
	position int64
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Peek returns the backing bytes currently in use (buf[:size]) and the
// current logical size, without affecting position. The returned slice
// aliases Memory's internal buffer and must not be retained past the
// next write.
func (m *Memory) Peek() ([]byte, int64) {
	return m.buf[:m.size], m.size
}

func (m *Memory) ensureCapacity(need int64) {
	if int64(len(m.buf)) >= need {
		return
	}
	newCap := int64(len(m.buf))
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < need {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, m.buf)
	m.buf = grown
}

// Write copies p into the buffer at the current position, advancing
// position and extending size if the write reaches past it.
func (m *Memory) Write(p []byte) (int, error) {
	end := m.position + int64(len(p))
	m.ensureCapacity(end)
	copy(m.buf[m.position:end], p)
	m.position = end
	if m.position > m.size {
		m.size = m.position
	}
	return len(p), nil
}

// Read copies min(len(p), size-position) bytes from the buffer into p.
// Reading past size is not an error; it simply yields fewer bytes
// (io.EOF once nothing remains, matching io.Reader convention).
func (m *Memory) Read(p []byte) (int, error) {
	if m.position >= m.size {
		return 0, io.EOF
	}
	avail := m.size - m.position
	n := int64(len(p))
	if n > avail {
		n = avail
	}
	copy(p[:n], m.buf[m.position:m.position+n])
	m.position += n
	return int(n), nil
}

// Seek repositions for the next Write/Read. Seeking past size is
// allowed for a subsequent write; a subsequent read from there yields
// io.EOF rather than an error.
func (m *Memory) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative seek offset %d", dkiterrors.ErrInvalidArgument, offset)
	}
	m.position = offset
	return nil
}

// Tell returns the current position.
func (m *Memory) Tell() (int64, error) {
	return m.position, nil
}

// Sync is a no-op for Memory and always succeeds.
func (m *Memory) Sync() error {
	return nil
}

// Truncate sets size to the current position.
func (m *Memory) Truncate() error {
	m.size = m.position
	return nil
}

// Size returns the logical size of the store.
func (m *Memory) Size() (int64, error) {
	return m.size, nil
}

// Close is a no-op for Memory.
func (m *Memory) Close() error {
	return nil
}

// File is a Store backed by an *os.File: thin positioned-I/O wrappers
// around the file descriptor.
type File struct {
	f        *os.File
	position int64
}

// OpenFile opens (creating if necessary) the file at path for a File
// store.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening store file %q: %v", dkiterrors.ErrIOError, path, err)
	}
	return &File{f: f}, nil
}

// Write writes p at the file's current position.
func (s *File) Write(p []byte) (int, error) {
	n, err := s.f.WriteAt(p, s.position)
	s.position += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %v", dkiterrors.ErrIOError, err)
	}
	return n, nil
}

// Read reads into p from the file's current position. Reading past the
// file's size returns io.EOF, matching the Memory store's contract.
func (s *File) Read(p []byte) (int, error) {
	n, err := s.f.ReadAt(p, s.position)
	s.position += int64(n)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %v", dkiterrors.ErrIOError, err)
	}
	return n, err
}

// Seek repositions for the next Write/Read.
func (s *File) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative seek offset %d", dkiterrors.ErrInvalidArgument, offset)
	}
	s.position = offset
	return nil
}

// Tell returns the current position.
func (s *File) Tell() (int64, error) {
	return s.position, nil
}

// Sync flushes both data and metadata to stable storage.
func (s *File) Sync() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing store file: %v", dkiterrors.ErrIOError, err)
	}
	return nil
}

// Truncate sets the file's EOF to the current position.
func (s *File) Truncate() error {
	if err := s.f.Truncate(s.position); err != nil {
		return fmt.Errorf("%w: truncating store file: %v", dkiterrors.ErrIOError, err)
	}
	return nil
}

// Size returns the file's current size on disk.
func (s *File) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: statting store file: %v", dkiterrors.ErrIOError, err)
	}
	return info.Size(), nil
}

// Close closes the underlying file descriptor.
func (s *File) Close() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("%w: closing store file: %v", dkiterrors.ErrIOError, err)
	}
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
)
