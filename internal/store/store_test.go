package store

import (
	"io"
	"path/filepath"
	"testing"
)

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory()
	if _, err := m.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 11)
	n, err := m.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 11 || string(buf) != "hello world" {
		t.Fatalf("Read = %q (%d bytes)", buf, n)
	}
}

func TestMemoryReadPastSizeIsEOF(t *testing.T) {
	m := NewMemory()
	_, _ = m.Write([]byte("ab"))
	if err := m.Seek(10); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 4)
	n, err := m.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read past size = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestMemorySizeTracksHighWaterMark(t *testing.T) {
	m := NewMemory()
	_, _ = m.Write([]byte("abcdef"))
	_ = m.Seek(2)
	_, _ = m.Write([]byte("XY"))
	size, _ := m.Size()
	if size != 6 {
		t.Fatalf("size = %d, want 6 (write inside existing size must not shrink it)", size)
	}
}

func TestMemoryTruncateSetsSizeToPosition(t *testing.T) {
	m := NewMemory()
	_, _ = m.Write([]byte("abcdefgh"))
	_ = m.Seek(3)
	if err := m.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	size, _ := m.Size()
	if size != 3 {
		t.Fatalf("size after truncate = %d, want 3", size)
	}
}

func TestMemoryPeekReflectsSizeNotCapacity(t *testing.T) {
	m := NewMemory()
	_, _ = m.Write([]byte("abcdef"))
	_ = m.Seek(2)

	buf, size := m.Peek()
	if size != 6 {
		t.Fatalf("Peek size = %d, want 6", size)
	}
	if len(buf) != 6 || string(buf) != "abcdef" {
		t.Fatalf("Peek bytes = %q, want %q", buf, "abcdef")
	}
}

func TestMemorySyncAlwaysSucceeds(t *testing.T) {
	m := NewMemory()
	if err := m.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestMemoryGeometricGrowth(t *testing.T) {
	m := NewMemory()
	big := make([]byte, 10000)
	for i := range big {
		big[i] = byte(i)
	}
	if _, err := m.Write(big); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = m.Seek(0)
	out := make([]byte, len(big))
	n, err := m.Read(out)
	if err != nil || n != len(big) {
		t.Fatalf("Read back large buffer: n=%d err=%v", n, err)
	}
	for i := range big {
		if out[i] != big[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, out[i], big[i])
		}
	}
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "store.bin"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("durable data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := f.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 12)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 12 || string(buf) != "durable data" {
		t.Fatalf("Read = %q", buf)
	}
}

func TestFileTruncateSetsEOFAtOffset(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "store.bin"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	_, _ = f.Write([]byte("0123456789"))
	if err := f.Seek(4); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := f.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 4 {
		t.Fatalf("size after truncate = %d, want 4", size)
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.bin")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	_, _ = f.Write([]byte("persisted"))
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	size, err := f2.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 9 {
		t.Fatalf("size on reopen = %d, want 9", size)
	}
	buf := make([]byte, 9)
	if _, err := f2.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "persisted" {
		t.Fatalf("content = %q", buf)
	}
}
