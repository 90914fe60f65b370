package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/dkit/dkit/internal/checksum"
	"github.com/dkit/dkit/internal/store"
	"github.com/dkit/dkit/pkg/config"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

const (
	snapshotMagic      uint32 = 0x50534B44
	snapshotVersion    uint16 = 1
	snapshotHeaderSize        = 36

	flagBodyCompressed      uint16 = 1 << 0
	flagBodyChecksumPresent uint16 = 1 << 1
	flagChecksumAlgoShift          = 2
	flagChecksumAlgoMask   uint16 = 0x3 << flagChecksumAlgoShift
)

// compressBody zstd-compresses body, the way columnar.compressColumn
// creates a fresh encoder per call rather than keeping one open across
// snapshots.
func compressBody(body []byte, level int) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedDefault)}
	if level > 0 {
		opts = []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))}
	}
	buf := bytes.NewBuffer(nil)
	enc, err := zstd.NewWriter(buf, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating zstd encoder: %v", dkiterrors.ErrIOError, err)
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		return nil, fmt.Errorf("%w: compressing snapshot body: %v", dkiterrors.ErrIOError, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing zstd encoder: %v", dkiterrors.ErrIOError, err)
	}
	return buf.Bytes(), nil
}

// decompressBody reverses compressBody.
func decompressBody(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: creating zstd decoder: %v", dkiterrors.ErrIOError, err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing snapshot body: %v", dkiterrors.ErrIOError, err)
	}
	return out, nil
}

// snapshotHeader is the exact 36-byte on-disk header (spec.md §6).
type snapshotHeader struct {
	magic          uint32
	version        uint16
	flags          uint16
	structType     uint32
	count          uint64
	dataLen        uint64
	headerChecksum uint64
}

func encodeSnapshotHeader(h snapshotHeader) []byte {
	buf := make([]byte, snapshotHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.version)
	binary.LittleEndian.PutUint16(buf[6:8], h.flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.structType)
	binary.LittleEndian.PutUint64(buf[12:20], h.count)
	binary.LittleEndian.PutUint64(buf[20:28], h.dataLen)
	binary.LittleEndian.PutUint64(buf[28:36], h.headerChecksum)
	return buf
}

func decodeSnapshotHeader(buf []byte) (snapshotHeader, error) {
	if len(buf) < snapshotHeaderSize {
		return snapshotHeader{}, fmt.Errorf("%w: snapshot header truncated", dkiterrors.ErrCorruptHeader)
	}
	h := snapshotHeader{
		magic:          binary.LittleEndian.Uint32(buf[0:4]),
		version:        binary.LittleEndian.Uint16(buf[4:6]),
		flags:          binary.LittleEndian.Uint16(buf[6:8]),
		structType:     binary.LittleEndian.Uint32(buf[8:12]),
		count:          binary.LittleEndian.Uint64(buf[12:20]),
		dataLen:        binary.LittleEndian.Uint64(buf[20:28]),
		headerChecksum: binary.LittleEndian.Uint64(buf[28:36]),
	}
	return h, nil
}

// headerChecksumOf computes the fixed 64-bit xxhash header checksum
// over the header bytes with the checksum field itself zeroed.
func headerChecksumOf(h snapshotHeader) uint64 {
	h.headerChecksum = 0
	buf := encodeSnapshotHeader(h)
	return xxhash.Sum64(buf)
}

func bodyAlgoFromFlags(flags uint16) dkittypes.ChecksumAlgo {
	tag := (flags & flagChecksumAlgoMask) >> flagChecksumAlgoShift
	switch tag {
	case 0:
		return dkittypes.AlgoNone
	case 1:
		return dkittypes.Algo32
	case 2:
		return dkittypes.Algo64
	default:
		return dkittypes.Algo128
	}
}

func flagsForAlgo(algo dkittypes.ChecksumAlgo) uint16 {
	var tag uint16
	switch algo {
	case dkittypes.AlgoNone:
		tag = 0
	case dkittypes.Algo32:
		tag = 1
	case dkittypes.Algo64:
		tag = 2
	default:
		tag = 3
	}
	flags := tag << flagChecksumAlgoShift
	if algo != dkittypes.AlgoNone {
		flags |= flagBodyChecksumPresent
	}
	return flags
}

// WriteSnapshot serializes the engine's current structure via its Ops
// and writes a complete snapshot file to the snapshot store: header, body, trailing
// body checksum, truncating away any stale tail.
func (e *Engine) WriteSnapshot() error {
	if e.snapStore == nil {
		return fmt.Errorf("%w: no snapshot store configured", dkiterrors.ErrNotConfigured)
	}
	start := time.Now()

	body, err := e.ops.Snapshot(e.structure)
	if err != nil {
		return err
	}

	wireBody := body
	var flags uint16
	if e.cfg.CompressionKind == config.CompressionZstd && len(body) > 0 {
		wireBody, err = compressBody(body, e.cfg.CompressionLevel)
		if err != nil {
			return err
		}
		flags |= flagBodyCompressed
	}

	algo := e.cfg.ChecksumAlgo
	flags |= flagsForAlgo(algo)
	h := snapshotHeader{
		magic:      snapshotMagic,
		version:    snapshotVersion,
		flags:      flags,
		structType: e.ops.StructType(),
		count:      uint64(e.ops.Count(e.structure)),
		dataLen:    uint64(len(wireBody)),
	}
	h.headerChecksum = headerChecksumOf(h)

	if err := e.snapStore.Seek(0); err != nil {
		return err
	}
	if _, err := e.snapStore.Write(encodeSnapshotHeader(h)); err != nil {
		return err
	}
	if len(wireBody) > 0 {
		if _, err := e.snapStore.Write(wireBody); err != nil {
			return err
		}
	}

	if algo != dkittypes.AlgoNone {
		sum, err := checksum.Compute(algo, wireBody)
		if err != nil {
			return err
		}
		if _, err := e.snapStore.Write(sum.Bytes()); err != nil {
			return err
		}
	}

	if err := e.snapStore.Truncate(); err != nil {
		return err
	}
	if err := e.snapStore.Sync(); err != nil {
		return err
	}

	e.stats.SnapshotCount++
	e.stats.SnapshotBytes = int64(snapshotHeaderSize + len(wireBody) + algo.Len())
	e.stats.LastSnapshotTime = time.Now()
	e.stats.LastSnapshotDuration = e.stats.LastSnapshotTime.Sub(start)
	return nil
}

// ReadSnapshot reads and validates a snapshot file from the snapshot
// store, restoring it into e.structure via the Ops registry.
func (e *Engine) ReadSnapshot() error {
	if e.snapStore == nil {
		return fmt.Errorf("%w: no snapshot store configured", dkiterrors.ErrNotConfigured)
	}
	if err := e.snapStore.Seek(0); err != nil {
		return err
	}

	headerBuf := make([]byte, snapshotHeaderSize)
	if _, err := readFull(e.snapStore, headerBuf); err != nil {
		return fmt.Errorf("%w: reading snapshot header: %v", dkiterrors.ErrCorruptHeader, err)
	}
	h, err := decodeSnapshotHeader(headerBuf)
	if err != nil {
		return err
	}
	if h.magic != snapshotMagic {
		return fmt.Errorf("%w: bad snapshot magic %#x", dkiterrors.ErrCorruptHeader, h.magic)
	}
	if h.version > snapshotVersion {
		return fmt.Errorf("%w: snapshot version %d newer than supported %d", dkiterrors.ErrUnsupportedVersion, h.version, snapshotVersion)
	}
	if headerChecksumOf(h) != h.headerChecksum {
		return fmt.Errorf("%w: snapshot header checksum mismatch", dkiterrors.ErrCorruptHeader)
	}
	if h.structType != e.ops.StructType() {
		return fmt.Errorf("%w: snapshot structType %d does not match registered type %d", dkiterrors.ErrTypeMismatch, h.structType, e.ops.StructType())
	}

	wireBody := make([]byte, h.dataLen)
	if h.dataLen > 0 {
		n, err := readFull(e.snapStore, wireBody)
		if err != nil || uint64(n) != h.dataLen {
			return fmt.Errorf("%w: snapshot body shorter than dataLen", dkiterrors.ErrCorruptEntry)
		}
	}

	if h.flags&flagBodyChecksumPresent != 0 {
		algo := bodyAlgoFromFlags(h.flags)
		want := make([]byte, algo.Len())
		if n, err := readFull(e.snapStore, want); err != nil || n != len(want) {
			return fmt.Errorf("%w: truncated snapshot body checksum", dkiterrors.ErrCorruptEntry)
		}
		expected, err := checksum.FromBytes(algo, want)
		if err != nil {
			return err
		}
		if !checksum.Verify(expected, wireBody) {
			return fmt.Errorf("%w: snapshot body checksum mismatch", dkiterrors.ErrChecksumMismatch)
		}
	}

	body := wireBody
	if h.flags&flagBodyCompressed != 0 && len(wireBody) > 0 {
		body, err = decompressBody(wireBody)
		if err != nil {
			return err
		}
	}

	restored, err := e.ops.Restore(body)
	if err != nil {
		return err
	}
	if v, ok := e.ops.(Validator); ok {
		if err := v.Validate(restored); err != nil {
			if f, ok := e.ops.(Freer); ok {
				f.Free(restored)
			}
			return fmt.Errorf("%w: %v", dkiterrors.ErrValidationFailed, err)
		}
	}

	e.structure = restored
	return nil
}

// readFull reads exactly len(buf) bytes from s, or returns an error
// (store.Store's Read returns io.EOF rather than a short-read error,
// so this loop is needed the way bufio/io.ReadFull needs one for any
// io.Reader that may return short reads).
func readFull(s store.Store, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("%w: short read", dkiterrors.ErrIOError)
		}
	}
	return total, nil
}
