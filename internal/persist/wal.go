package persist

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/dkit/dkit/pkg/config"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

const (
	walMagic      uint32 = 0x4C574B44
	walVersion    uint16 = 1
	walHeaderSize        = 24

	walEntryMinLen = 13        // seq(8) + op(1) + checksum32(4), empty payload
	walEntryMaxLen = 100000000 // 10^8, per spec.md §4.13

	syncIntervalMicros = 1_000_000 // EVERYSEC threshold, 10^6 microseconds
)

// walState is the WAL session state machine (spec.md §4.16):
// fresh -> headerWritten -> appending -> closing.
type walState int

const (
	walFresh walState = iota
	walHeaderWritten
	walAppending
	walClosing
)

type walHeader struct {
	magic          uint32
	version        uint16
	flags          uint16
	structType     uint32
	startSequence  uint64
	headerChecksum uint32
}

func encodeWALHeader(h walHeader) []byte {
	buf := make([]byte, walHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.version)
	binary.LittleEndian.PutUint16(buf[6:8], h.flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.structType)
	binary.LittleEndian.PutUint64(buf[12:20], h.startSequence)
	crc := crc32.ChecksumIEEE(buf[0:20])
	binary.LittleEndian.PutUint32(buf[20:24], crc)
	return buf
}

func decodeWALHeader(buf []byte) (walHeader, error) {
	if len(buf) < walHeaderSize {
		return walHeader{}, fmt.Errorf("%w: WAL header truncated", dkiterrors.ErrCorruptHeader)
	}
	h := walHeader{
		magic:         binary.LittleEndian.Uint32(buf[0:4]),
		version:       binary.LittleEndian.Uint16(buf[4:6]),
		flags:         binary.LittleEndian.Uint16(buf[6:8]),
		structType:    binary.LittleEndian.Uint32(buf[8:12]),
		startSequence: binary.LittleEndian.Uint64(buf[12:20]),
	}
	h.headerChecksum = binary.LittleEndian.Uint32(buf[20:24])
	if crc32.ChecksumIEEE(buf[0:20]) != h.headerChecksum {
		return walHeader{}, fmt.Errorf("%w: WAL header checksum mismatch", dkiterrors.ErrCorruptHeader)
	}
	if h.magic != walMagic {
		return walHeader{}, fmt.Errorf("%w: bad WAL magic %#x", dkiterrors.ErrCorruptHeader, h.magic)
	}
	if h.version > walVersion {
		return walHeader{}, fmt.Errorf("%w: WAL version %d newer than supported %d", dkiterrors.ErrUnsupportedVersion, h.version, walVersion)
	}
	return h, nil
}

// encodeWALEntry writes len|seq|op|payload|checksum32, returning the
// full entry bytes. len excludes its own four bytes.
func encodeWALEntry(seq uint64, op dkittypes.Operation, payload []byte) []byte {
	body := make([]byte, 8+1+len(payload))
	binary.LittleEndian.PutUint64(body[0:8], seq)
	body[8] = byte(op)
	copy(body[9:], payload)
	crc := crc32.ChecksumIEEE(body)

	out := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)+4))
	copy(out[4:4+len(body)], body)
	binary.LittleEndian.PutUint32(out[4+len(body):], crc)
	return out
}

type walEntry struct {
	seq     uint64
	op      dkittypes.Operation
	payload []byte
}

// decodeWALEntry decodes a single entry from the front of src (src
// starts at the length prefix), returning the entry and bytes
// consumed. bodyLen is the declared length field's value.
func decodeWALEntry(src []byte) (walEntry, int, error) {
	if len(src) < 4 {
		return walEntry{}, 0, fmt.Errorf("%w: truncated WAL entry length", dkiterrors.ErrCorruptEntry)
	}
	bodyLen := binary.LittleEndian.Uint32(src[0:4])
	if bodyLen < walEntryMinLen || bodyLen > walEntryMaxLen {
		return walEntry{}, 0, fmt.Errorf("%w: WAL entry length %d out of bounds", dkiterrors.ErrCorruptEntry, bodyLen)
	}
	total := 4 + int(bodyLen)
	if len(src) < total {
		return walEntry{}, 0, fmt.Errorf("%w: truncated WAL entry body", dkiterrors.ErrCorruptEntry)
	}
	body := src[4 : 4+int(bodyLen)-4]
	wantCRC := binary.LittleEndian.Uint32(src[4+int(bodyLen)-4 : total])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return walEntry{}, 0, fmt.Errorf("%w: WAL entry checksum mismatch", dkiterrors.ErrChecksumMismatch)
	}
	if len(body) < 9 {
		return walEntry{}, 0, fmt.Errorf("%w: WAL entry body too short", dkiterrors.ErrCorruptEntry)
	}
	seq := binary.LittleEndian.Uint64(body[0:8])
	op := dkittypes.Operation(body[8])
	payload := append([]byte(nil), body[9:]...)
	return walEntry{seq: seq, op: op, payload: payload}, total, nil
}

// initWAL performs the lazy header initialization (spec.md §4.13): on
// the first logOp of a session, look for an existing header; if valid,
// position at end; otherwise write a fresh one.
func (e *Engine) initWAL() error {
	if e.walInitialized {
		return nil
	}
	if e.walStore == nil {
		return fmt.Errorf("%w: no WAL store configured", dkiterrors.ErrNotConfigured)
	}

	size, err := e.walStore.Size()
	if err != nil {
		return err
	}
	if size >= walHeaderSize {
		if err := e.walStore.Seek(0); err != nil {
			return err
		}
		buf := make([]byte, walHeaderSize)
		if _, err := readFull(e.walStore, buf); err == nil {
			if h, err := decodeWALHeader(buf); err == nil && h.structType == e.ops.StructType() {
				if err := e.walStore.Seek(size); err != nil {
					return err
				}
				e.walState = walAppending
				e.walInitialized = true
				return nil
			}
		}
	}

	h := walHeader{
		magic:         walMagic,
		version:       walVersion,
		structType:    e.ops.StructType(),
		startSequence: e.nextSequence,
	}
	if err := e.walStore.Seek(0); err != nil {
		return err
	}
	if _, err := e.walStore.Write(encodeWALHeader(h)); err != nil {
		return err
	}
	if err := e.walStore.Truncate(); err != nil {
		return err
	}
	e.walState = walHeaderWritten
	e.walInitialized = true
	return nil
}

// LogOp assigns the next sequence number to op/payload, buffers the
// encoded entry, and flushes/syncs per the configured sync mode
// (spec.md §4.13).
func (e *Engine) LogOp(op dkittypes.Operation, payload []byte) error {
	if err := e.initWAL(); err != nil {
		return err
	}
	e.walState = walAppending

	seq := e.nextSequence
	e.nextSequence++
	entry := encodeWALEntry(seq, op, payload)
	e.walBuffer = append(e.walBuffer, entry...)
	e.stats.WALEntries++

	shouldFlush := len(e.walBuffer) >= e.cfg.WALBufferSize

	switch e.cfg.SyncMode {
	case config.SyncAlways:
		if err := e.flushWAL(); err != nil {
			return err
		}
		if err := e.walStore.Sync(); err != nil {
			return err
		}
		e.lastSyncTime = time.Now()
		return nil
	case config.SyncEverySec:
		if shouldFlush {
			if err := e.flushWAL(); err != nil {
				return err
			}
		}
		if time.Since(e.lastSyncTime).Microseconds() > syncIntervalMicros {
			if err := e.flushWAL(); err != nil {
				return err
			}
			if err := e.walStore.Sync(); err != nil {
				return err
			}
			e.lastSyncTime = time.Now()
		}
		return nil
	default: // SyncNone
		if shouldFlush {
			return e.flushWAL()
		}
		return nil
	}
}

// flushWAL writes any buffered entry bytes to the WAL store.
func (e *Engine) flushWAL() error {
	if len(e.walBuffer) == 0 {
		return nil
	}
	if _, err := e.walStore.Write(e.walBuffer); err != nil {
		return err
	}
	e.walBuffer = e.walBuffer[:0]
	return nil
}

// CloseWAL flushes remaining buffered entries and transitions to the
// closing state.
func (e *Engine) CloseWAL() error {
	if e.walStore == nil {
		return nil
	}
	e.walState = walClosing
	if err := e.flushWAL(); err != nil {
		return err
	}
	return e.walStore.Sync()
}

// replayWAL replays every entry after the WAL header into the engine's
// structure via ops.ApplyOp (or ApplyOpScratch, if scratch is non-nil
// and ops supports it). strict mode aborts on the first corrupt entry.
// lenient mode skips an entry that fails its checksum or ApplyOp and
// continues; a length prefix out of bounds or a truncated entry is
// counted as skipped and ends replay there.
func (e *Engine) replayWAL(scratch interface{}) error {
	if e.walStore == nil {
		return nil
	}
	size, err := e.walStore.Size()
	if err != nil {
		return err
	}
	if size < walHeaderSize {
		return nil
	}
	if err := e.walStore.Seek(0); err != nil {
		return err
	}
	headerBuf := make([]byte, walHeaderSize)
	if _, err := readFull(e.walStore, headerBuf); err != nil {
		return fmt.Errorf("%w: reading WAL header: %v", dkiterrors.ErrCorruptHeader, err)
	}
	h, err := decodeWALHeader(headerBuf)
	if err != nil {
		return err
	}
	if h.structType != e.ops.StructType() {
		return fmt.Errorf("%w: WAL structType %d does not match registered type %d", dkiterrors.ErrTypeMismatch, h.structType, e.ops.StructType())
	}
	e.nextSequence = h.startSequence

	scratchOps, _ := e.ops.(ScratchOps)

	remaining := size - walHeaderSize
	for remaining > 0 {
		lenBuf := make([]byte, 4)
		n, err := readFull(e.walStore, lenBuf)
		if err != nil || n < 4 {
			break // trailing partial length prefix: end of valid log
		}
		bodyLen := binary.LittleEndian.Uint32(lenBuf)
		if bodyLen < walEntryMinLen || bodyLen > walEntryMaxLen {
			if e.cfg.StrictRecovery {
				return fmt.Errorf("%w: WAL entry length %d out of bounds", dkiterrors.ErrCorruptEntry, bodyLen)
			}
			e.stats.EntriesSkipped++
			break
		}
		bodyBuf := make([]byte, bodyLen)
		n, err = readFull(e.walStore, bodyBuf)
		if err != nil || uint32(n) != bodyLen {
			if e.cfg.StrictRecovery {
				return fmt.Errorf("%w: truncated WAL entry", dkiterrors.ErrCorruptEntry)
			}
			e.stats.EntriesSkipped++
			break
		}
		remaining -= int64(4 + int(bodyLen))

		full := append(append([]byte(nil), lenBuf...), bodyBuf...)
		entry, _, err := decodeWALEntry(full)
		if err != nil {
			if e.cfg.StrictRecovery {
				return err
			}
			e.stats.EntriesSkipped++
			continue
		}

		var next Structure
		if scratch != nil && scratchOps != nil {
			next, err = scratchOps.ApplyOpScratch(e.structure, entry.op, entry.payload, scratch)
		} else {
			next, err = e.ops.ApplyOp(e.structure, entry.op, entry.payload)
		}
		if err != nil {
			if e.cfg.StrictRecovery {
				if f, ok := e.ops.(Freer); ok {
					f.Free(e.structure)
				}
				return err
			}
			e.stats.EntriesSkipped++
			continue
		}
		e.structure = next

		if entry.seq+1 > e.nextSequence {
			e.nextSequence = entry.seq + 1
		}
		e.stats.EntriesRecovered++
	}
	return nil
}
