package fs

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/aretw0/humus/pkg/core"
)

// Op is the kind of mutation a Record captures.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Record is an immutable log entry.
//
// Frame layout (little endian):
//   - payload length (4 bytes)
//   - CRC32 (IEEE) of the payload (4 bytes)
//   - CRC32 (IEEE) of the two fields above (4 bytes)
//   - payload:
//     version (1) | op (1) | seq (8) | time (8) | generation (8) |
//     hash length (1) | hash | id length (2) | id | body length (4) | body
type Record struct {
	Op   Op
	ID   string
	Rev  core.Revision
	Body []byte // canonical JSON, empty for tombstones
	Seq  uint64 // logical timestamp, assigned by the log
	Time int64  // wall clock, unix nanoseconds
}

const (
	recordVersion  = 1
	frameHeaderLen = 12
	// MaxPayloadSize bounds a single record; larger length prefixes are
	// treated as corruption.
	MaxPayloadSize = 16 << 20

	fixedPayloadLen = 1 + 1 + 8 + 8 + 8 + 1 + 2 + 4
)

// frameLen is the on-disk size of a record, header included.
func (r *Record) frameLen() int {
	return frameHeaderLen + fixedPayloadLen + len(r.Rev.Hash) + len(r.ID) + len(r.Body)
}

// encode serializes the record into a complete frame.
func (r *Record) encode() ([]byte, error) {
	if len(r.ID) > 0xFFFF {
		return nil, fmt.Errorf("%w: id longer than %d bytes", core.ErrInvalidDocument, 0xFFFF)
	}
	if len(r.Rev.Hash) > 0xFF {
		return nil, fmt.Errorf("%w: revision hash too long", core.ErrInvalidDocument)
	}
	payloadLen := r.frameLen() - frameHeaderLen
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("%w: record of %d bytes exceeds %d", core.ErrInvalidDocument, payloadLen, MaxPayloadSize)
	}

	buf := make([]byte, frameHeaderLen+payloadLen)
	p := buf[frameHeaderLen:]
	off := 0

	p[off] = recordVersion
	off++
	p[off] = byte(r.Op)
	off++
	binary.LittleEndian.PutUint64(p[off:], r.Seq)
	off += 8
	binary.LittleEndian.PutUint64(p[off:], uint64(r.Time))
	off += 8
	binary.LittleEndian.PutUint64(p[off:], r.Rev.Generation)
	off += 8
	p[off] = byte(len(r.Rev.Hash))
	off++
	off += copy(p[off:], r.Rev.Hash)
	binary.LittleEndian.PutUint16(p[off:], uint16(len(r.ID)))
	off += 2
	off += copy(p[off:], r.ID)
	binary.LittleEndian.PutUint32(p[off:], uint32(len(r.Body)))
	off += 4
	copy(p[off:], r.Body)

	binary.LittleEndian.PutUint32(buf[0:], uint32(payloadLen))
	binary.LittleEndian.PutUint32(buf[4:], crc32.ChecksumIEEE(p))
	binary.LittleEndian.PutUint32(buf[8:], crc32.ChecksumIEEE(buf[:8]))
	return buf, nil
}

// parseHeader splits a frame header into payload length and checksum. ok is
// false when the header fails its own checksum or declares a payload larger
// than MaxPayloadSize; length is meaningless then.
func parseHeader(hdr []byte) (length uint32, checksum uint32, ok bool) {
	length = binary.LittleEndian.Uint32(hdr[0:])
	checksum = binary.LittleEndian.Uint32(hdr[4:])
	if crc32.ChecksumIEEE(hdr[:8]) != binary.LittleEndian.Uint32(hdr[8:]) {
		return 0, 0, false
	}
	return length, checksum, length <= MaxPayloadSize
}

// allZero reports whether b holds only zero bytes.
func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// decodePayload verifies and decodes a payload.
func decodePayload(payload []byte, checksum uint32) (Record, error) {
	if crc32.ChecksumIEEE(payload) != checksum {
		return Record{}, fmt.Errorf("%w: checksum mismatch", core.ErrCorruptRecord)
	}
	if len(payload) < fixedPayloadLen {
		return Record{}, fmt.Errorf("%w: payload too short", core.ErrCorruptRecord)
	}

	var r Record
	off := 0
	if payload[off] != recordVersion {
		return Record{}, fmt.Errorf("%w: unknown record version %d", core.ErrCorruptRecord, payload[off])
	}
	off++
	r.Op = Op(payload[off])
	off++
	if r.Op < OpCreate || r.Op > OpDelete {
		return Record{}, fmt.Errorf("%w: unknown op %d", core.ErrCorruptRecord, r.Op)
	}
	r.Seq = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	r.Time = int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	r.Rev.Generation = binary.LittleEndian.Uint64(payload[off:])
	off += 8

	hashLen := int(payload[off])
	off++
	if len(payload) < off+hashLen+2 {
		return Record{}, fmt.Errorf("%w: truncated hash", core.ErrCorruptRecord)
	}
	r.Rev.Hash = string(payload[off : off+hashLen])
	off += hashLen

	idLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) < off+idLen+4 {
		return Record{}, fmt.Errorf("%w: truncated id", core.ErrCorruptRecord)
	}
	r.ID = string(payload[off : off+idLen])
	off += idLen

	bodyLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if len(payload) != off+bodyLen {
		return Record{}, fmt.Errorf("%w: body length mismatch", core.ErrCorruptRecord)
	}
	if bodyLen > 0 {
		r.Body = make([]byte, bodyLen)
		copy(r.Body, payload[off:])
	}
	return r, nil
}
