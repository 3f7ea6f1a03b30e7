package journal

import (
	"encoding/binary"
	"hash/crc32"
	"sort"
	"time"

	"github.com/google/uuid"
)

const recordVersion uint8 = 1

// castagnoliTable is the CRC32C polynomial table used for every record's
// trailing checksum, per the byte-exact wire format.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Entry is one journal record, in memory. ID is the string form of the
// 128-bit trace id split across the wire format's two u64 halves.
type Entry struct {
	ID          string
	State       State
	Attempts    uint32
	EnqueueTime time.Time
	Method      string
	Path        string
	Headers     map[string]string
	Body        []byte
}

func traceIDHalves(id string) (lo, hi uint64, err error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return 0, 0, err
	}
	hi = binary.BigEndian.Uint64(u[0:8])
	lo = binary.BigEndian.Uint64(u[8:16])
	return lo, hi, nil
}

func traceIDFromHalves(lo, hi uint64) string {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], hi)
	binary.BigEndian.PutUint64(u[8:16], lo)
	return u.String()
}

func encodeHeaders(h map[string]string) []byte {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 64)
	var tmp [4]byte
	for _, k := range keys {
		v := h[k]
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(k)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, k...)
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, v...)
	}
	return buf
}

func decodeHeaders(buf []byte) (map[string]string, bool) {
	h := make(map[string]string)
	off := 0
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, false
		}
		klen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if klen < 0 || off+klen > len(buf) {
			return nil, false
		}
		k := string(buf[off : off+klen])
		off += klen

		if off+4 > len(buf) {
			return nil, false
		}
		vlen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if vlen < 0 || off+vlen > len(buf) {
			return nil, false
		}
		v := string(buf[off : off+vlen])
		off += vlen

		h[k] = v
	}
	return h, true
}

// EncodeRecord serializes e into the wire format:
// [u32 length][u8 version][u8 state][u16 flags][u64 trace_id_low]
// [u64 trace_id_high][u64 enqueue_time_ns][u32 attempts][u32 method_len]
// [method][u32 path_len][path][u32 headers_len][headers][u64 body_len]
// [body][u32 crc32c]. length covers everything after itself, including
// the trailing crc32c. All integers are little-endian.
func EncodeRecord(e *Entry) ([]byte, error) {
	lo, hi, err := traceIDHalves(e.ID)
	if err != nil {
		return nil, err
	}
	headerBytes := encodeHeaders(e.Headers)

	payload := make([]byte, 0, 64+len(e.Method)+len(e.Path)+len(headerBytes)+len(e.Body))
	var b8 [8]byte
	var b4 [4]byte
	var b2 [2]byte

	payload = append(payload, recordVersion, byte(e.State))
	binary.LittleEndian.PutUint16(b2[:], 0)
	payload = append(payload, b2[:]...)

	binary.LittleEndian.PutUint64(b8[:], lo)
	payload = append(payload, b8[:]...)
	binary.LittleEndian.PutUint64(b8[:], hi)
	payload = append(payload, b8[:]...)
	binary.LittleEndian.PutUint64(b8[:], uint64(e.EnqueueTime.UnixNano()))
	payload = append(payload, b8[:]...)

	binary.LittleEndian.PutUint32(b4[:], e.Attempts)
	payload = append(payload, b4[:]...)

	binary.LittleEndian.PutUint32(b4[:], uint32(len(e.Method)))
	payload = append(payload, b4[:]...)
	payload = append(payload, e.Method...)

	binary.LittleEndian.PutUint32(b4[:], uint32(len(e.Path)))
	payload = append(payload, b4[:]...)
	payload = append(payload, e.Path...)

	binary.LittleEndian.PutUint32(b4[:], uint32(len(headerBytes)))
	payload = append(payload, b4[:]...)
	payload = append(payload, headerBytes...)

	binary.LittleEndian.PutUint64(b8[:], uint64(len(e.Body)))
	payload = append(payload, b8[:]...)
	payload = append(payload, e.Body...)

	crc := crc32.Checksum(payload, castagnoliTable)

	out := make([]byte, 0, 4+len(payload)+4)
	binary.LittleEndian.PutUint32(b4[:], uint32(len(payload)+4))
	out = append(out, b4[:]...)
	out = append(out, payload...)
	binary.LittleEndian.PutUint32(b4[:], crc)
	out = append(out, b4[:]...)
	return out, nil
}

// minPayloadLen is the smallest possible payload: version+state+flags+
// 2 trace halves+enqueue_time+attempts+3 length-prefixed-empty fields+
// body_len, with every variable-length section empty.
const minPayloadLen = 1 + 1 + 2 + 8 + 8 + 8 + 4 + 4 + 4 + 4 + 8

// DecodeRecordAt parses one record starting at offset in buf. It returns
// the decoded entry, the offset of the next record, and true on success.
// Any structural problem (truncated tail, length pointing past the
// buffer, CRC mismatch) returns ok=false — callers must stop scanning at
// that offset and truncate the segment there, per the corruption-scan
// contract.
func DecodeRecordAt(buf []byte, offset int) (*Entry, int, bool) {
	if offset < 0 || offset+4 > len(buf) {
		return nil, offset, false
	}
	length := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	if length < minPayloadLen+4 {
		return nil, offset, false
	}
	total := 4 + length
	if total < 0 || offset+total > len(buf) {
		return nil, offset, false
	}

	payload := buf[offset+4 : offset+total-4]
	crcStored := binary.LittleEndian.Uint32(buf[offset+total-4 : offset+total])
	if crc32.Checksum(payload, castagnoliTable) != crcStored {
		return nil, offset, false
	}

	e, ok := decodePayload(payload)
	if !ok {
		return nil, offset, false
	}
	return e, offset + total, true
}

func decodePayload(p []byte) (*Entry, bool) {
	if len(p) < minPayloadLen {
		return nil, false
	}
	off := 0
	version := p[off]
	off++
	if version != recordVersion {
		return nil, false
	}
	state := State(p[off])
	off++
	off += 2 // flags, currently unused

	lo := binary.LittleEndian.Uint64(p[off : off+8])
	off += 8
	hi := binary.LittleEndian.Uint64(p[off : off+8])
	off += 8
	enqueueNs := binary.LittleEndian.Uint64(p[off : off+8])
	off += 8
	attempts := binary.LittleEndian.Uint32(p[off : off+4])
	off += 4

	methodLen := int(binary.LittleEndian.Uint32(p[off : off+4]))
	off += 4
	if methodLen < 0 || off+methodLen > len(p) {
		return nil, false
	}
	method := string(p[off : off+methodLen])
	off += methodLen

	if off+4 > len(p) {
		return nil, false
	}
	pathLen := int(binary.LittleEndian.Uint32(p[off : off+4]))
	off += 4
	if pathLen < 0 || off+pathLen > len(p) {
		return nil, false
	}
	path := string(p[off : off+pathLen])
	off += pathLen

	if off+4 > len(p) {
		return nil, false
	}
	headersLen := int(binary.LittleEndian.Uint32(p[off : off+4]))
	off += 4
	if headersLen < 0 || off+headersLen > len(p) {
		return nil, false
	}
	headers, ok := decodeHeaders(p[off : off+headersLen])
	if !ok {
		return nil, false
	}
	off += headersLen

	if off+8 > len(p) {
		return nil, false
	}
	bodyLen := int(binary.LittleEndian.Uint64(p[off : off+8]))
	off += 8
	if bodyLen < 0 || off+bodyLen > len(p) {
		return nil, false
	}
	body := make([]byte, bodyLen)
	copy(body, p[off:off+bodyLen])
	off += bodyLen

	return &Entry{
		ID:          traceIDFromHalves(lo, hi),
		State:       state,
		Attempts:    attempts,
		EnqueueTime: time.Unix(0, int64(enqueueNs)).UTC(),
		Method:      method,
		Path:        path,
		Headers:     headers,
		Body:        body,
	}, true
}
