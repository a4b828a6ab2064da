package hpack

import (
	"io"
)

// An Encoder compresses header lists for one connection. It only emits
// literal representations, referencing the static table for well-known
// names; it never populates its own dynamic table, so a single corrupted
// response cannot poison later requests. The peer's table-size settings
// still have to be acknowledged on the wire, which is what
// SetMaxDynamicTableSize arranges.
type Encoder struct {
	w   io.Writer
	buf []byte

	// tableSizeUpdate, when pending, is emitted at the start of the next
	// header block per RFC 7541 §4.2.
	tableSizeUpdate bool
	minSize         uint32
	maxSize         uint32
}

// NewEncoder returns an Encoder writing compressed blocks to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, minSize: uint32Max}
}

const uint32Max = 1<<32 - 1

// SetMaxDynamicTableSize records a table size imposed by the peer's
// SETTINGS_HEADER_TABLE_SIZE. The smallest and final values since the last
// block are signaled at the start of the next one.
func (e *Encoder) SetMaxDynamicTableSize(v uint32) {
	if v < e.minSize {
		e.minSize = v
	}
	e.maxSize = v
	e.tableSizeUpdate = true
}

// WriteField appends one field's literal representation to the pending
// header block. Sensitive fields use the never-indexed form.
func (e *Encoder) WriteField(f HeaderField) error {
	if e.tableSizeUpdate {
		e.tableSizeUpdate = false
		if e.minSize < e.maxSize {
			e.buf = appendVarInt(e.buf, 5, 0x20, uint64(e.minSize))
		}
		e.buf = appendVarInt(e.buf, 5, 0x20, uint64(e.maxSize))
		e.minSize = uint32Max
	}

	// Literal without indexing (0000xxxx), or never indexed (0001xxxx)
	// for sensitive fields. Both use a 4-bit name index prefix.
	var pattern byte = 0x00
	if f.Sensitive {
		pattern = 0x10
	}
	idx := staticNameIndex[f.Name]
	e.buf = appendVarInt(e.buf, 4, pattern, idx)
	if idx == 0 {
		e.buf = appendString(e.buf, f.Name)
	}
	e.buf = appendString(e.buf, f.Value)

	n, err := e.w.Write(e.buf)
	if err == nil && n != len(e.buf) {
		err = io.ErrShortWrite
	}
	e.buf = e.buf[:0]
	return err
}

// appendVarInt appends i using an n-bit prefix, ORing pattern into the
// first octet's high bits.
func appendVarInt(dst []byte, n uint8, pattern byte, i uint64) []byte {
	k := uint64(1)<<n - 1
	if i < k {
		return append(dst, pattern|byte(i))
	}
	dst = append(dst, pattern|byte(k))
	i -= k
	for i >= 0x80 {
		dst = append(dst, byte(i)|0x80)
		i >>= 7
	}
	return append(dst, byte(i))
}

// appendString appends s as a raw (non-Huffman) string literal.
func appendString(dst []byte, s string) []byte {
	dst = appendVarInt(dst, 7, 0, uint64(len(s)))
	return append(dst, s...)
}
