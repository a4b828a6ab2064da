// Package hpack implements the HTTP/2 header compression format
// (RFC 7541) as used by the h2 connection engine.
//
// The encoder and decoder each hold independent dynamic-table state. The
// state is owned by exactly one connection and survives for its lifetime;
// any decoding failure desynchronizes it permanently, which is why every
// DecodingError is connection-fatal.
package hpack

import (
	"errors"
	"fmt"
)

// A HeaderField is one (name, value) pair of a header list. Ordering of
// fields is significant for pseudo-headers.
type HeaderField struct {
	Name, Value string

	// Sensitive marks a field that must never enter a compression table
	// (it is encoded with the never-indexed literal form).
	Sensitive bool
}

func (f HeaderField) String() string {
	var suffix string
	if f.Sensitive {
		suffix = " (sensitive)"
	}
	return fmt.Sprintf("header field %q = %q%s", f.Name, f.Value, suffix)
}

// Size returns the RFC 7541 §4.1 size of the entry: octet lengths plus a
// fixed 32-byte overhead.
func (f HeaderField) Size() uint32 {
	return uint32(len(f.Name) + len(f.Value) + entryOverhead)
}

// IsPseudo reports whether the field is an HTTP/2 pseudo-header.
func (f HeaderField) IsPseudo() bool {
	return len(f.Name) != 0 && f.Name[0] == ':'
}

// A DecodingError wraps the cause of a failed header-block decode. It is
// connection-fatal: the decoder's table state can no longer be trusted.
type DecodingError struct {
	Err error
}

func (de DecodingError) Error() string {
	return fmt.Sprintf("hpack: decoding error: %v", de.Err)
}

func (de DecodingError) Unwrap() error { return de.Err }

var (
	errIndexZero      = errors.New("index 0 is not valid")
	errIndexRange     = errors.New("index out of table range")
	errIntegerTooBig  = errors.New("integer overflows decoder limit")
	errTruncated      = errors.New("truncated header block")
	errTableSizeOver  = errors.New("dynamic table size update exceeds advertised limit")
	errStringTooLong  = errors.New("string literal exceeds header list limit")
	errNeedMore       = errors.New("string length past end of block")
)

const (
	// DefaultHeaderTableSize is the dynamic table size in effect before
	// any SETTINGS exchange.
	DefaultHeaderTableSize = 4096

	// defaultMaxStringLen bounds a single decoded literal when the caller
	// sets no header-list limit.
	defaultMaxStringLen = 1 << 20
)

// A Decoder decompresses header blocks. One Decoder serves one connection;
// it must not be shared.
type Decoder struct {
	dynTab dynamicTable

	// allowedMaxSize caps the table-size updates the peer may issue: the
	// value we advertised in SETTINGS_HEADER_TABLE_SIZE.
	allowedMaxSize uint32

	// maxStringLen bounds any single decoded name or value.
	maxStringLen uint32
}

// NewDecoder returns a Decoder whose peer may size the dynamic table up to
// maxDynamicTableSize.
func NewDecoder(maxDynamicTableSize uint32) *Decoder {
	d := &Decoder{
		allowedMaxSize: maxDynamicTableSize,
		maxStringLen:   defaultMaxStringLen,
	}
	d.dynTab.maxSize = maxDynamicTableSize
	return d
}

// SetAllowedMaxDynamicTableSize raises or lowers the cap on peer-issued
// table-size updates. Called when our SETTINGS_HEADER_TABLE_SIZE changes.
func (d *Decoder) SetAllowedMaxDynamicTableSize(v uint32) {
	d.allowedMaxSize = v
	if v < d.dynTab.maxSize {
		d.dynTab.setMaxSize(v)
	}
}

// SetMaxStringLength bounds any single decoded name or value literal.
func (d *Decoder) SetMaxStringLength(n uint32) { d.maxStringLen = n }

// DynamicTableSize returns the current size of the decode-side table.
func (d *Decoder) DynamicTableSize() uint32 { return d.dynTab.size }

// Decode decompresses one complete header block. The block must contain
// the concatenated fragments of a HEADERS (or PUSH_PROMISE) frame and all
// its CONTINUATIONs.
//
// On error the decoder must be considered corrupt and the connection torn
// down with a COMPRESSION_ERROR.
func (d *Decoder) Decode(block []byte) ([]HeaderField, error) {
	var fields []HeaderField
	for len(block) > 0 {
		var f HeaderField
		var emit bool
		var err error
		b := block[0]
		switch {
		case b&0x80 != 0:
			// Indexed header field.
			var idx uint64
			idx, block, err = readVarInt(block, 7)
			if err != nil {
				return nil, DecodingError{err}
			}
			var ok bool
			if f, ok = d.dynTab.lookup(idx); !ok {
				if idx == 0 {
					return nil, DecodingError{errIndexZero}
				}
				return nil, DecodingError{errIndexRange}
			}
			emit = true
		case b&0xc0 == 0x40:
			// Literal with incremental indexing.
			f, block, err = d.readLiteral(block, 6)
			if err != nil {
				return nil, DecodingError{err}
			}
			d.dynTab.add(f)
			emit = true
		case b&0xe0 == 0x20:
			// Dynamic table size update.
			var size uint64
			size, block, err = readVarInt(block, 5)
			if err != nil {
				return nil, DecodingError{err}
			}
			if size > uint64(d.allowedMaxSize) {
				return nil, DecodingError{errTableSizeOver}
			}
			d.dynTab.setMaxSize(uint32(size))
		case b&0xf0 == 0x10:
			// Literal never indexed.
			f, block, err = d.readLiteral(block, 4)
			if err != nil {
				return nil, DecodingError{err}
			}
			f.Sensitive = true
			emit = true
		default:
			// Literal without indexing (0000xxxx).
			f, block, err = d.readLiteral(block, 4)
			if err != nil {
				return nil, DecodingError{err}
			}
			emit = true
		}
		if emit {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// readLiteral parses the name (indexed or literal) and value of a literal
// representation with the given name-index prefix length.
func (d *Decoder) readLiteral(block []byte, prefix uint8) (HeaderField, []byte, error) {
	nameIdx, rest, err := readVarInt(block, prefix)
	if err != nil {
		return HeaderField{}, nil, err
	}
	var f HeaderField
	if nameIdx > 0 {
		ent, ok := d.dynTab.lookup(nameIdx)
		if !ok {
			return HeaderField{}, nil, errIndexRange
		}
		f.Name = ent.Name
	} else {
		f.Name, rest, err = d.readString(rest)
		if err != nil {
			return HeaderField{}, nil, err
		}
	}
	f.Value, rest, err = d.readString(rest)
	if err != nil {
		return HeaderField{}, nil, err
	}
	return f, rest, nil
}

// readString parses one string literal, Huffman-decoding if flagged.
func (d *Decoder) readString(b []byte) (string, []byte, error) {
	if len(b) == 0 {
		return "", nil, errTruncated
	}
	huff := b[0]&0x80 != 0
	length, rest, err := readVarInt(b, 7)
	if err != nil {
		return "", nil, err
	}
	if length > uint64(d.maxStringLen) {
		return "", nil, errStringTooLong
	}
	if uint64(len(rest)) < length {
		return "", nil, errNeedMore
	}
	raw := rest[:length]
	rest = rest[length:]
	if !huff {
		return string(raw), rest, nil
	}
	decoded, err := huffmanDecode(make([]byte, 0, length*2), raw)
	if err != nil {
		return "", nil, err
	}
	return string(decoded), rest, nil
}

// readVarInt decodes an integer with an n-bit prefix (RFC 7541 §5.1).
func readVarInt(b []byte, n uint8) (uint64, []byte, error) {
	if len(b) == 0 {
		return 0, nil, errTruncated
	}
	mask := uint64(1)<<n - 1
	v := uint64(b[0]) & mask
	b = b[1:]
	if v < mask {
		return v, b, nil
	}
	var shift uint
	for len(b) > 0 {
		c := b[0]
		b = b[1:]
		v += uint64(c&0x7f) << shift
		if v > 1<<32 {
			return 0, nil, errIntegerTooBig
		}
		if c&0x80 == 0 {
			return v, b, nil
		}
		shift += 7
		if shift > 63 {
			return 0, nil, errIntegerTooBig
		}
	}
	return 0, nil, errTruncated
}
