package frame

import (
	"bufio"
	"encoding/binary"
	"io"
)

const (
	defaultWriteBufSize = 32 * 1024
	defaultReadBufSize  = 16 * 1024
)

// A Framer reads and writes frames over a byte stream. It owns the buffers
// on both sides; callers must not interleave raw I/O on the underlying
// stream once a Framer is attached.
//
// A Framer is not safe for concurrent use. The h2 package serializes all
// access on the connection's control path.
type Framer struct {
	br *bufio.Reader
	bw *bufio.Writer

	// maxReadSize is the largest payload ReadFrame accepts, the value we
	// advertised in SETTINGS_MAX_FRAME_SIZE.
	maxReadSize uint32

	// readBuf is reused across ReadFrame calls. The returned Frame aliases
	// it, so a frame is only valid until the next ReadFrame.
	readBuf []byte

	headerBuf [HeaderLen]byte
	wbuf      []byte
}

// NewFramer returns a Framer over rw with the given buffer sizes. Zero
// sizes select defaults.
func NewFramer(w io.Writer, r io.Reader, writeBufSize, readBufSize int) *Framer {
	if writeBufSize <= 0 {
		writeBufSize = defaultWriteBufSize
	}
	if readBufSize <= 0 {
		readBufSize = defaultReadBufSize
	}
	return &Framer{
		br:          bufio.NewReaderSize(r, readBufSize),
		bw:          bufio.NewWriterSize(w, writeBufSize),
		maxReadSize: DefaultMaxFrameSize,
	}
}

// SetMaxReadFrameSize updates the largest payload ReadFrame will accept.
// Called when our SETTINGS_MAX_FRAME_SIZE advertisement changes.
func (fr *Framer) SetMaxReadFrameSize(v uint32) {
	if v < DefaultMaxFrameSize {
		v = DefaultMaxFrameSize
	}
	if v > maxFrameSize {
		v = maxFrameSize
	}
	fr.maxReadSize = v
}

// Flush writes any buffered frames to the underlying stream.
func (fr *Framer) Flush() error {
	return fr.bw.Flush()
}

// ReadFrame reads and parses exactly one frame. It blocks until a full
// frame is available or the stream errors.
//
// The returned frame aliases the Framer's read buffer and is invalidated
// by the next call.
func (fr *Framer) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(fr.br, fr.headerBuf[:]); err != nil {
		return nil, err
	}
	h := unpackHeader(fr.headerBuf[:])
	if h.Length > fr.maxReadSize {
		return nil, framingErrorf(ErrCodeFrameSize, "frame length %d exceeds maximum %d", h.Length, fr.maxReadSize)
	}
	if cap(fr.readBuf) < int(h.Length) {
		fr.readBuf = make([]byte, h.Length)
	}
	payload := fr.readBuf[:h.Length]
	if _, err := io.ReadFull(fr.br, payload); err != nil {
		return nil, err
	}
	return parseFrame(h, payload)
}

func parseFrame(h FrameHeader, payload []byte) (Frame, error) {
	// Mask out flags not defined for the type; they must be ignored.
	h.Flags &= flagMask[h.Type]
	switch h.Type {
	case TypeData:
		return parseData(h, payload)
	case TypeHeaders:
		return parseHeaders(h, payload)
	case TypePriority:
		return parsePriority(h, payload)
	case TypeRSTStream:
		return parseRSTStream(h, payload)
	case TypeSettings:
		return parseSettings(h, payload)
	case TypePushPromise:
		return parsePushPromise(h, payload)
	case TypePing:
		return parsePing(h, payload)
	case TypeGoAway:
		return parseGoAway(h, payload)
	case TypeWindowUpdate:
		return parseWindowUpdate(h, payload)
	case TypeContinuation:
		return parseContinuation(h, payload)
	}
	return nil, framingErrorf(ErrCodeProtocol, "unknown frame type %d", uint8(h.Type))
}

// cutPadding validates and strips the pad-length octet and trailing pad
// bytes from a padded payload.
func cutPadding(h FrameHeader, payload []byte) (body []byte, padLen uint8, err error) {
	if len(payload) == 0 {
		return nil, 0, framingErrorf(ErrCodeProtocol, "%v: padded frame with empty payload", h.Type)
	}
	padLen = payload[0]
	payload = payload[1:]
	if int(padLen) >= len(payload)+1 {
		// Pad length must be strictly less than the remaining payload
		// (the pad-length octet itself counts toward the frame length).
		return nil, 0, framingErrorf(ErrCodeProtocol, "%v: pad length %d exceeds payload", h.Type, padLen)
	}
	return payload[:len(payload)-int(padLen)], padLen, nil
}

func parseData(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "DATA frame with stream identifier 0")
	}
	f := &DataFrame{FrameHeader: h}
	var err error
	if h.Flags.Has(FlagDataPadded) {
		if payload, f.PadLength, err = cutPadding(h, payload); err != nil {
			return nil, err
		}
	}
	f.data = payload
	return f, nil
}

func parseHeaders(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "HEADERS frame with stream identifier 0")
	}
	f := &HeadersFrame{FrameHeader: h}
	var err error
	if h.Flags.Has(FlagHeadersPadded) {
		if payload, f.PadLength, err = cutPadding(h, payload); err != nil {
			return nil, err
		}
	}
	if h.Flags.Has(FlagHeadersPriority) {
		if len(payload) < 5 {
			return nil, framingErrorf(ErrCodeFrameSize, "HEADERS frame too short for priority section")
		}
		v := binary.BigEndian.Uint32(payload[:4])
		f.Priority = PriorityParam{
			StreamDep: v & (1<<31 - 1),
			Exclusive: v>>31 == 1,
			Weight:    payload[4],
		}
		payload = payload[5:]
	}
	f.fragment = payload
	return f, nil
}

func parsePriority(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "PRIORITY frame with stream identifier 0")
	}
	if len(payload) != 5 {
		return nil, framingErrorf(ErrCodeFrameSize, "PRIORITY frame payload is %d bytes; need 5", len(payload))
	}
	v := binary.BigEndian.Uint32(payload[:4])
	return &PriorityFrame{
		FrameHeader: h,
		PriorityParam: PriorityParam{
			StreamDep: v & (1<<31 - 1),
			Exclusive: v>>31 == 1,
			Weight:    payload[4],
		},
	}, nil
}

func parseRSTStream(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "RST_STREAM frame with stream identifier 0")
	}
	if len(payload) != 4 {
		return nil, framingErrorf(ErrCodeFrameSize, "RST_STREAM frame payload is %d bytes; need 4", len(payload))
	}
	return &RSTStreamFrame{FrameHeader: h, ErrCode: ErrCode(binary.BigEndian.Uint32(payload))}, nil
}

func parseSettings(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID != 0 {
		return nil, framingErrorf(ErrCodeProtocol, "SETTINGS frame with stream identifier %d", h.StreamID)
	}
	if h.Flags.Has(FlagSettingsAck) && len(payload) > 0 {
		return nil, framingErrorf(ErrCodeFrameSize, "SETTINGS ack with %d bytes of payload", len(payload))
	}
	if len(payload)%6 != 0 {
		return nil, framingErrorf(ErrCodeFrameSize, "SETTINGS frame payload is %d bytes; need multiple of 6", len(payload))
	}
	f := &SettingsFrame{FrameHeader: h}
	for i := 0; i < len(payload); i += 6 {
		s := Setting{
			ID:  SettingID(binary.BigEndian.Uint16(payload[i : i+2])),
			Val: binary.BigEndian.Uint32(payload[i+2 : i+6]),
		}
		if err := s.Valid(); err != nil {
			return nil, err
		}
		f.Settings = append(f.Settings, s)
	}
	return f, nil
}

func parsePushPromise(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "PUSH_PROMISE frame with stream identifier 0")
	}
	f := &PushPromiseFrame{FrameHeader: h}
	var err error
	if h.Flags.Has(FlagPushPromisePadded) {
		if payload, f.PadLength, err = cutPadding(h, payload); err != nil {
			return nil, err
		}
	}
	if len(payload) < 4 {
		return nil, framingErrorf(ErrCodeFrameSize, "PUSH_PROMISE frame too short for promised stream id")
	}
	f.PromiseID = binary.BigEndian.Uint32(payload[:4]) & (1<<31 - 1)
	f.fragment = payload[4:]
	return f, nil
}

func parsePing(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID != 0 {
		return nil, framingErrorf(ErrCodeProtocol, "PING frame with stream identifier %d", h.StreamID)
	}
	if len(payload) != 8 {
		return nil, framingErrorf(ErrCodeFrameSize, "PING frame payload is %d bytes; need 8", len(payload))
	}
	f := &PingFrame{FrameHeader: h}
	copy(f.Data[:], payload)
	return f, nil
}

func parseGoAway(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID != 0 {
		return nil, framingErrorf(ErrCodeProtocol, "GOAWAY frame with stream identifier %d", h.StreamID)
	}
	if len(payload) < 8 {
		return nil, framingErrorf(ErrCodeFrameSize, "GOAWAY frame payload is %d bytes; need at least 8", len(payload))
	}
	return &GoAwayFrame{
		FrameHeader:  h,
		LastStreamID: binary.BigEndian.Uint32(payload[:4]) & (1<<31 - 1),
		ErrCode:      ErrCode(binary.BigEndian.Uint32(payload[4:8])),
		debugData:    payload[8:],
	}, nil
}

func parseWindowUpdate(h FrameHeader, payload []byte) (Frame, error) {
	if len(payload) != 4 {
		return nil, framingErrorf(ErrCodeFrameSize, "WINDOW_UPDATE frame payload is %d bytes; need 4", len(payload))
	}
	inc := binary.BigEndian.Uint32(payload) & (1<<31 - 1)
	if inc == 0 {
		// A zero increment on stream 0 kills the connection; on a stream
		// it is a stream error, decided by the engine.
		if h.StreamID == 0 {
			return nil, framingErrorf(ErrCodeProtocol, "WINDOW_UPDATE with zero increment on connection")
		}
	}
	return &WindowUpdateFrame{FrameHeader: h, Increment: inc}, nil
}

func parseContinuation(h FrameHeader, payload []byte) (Frame, error) {
	if h.StreamID == 0 {
		return nil, framingErrorf(ErrCodeProtocol, "CONTINUATION frame with stream identifier 0")
	}
	return &ContinuationFrame{FrameHeader: h, fragment: payload}, nil
}

// startWrite resets the write scratch buffer with a frame header whose
// length is fixed up by endWrite.
func (fr *Framer) startWrite(t Type, flags Flags, streamID uint32) {
	fr.wbuf = append(fr.wbuf[:0], make([]byte, HeaderLen)...)
	packHeader(fr.wbuf, FrameHeader{Type: t, Flags: flags, StreamID: streamID})
}

func (fr *Framer) endWrite() error {
	length := len(fr.wbuf) - HeaderLen
	if length > maxFrameSize {
		return framingErrorf(ErrCodeInternal, "frame payload %d bytes exceeds wire limit", length)
	}
	fr.wbuf[0] = byte(length >> 16)
	fr.wbuf[1] = byte(length >> 8)
	fr.wbuf[2] = byte(length)
	_, err := fr.bw.Write(fr.wbuf)
	return err
}

func (fr *Framer) writeByte(b byte)     { fr.wbuf = append(fr.wbuf, b) }
func (fr *Framer) writeBytes(b []byte)  { fr.wbuf = append(fr.wbuf, b...) }
func (fr *Framer) writeUint16(v uint16) { fr.wbuf = append(fr.wbuf, byte(v>>8), byte(v)) }
func (fr *Framer) writeUint32(v uint32) {
	fr.wbuf = append(fr.wbuf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteData writes a DATA frame. Flow-control accounting is the caller's
// responsibility.
func (fr *Framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	return fr.WriteDataPadded(streamID, endStream, data, nil)
}

// WriteDataPadded writes a DATA frame with explicit padding bytes.
func (fr *Framer) WriteDataPadded(streamID uint32, endStream bool, data, pad []byte) error {
	if streamID == 0 {
		return framingErrorf(ErrCodeInternal, "DATA frame on stream 0")
	}
	if len(pad) > 255 {
		return framingErrorf(ErrCodeInternal, "DATA padding of %d bytes exceeds 255", len(pad))
	}
	var flags Flags
	if endStream {
		flags |= FlagDataEndStream
	}
	if pad != nil {
		flags |= FlagDataPadded
	}
	fr.startWrite(TypeData, flags, streamID)
	if pad != nil {
		fr.writeByte(byte(len(pad)))
	}
	fr.writeBytes(data)
	fr.writeBytes(pad)
	return fr.endWrite()
}

// HeadersFrameParam are the inputs to WriteHeaders.
type HeadersFrameParam struct {
	StreamID      uint32
	BlockFragment []byte
	EndStream     bool
	EndHeaders    bool
	PadLength     uint8
	Priority      PriorityParam
}

// WriteHeaders writes a HEADERS frame. The caller splits oversized header
// blocks into CONTINUATION frames.
func (fr *Framer) WriteHeaders(p HeadersFrameParam) error {
	if p.StreamID == 0 {
		return framingErrorf(ErrCodeInternal, "HEADERS frame on stream 0")
	}
	var flags Flags
	if p.EndStream {
		flags |= FlagHeadersEndStream
	}
	if p.EndHeaders {
		flags |= FlagHeadersEndHeaders
	}
	if p.PadLength != 0 {
		flags |= FlagHeadersPadded
	}
	if !p.Priority.IsZero() {
		flags |= FlagHeadersPriority
	}
	fr.startWrite(TypeHeaders, flags, p.StreamID)
	if p.PadLength != 0 {
		fr.writeByte(p.PadLength)
	}
	if !p.Priority.IsZero() {
		v := p.Priority.StreamDep
		if p.Priority.Exclusive {
			v |= 1 << 31
		}
		fr.writeUint32(v)
		fr.writeByte(p.Priority.Weight)
	}
	fr.writeBytes(p.BlockFragment)
	fr.writeBytes(padZeros[:p.PadLength])
	return fr.endWrite()
}

var padZeros [255]byte

// WritePriority writes a PRIORITY frame.
func (fr *Framer) WritePriority(streamID uint32, p PriorityParam) error {
	if streamID == 0 {
		return framingErrorf(ErrCodeInternal, "PRIORITY frame on stream 0")
	}
	fr.startWrite(TypePriority, 0, streamID)
	v := p.StreamDep
	if p.Exclusive {
		v |= 1 << 31
	}
	fr.writeUint32(v)
	fr.writeByte(p.Weight)
	return fr.endWrite()
}

// WriteRSTStream writes a RST_STREAM frame.
func (fr *Framer) WriteRSTStream(streamID uint32, code ErrCode) error {
	if streamID == 0 {
		return framingErrorf(ErrCodeInternal, "RST_STREAM frame on stream 0")
	}
	fr.startWrite(TypeRSTStream, 0, streamID)
	fr.writeUint32(uint32(code))
	return fr.endWrite()
}

// WriteSettings writes a SETTINGS frame with the given parameters.
func (fr *Framer) WriteSettings(settings ...Setting) error {
	fr.startWrite(TypeSettings, 0, 0)
	for _, s := range settings {
		fr.writeUint16(uint16(s.ID))
		fr.writeUint32(s.Val)
	}
	return fr.endWrite()
}

// WriteSettingsAck acknowledges the peer's SETTINGS frame.
func (fr *Framer) WriteSettingsAck() error {
	fr.startWrite(TypeSettings, FlagSettingsAck, 0)
	return fr.endWrite()
}

// WritePushPromise writes a PUSH_PROMISE frame reserving promiseID.
func (fr *Framer) WritePushPromise(streamID, promiseID uint32, endHeaders bool, fragment []byte) error {
	if streamID == 0 || promiseID == 0 {
		return framingErrorf(ErrCodeInternal, "PUSH_PROMISE with zero stream id")
	}
	var flags Flags
	if endHeaders {
		flags |= FlagPushPromiseEndHeaders
	}
	fr.startWrite(TypePushPromise, flags, streamID)
	fr.writeUint32(promiseID)
	fr.writeBytes(fragment)
	return fr.endWrite()
}

// WritePing writes a PING frame.
func (fr *Framer) WritePing(ack bool, data [8]byte) error {
	var flags Flags
	if ack {
		flags |= FlagPingAck
	}
	fr.startWrite(TypePing, flags, 0)
	fr.writeBytes(data[:])
	return fr.endWrite()
}

// WriteGoAway writes a GOAWAY frame.
func (fr *Framer) WriteGoAway(lastStreamID uint32, code ErrCode, debugData []byte) error {
	fr.startWrite(TypeGoAway, 0, 0)
	fr.writeUint32(lastStreamID & (1<<31 - 1))
	fr.writeUint32(uint32(code))
	fr.writeBytes(debugData)
	return fr.endWrite()
}

// WriteWindowUpdate writes a WINDOW_UPDATE frame. streamID 0 credits the
// connection window.
func (fr *Framer) WriteWindowUpdate(streamID, increment uint32) error {
	if increment == 0 || increment > 1<<31-1 {
		return framingErrorf(ErrCodeInternal, "invalid window increment %d", increment)
	}
	fr.startWrite(TypeWindowUpdate, 0, streamID)
	fr.writeUint32(increment)
	return fr.endWrite()
}

// WriteContinuation writes a CONTINUATION frame.
func (fr *Framer) WriteContinuation(streamID uint32, endHeaders bool, fragment []byte) error {
	if streamID == 0 {
		return framingErrorf(ErrCodeInternal, "CONTINUATION frame on stream 0")
	}
	var flags Flags
	if endHeaders {
		flags |= FlagContinuationEndHeaders
	}
	fr.startWrite(TypeContinuation, flags, streamID)
	fr.writeBytes(fragment)
	return fr.endWrite()
}
