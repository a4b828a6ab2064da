// Package frame implements the HTTP/2 framing layer: the 9-octet frame
// header plus the nine standard payload types, and a Framer that reads and
// writes one frame at a time over a byte stream.
//
// The framing layer is deliberately unaware of connection state. Stream
// lifecycle, flow control and header compression live in the h2 package;
// this package only guarantees that what goes on the wire is a well-formed
// frame and that what comes off the wire is either a well-formed frame or
// an Error naming the violation.
package frame

import (
	"fmt"
)

// ClientPreface is the fixed sequence every client sends before any frame.
// The establishment layer writes it; the framing layer never sees it.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

const (
	// HeaderLen is the fixed size of a frame header on the wire.
	HeaderLen = 9

	// DefaultMaxFrameSize is the SETTINGS_MAX_FRAME_SIZE value in effect
	// before any SETTINGS exchange.
	DefaultMaxFrameSize = 16384

	// maxFrameSize is the largest value SETTINGS_MAX_FRAME_SIZE may take.
	maxFrameSize = 1<<24 - 1
)

// A Type identifies one of the nine standard frame types.
type Type uint8

const (
	TypeData         Type = 0x0
	TypeHeaders      Type = 0x1
	TypePriority     Type = 0x2
	TypeRSTStream    Type = 0x3
	TypeSettings     Type = 0x4
	TypePushPromise  Type = 0x5
	TypePing         Type = 0x6
	TypeGoAway       Type = 0x7
	TypeWindowUpdate Type = 0x8
	TypeContinuation Type = 0x9
)

var typeName = map[Type]string{
	TypeData:         "DATA",
	TypeHeaders:      "HEADERS",
	TypePriority:     "PRIORITY",
	TypeRSTStream:    "RST_STREAM",
	TypeSettings:     "SETTINGS",
	TypePushPromise:  "PUSH_PROMISE",
	TypePing:         "PING",
	TypeGoAway:       "GOAWAY",
	TypeWindowUpdate: "WINDOW_UPDATE",
	TypeContinuation: "CONTINUATION",
}

func (t Type) String() string {
	if s, ok := typeName[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
}

// Flags is the 8-bit flags field of a frame header. Which bits are
// meaningful depends on the frame type.
type Flags uint8

// Has reports whether f contains all of the flags in v.
func (f Flags) Has(v Flags) bool {
	return (f & v) == v
}

const (
	// DATA
	FlagDataEndStream Flags = 0x1
	FlagDataPadded    Flags = 0x8

	// HEADERS
	FlagHeadersEndStream  Flags = 0x1
	FlagHeadersEndHeaders Flags = 0x4
	FlagHeadersPadded     Flags = 0x8
	FlagHeadersPriority   Flags = 0x20

	// SETTINGS
	FlagSettingsAck Flags = 0x1

	// PING
	FlagPingAck Flags = 0x1

	// PUSH_PROMISE
	FlagPushPromiseEndHeaders Flags = 0x4
	FlagPushPromisePadded     Flags = 0x8

	// CONTINUATION
	FlagContinuationEndHeaders Flags = 0x4
)

// flagMask lists the flags defined for each frame type. Undefined flag bits
// are required to be ignored on receipt, and a Framer never emits them.
var flagMask = map[Type]Flags{
	TypeData:         FlagDataEndStream | FlagDataPadded,
	TypeHeaders:      FlagHeadersEndStream | FlagHeadersEndHeaders | FlagHeadersPadded | FlagHeadersPriority,
	TypeSettings:     FlagSettingsAck,
	TypePing:         FlagPingAck,
	TypePushPromise:  FlagPushPromiseEndHeaders | FlagPushPromisePadded,
	TypeContinuation: FlagContinuationEndHeaders,
}

// An ErrCode is an HTTP/2 error code carried in RST_STREAM and GOAWAY.
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

var errCodeName = map[ErrCode]string{
	ErrCodeNo:                 "NO_ERROR",
	ErrCodeProtocol:           "PROTOCOL_ERROR",
	ErrCodeInternal:           "INTERNAL_ERROR",
	ErrCodeFlowControl:        "FLOW_CONTROL_ERROR",
	ErrCodeSettingsTimeout:    "SETTINGS_TIMEOUT",
	ErrCodeStreamClosed:       "STREAM_CLOSED",
	ErrCodeFrameSize:          "FRAME_SIZE_ERROR",
	ErrCodeRefusedStream:      "REFUSED_STREAM",
	ErrCodeCancel:             "CANCEL",
	ErrCodeCompression:        "COMPRESSION_ERROR",
	ErrCodeConnect:            "CONNECT_ERROR",
	ErrCodeEnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	ErrCodeInadequateSecurity: "INADEQUATE_SECURITY",
	ErrCodeHTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (e ErrCode) String() string {
	if s, ok := errCodeName[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code 0x%x", uint32(e))
}

// Error is a framing violation detected while reading or validating a
// frame. Framing errors are connection-fatal: the byte stream can no longer
// be trusted to be frame-aligned.
type Error struct {
	Code   ErrCode
	Reason string
}

func (e Error) Error() string {
	return fmt.Sprintf("http2: framing error %v: %s", e.Code, e.Reason)
}

func framingErrorf(code ErrCode, format string, args ...interface{}) Error {
	return Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// A SettingID identifies a SETTINGS parameter.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

var settingName = map[SettingID]string{
	SettingHeaderTableSize:      "HEADER_TABLE_SIZE",
	SettingEnablePush:           "ENABLE_PUSH",
	SettingMaxConcurrentStreams: "MAX_CONCURRENT_STREAMS",
	SettingInitialWindowSize:    "INITIAL_WINDOW_SIZE",
	SettingMaxFrameSize:         "MAX_FRAME_SIZE",
	SettingMaxHeaderListSize:    "MAX_HEADER_LIST_SIZE",
}

func (s SettingID) String() string {
	if n, ok := settingName[s]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN_SETTING_%d", uint16(s))
}

// Setting is one (id, value) pair from a SETTINGS frame.
type Setting struct {
	ID  SettingID
	Val uint32
}

func (s Setting) String() string {
	return fmt.Sprintf("[%v = %d]", s.ID, s.Val)
}

// Valid checks a setting value against the ranges the protocol allows.
func (s Setting) Valid() error {
	switch s.ID {
	case SettingEnablePush:
		if s.Val != 0 && s.Val != 1 {
			return framingErrorf(ErrCodeProtocol, "invalid ENABLE_PUSH value %d", s.Val)
		}
	case SettingInitialWindowSize:
		if s.Val > 1<<31-1 {
			return framingErrorf(ErrCodeFlowControl, "invalid INITIAL_WINDOW_SIZE value %d", s.Val)
		}
	case SettingMaxFrameSize:
		if s.Val < DefaultMaxFrameSize || s.Val > maxFrameSize {
			return framingErrorf(ErrCodeProtocol, "invalid MAX_FRAME_SIZE value %d", s.Val)
		}
	}
	return nil
}

// FrameHeader is the fixed 9-octet header shared by all frames.
type FrameHeader struct {
	// Length is the payload length, a 24-bit value. It never includes the
	// 9 header octets.
	Length uint32

	Type  Type
	Flags Flags

	// StreamID is the 31-bit stream identifier. Zero addresses the
	// connection as a whole.
	StreamID uint32
}

func (h FrameHeader) String() string {
	return fmt.Sprintf("[%v flags=0x%x stream=%d len=%d]", h.Type, uint8(h.Flags), h.StreamID, h.Length)
}

func unpackHeader(buf []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]),
		Type:     Type(buf[3]),
		Flags:    Flags(buf[4]),
		StreamID: (uint32(buf[5])<<24 | uint32(buf[6])<<16 | uint32(buf[7])<<8 | uint32(buf[8])) & (1<<31 - 1),
	}
}

func packHeader(buf []byte, h FrameHeader) {
	buf[0] = byte(h.Length >> 16)
	buf[1] = byte(h.Length >> 8)
	buf[2] = byte(h.Length)
	buf[3] = byte(h.Type)
	buf[4] = byte(h.Flags)
	buf[5] = byte(h.StreamID >> 24 & 0x7f)
	buf[6] = byte(h.StreamID >> 16)
	buf[7] = byte(h.StreamID >> 8)
	buf[8] = byte(h.StreamID)
}

// Frame is the interface shared by the nine concrete frame types. The
// concrete set is closed; dispatch sites switch exhaustively over it.
type Frame interface {
	Header() FrameHeader
}

// DataFrame carries a chunk of a stream's body. Padding is stripped during
// parsing; Data never contains pad bytes.
type DataFrame struct {
	FrameHeader
	PadLength uint8
	data      []byte
}

func (f *DataFrame) Header() FrameHeader { return f.FrameHeader }

// Data returns the frame payload with any padding removed.
func (f *DataFrame) Data() []byte { return f.data }

// StreamEnded reports whether the frame carries END_STREAM.
func (f *DataFrame) StreamEnded() bool { return f.Flags.Has(FlagDataEndStream) }

// PriorityParam are the dependency fields shared by PRIORITY frames and the
// optional priority section of HEADERS.
type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	// Weight is the wire value; effective weight is Weight+1.
	Weight uint8
}

// IsZero reports whether p carries no priority information.
func (p PriorityParam) IsZero() bool { return p == PriorityParam{} }

// HeadersFrame opens or continues a stream with a header block fragment.
type HeadersFrame struct {
	FrameHeader
	Priority  PriorityParam
	PadLength uint8
	fragment  []byte
}

func (f *HeadersFrame) Header() FrameHeader { return f.FrameHeader }

// HeaderBlockFragment returns the hpack-encoded fragment, without padding
// or priority octets.
func (f *HeadersFrame) HeaderBlockFragment() []byte { return f.fragment }

func (f *HeadersFrame) StreamEnded() bool  { return f.Flags.Has(FlagHeadersEndStream) }
func (f *HeadersFrame) HeadersEnded() bool { return f.Flags.Has(FlagHeadersEndHeaders) }
func (f *HeadersFrame) HasPriority() bool  { return f.Flags.Has(FlagHeadersPriority) }

// PriorityFrame reprioritizes a stream. The engine accepts it mechanically.
type PriorityFrame struct {
	FrameHeader
	PriorityParam
}

func (f *PriorityFrame) Header() FrameHeader { return f.FrameHeader }

// RSTStreamFrame abruptly terminates a stream.
type RSTStreamFrame struct {
	FrameHeader
	ErrCode ErrCode
}

func (f *RSTStreamFrame) Header() FrameHeader { return f.FrameHeader }

// SettingsFrame carries connection configuration parameters.
type SettingsFrame struct {
	FrameHeader
	Settings []Setting
}

func (f *SettingsFrame) Header() FrameHeader { return f.FrameHeader }

func (f *SettingsFrame) IsAck() bool { return f.Flags.Has(FlagSettingsAck) }

// Value returns the last value for id in the frame, if present.
func (f *SettingsFrame) Value(id SettingID) (uint32, bool) {
	for i := len(f.Settings) - 1; i >= 0; i-- {
		if f.Settings[i].ID == id {
			return f.Settings[i].Val, true
		}
	}
	return 0, false
}

// ForeachSetting calls fn for each setting in order, stopping on error.
func (f *SettingsFrame) ForeachSetting(fn func(Setting) error) error {
	for _, s := range f.Settings {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// PushPromiseFrame reserves a server-initiated stream.
type PushPromiseFrame struct {
	FrameHeader
	PromiseID uint32
	PadLength uint8
	fragment  []byte
}

func (f *PushPromiseFrame) Header() FrameHeader        { return f.FrameHeader }
func (f *PushPromiseFrame) HeaderBlockFragment() []byte { return f.fragment }
func (f *PushPromiseFrame) HeadersEnded() bool          { return f.Flags.Has(FlagPushPromiseEndHeaders) }

// PingFrame carries 8 opaque octets, echoed back with the ACK flag.
type PingFrame struct {
	FrameHeader
	Data [8]byte
}

func (f *PingFrame) Header() FrameHeader { return f.FrameHeader }
func (f *PingFrame) IsAck() bool         { return f.Flags.Has(FlagPingAck) }

// GoAwayFrame announces that the sender is done creating streams.
type GoAwayFrame struct {
	FrameHeader
	LastStreamID uint32
	ErrCode      ErrCode
	debugData    []byte
}

func (f *GoAwayFrame) Header() FrameHeader { return f.FrameHeader }
func (f *GoAwayFrame) DebugData() []byte   { return f.debugData }

// WindowUpdateFrame credits a flow-control window. StreamID 0 credits the
// connection window.
type WindowUpdateFrame struct {
	FrameHeader
	Increment uint32
}

func (f *WindowUpdateFrame) Header() FrameHeader { return f.FrameHeader }

// ContinuationFrame continues a header block started by HEADERS or
// PUSH_PROMISE on the same stream.
type ContinuationFrame struct {
	FrameHeader
	fragment []byte
}

func (f *ContinuationFrame) Header() FrameHeader        { return f.FrameHeader }
func (f *ContinuationFrame) HeaderBlockFragment() []byte { return f.fragment }
func (f *ContinuationFrame) HeadersEnded() bool          { return f.Flags.Has(FlagContinuationEndHeaders) }
