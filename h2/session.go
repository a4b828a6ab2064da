package h2

import (
	"github.com/waieez/solicit/h2/hpack"
)

// Session is the capability contract a connection's owner implements. The
// engine calls it from its single control path; callbacks must return
// promptly and defer expensive work elsewhere. A callback must not call
// back into the connection that invoked it.
//
// Exactly one Session serves one connection. Stream ids are the only
// correlation handle across calls.
type Session interface {
	// OnHeaders delivers a decoded header list for a stream. endStream
	// marks the peer's half-close; no further headers or data will follow
	// for this stream.
	OnHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool)

	// OnData delivers one DATA frame's payload, padding already stripped.
	// The slice is only valid for the duration of the call.
	OnData(streamID uint32, data []byte, endStream bool)

	// OnStreamClosed reports a stream reaching its terminal state. Called
	// exactly once per stream the Session has seen, including streams torn
	// down by connection failure.
	OnStreamClosed(streamID uint32, reason CloseReason)

	// NewStreamsAllowed is a backpressure hook: the engine asks before
	// opening a stream locally. Returning false rejects StartRequest with
	// ErrTooManyStreams without sending anything.
	NewStreamsAllowed() bool

	// NextOutboundChunk supplies outgoing body bytes for a stream the
	// engine is ready to send on. more=false means the body is complete;
	// the final chunk may be empty. An empty chunk with more=true means
	// nothing is available right now; the engine will ask again on its
	// next send pass (see Conn.Flush).
	NextOutboundChunk(streamID uint32) (chunk []byte, more bool)
}
