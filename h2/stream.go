package h2

import (
	"fmt"

	"github.com/waieez/solicit/h2/frame"
)

// streamState is the lifecycle state of one stream, following the RFC 7540
// §5.1 diagram.
type streamState uint8

const (
	stateIdle streamState = iota
	stateReservedLocal
	stateReservedRemote
	stateOpen
	stateHalfClosedLocal
	stateHalfClosedRemote
	stateClosed
)

var stateName = map[streamState]string{
	stateIdle:             "Idle",
	stateReservedLocal:    "ReservedLocal",
	stateReservedRemote:   "ReservedRemote",
	stateOpen:             "Open",
	stateHalfClosedLocal:  "HalfClosedLocal",
	stateHalfClosedRemote: "HalfClosedRemote",
	stateClosed:           "Closed",
}

func (s streamState) String() string {
	if n, ok := stateName[s]; ok {
		return n
	}
	return fmt.Sprintf("streamState(%d)", uint8(s))
}

// Stream is one multiplexed exchange. Streams live in the owning
// connection's map keyed by id and never hold a reference back to the
// connection; all cross-stream work goes through the connection.
//
// All fields are guarded by the connection's mutex.
type Stream struct {
	id    uint32
	state streamState

	// sendWindow is the peer-granted send quota. Signed: a retroactive
	// SETTINGS_INITIAL_WINDOW_SIZE reduction can push it negative, in
	// which case sending stays blocked until WINDOW_UPDATEs recover it.
	sendWindow int32

	// fc accounts the receive direction against our advertised window.
	fc *inFlow

	// hasBody is set when the caller supplied a body producer; the engine
	// pulls chunks for it on every send pass.
	hasBody bool
	// pending holds produced-but-unsent body bytes left over after a send
	// pass ran out of window or frame budget.
	pending []byte
	// bodyComplete is set once the producer reported the final chunk; the
	// closing END_STREAM may still be waiting on window.
	bodyComplete bool
}

// openLocal applies sending the opening HEADERS.
func (s *Stream) openLocal(endStream bool) error {
	if s.state != stateIdle {
		return streamErrorf(s.id, frame.ErrCodeInternal, "headers sent on %v stream", s.state)
	}
	if endStream {
		s.state = stateHalfClosedLocal
	} else {
		s.state = stateOpen
	}
	return nil
}

// recvHeaders applies a received HEADERS frame.
func (s *Stream) recvHeaders(endStream bool) error {
	switch s.state {
	case stateIdle:
		// Peer-opened stream.
		if endStream {
			s.state = stateHalfClosedRemote
		} else {
			s.state = stateOpen
		}
	case stateReservedRemote:
		// Promised stream delivering its response; our side never opened.
		if endStream {
			s.state = stateClosed
		} else {
			s.state = stateHalfClosedLocal
		}
	case stateOpen, stateHalfClosedLocal:
		// Response or trailers on a stream we opened.
		if endStream {
			s.recvEndStream()
		}
	default:
		return streamErrorf(s.id, frame.ErrCodeStreamClosed, "headers received on %v stream", s.state)
	}
	return nil
}

// recvData checks a received DATA frame is legal for the state. The
// END_STREAM transition is applied separately via recvEndStream.
func (s *Stream) recvData() error {
	switch s.state {
	case stateOpen, stateHalfClosedLocal:
		return nil
	default:
		return streamErrorf(s.id, frame.ErrCodeStreamClosed, "data received on %v stream", s.state)
	}
}

// recvEndStream applies the peer's half-close.
func (s *Stream) recvEndStream() {
	switch s.state {
	case stateOpen:
		s.state = stateHalfClosedRemote
	case stateHalfClosedLocal:
		s.state = stateClosed
	}
}

// sentEndStream applies our half-close after END_STREAM went out.
func (s *Stream) sentEndStream() {
	switch s.state {
	case stateOpen:
		s.state = stateHalfClosedLocal
	case stateHalfClosedRemote:
		s.state = stateClosed
	}
}

// reset moves the stream to Closed from any state, discarding buffered
// outbound data.
func (s *Stream) reset() {
	s.state = stateClosed
	s.pending = nil
	s.hasBody = false
}

// canSendData reports whether our send direction is still open.
func (s *Stream) canSendData() bool {
	return s.state == stateOpen || s.state == stateHalfClosedRemote
}
