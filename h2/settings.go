package h2

import (
	"math"

	"github.com/waieez/solicit/h2/frame"
)

const (
	defaultWindowSize     = 65535
	defaultConnWindowSize = 1 << 20

	// defaultMaxHeaderListSize bounds a header block when the caller does
	// not configure one; without a bound a peer could grow the reassembly
	// buffer without limit.
	defaultMaxHeaderListSize = 1 << 20

	// unlimitedStreams stands in for MAX_CONCURRENT_STREAMS before the
	// peer advertises one; the protocol default is no limit.
	unlimitedStreams = math.MaxUint32
)

// Config holds the connection knobs a caller may tune. The zero value
// selects protocol defaults.
type Config struct {
	// InitialWindowSize is the per-stream receive window advertised in our
	// initial SETTINGS. Minimum 65535.
	InitialWindowSize uint32
	// InitialConnWindowSize is the connection-level receive window; the
	// delta over 65535 is advertised with a WINDOW_UPDATE on stream 0.
	InitialConnWindowSize uint32
	// MaxFrameSize is the largest frame payload we accept (SETTINGS_MAX_FRAME_SIZE).
	MaxFrameSize uint32
	// MaxHeaderListSize bounds a decoded header list, advertised to the
	// peer and enforced on received blocks. Defaults to 1 MiB.
	MaxHeaderListSize uint32
	// HeaderTableSize sizes the peer's hpack encoder table
	// (SETTINGS_HEADER_TABLE_SIZE).
	HeaderTableSize uint32

	// WriteBufferSize and ReadBufferSize size the framer's buffers.
	WriteBufferSize int
	ReadBufferSize  int
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.InitialWindowSize < defaultWindowSize {
		out.InitialWindowSize = defaultWindowSize
	}
	if out.InitialConnWindowSize < defaultWindowSize {
		out.InitialConnWindowSize = defaultConnWindowSize
	}
	if out.MaxFrameSize < frame.DefaultMaxFrameSize {
		out.MaxFrameSize = frame.DefaultMaxFrameSize
	}
	if out.HeaderTableSize == 0 {
		out.HeaderTableSize = 4096
	}
	if out.MaxHeaderListSize == 0 {
		out.MaxHeaderListSize = defaultMaxHeaderListSize
	}
	return out
}

// peerSettings is the peer's advertised configuration, updated by every
// non-ACK SETTINGS frame and read on the send path.
type peerSettings struct {
	headerTableSize      uint32
	enablePush           bool
	maxConcurrentStreams uint32
	initialWindowSize    uint32
	maxFrameSize         uint32
	maxHeaderListSize    uint32
}

func defaultPeerSettings() peerSettings {
	return peerSettings{
		headerTableSize:      4096,
		enablePush:           true,
		maxConcurrentStreams: unlimitedStreams,
		initialWindowSize:    defaultWindowSize,
		maxFrameSize:         frame.DefaultMaxFrameSize,
		maxHeaderListSize:    math.MaxUint32,
	}
}
