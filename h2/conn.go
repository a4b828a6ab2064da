/*
 *
 * Copyright 2014 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package h2 implements the HTTP/2 connection engine: the per-stream state
// machine, flow-control accounting, settings state and header-compression
// contexts, driven by a single control loop over one established transport.
//
// The engine is event-oriented: decoded frames are dispatched to a
// caller-supplied Session, and outgoing bodies are pulled from it. It does
// not provide request/response convenience types; embedders build those on
// top of the Session contract.
package h2

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/waieez/solicit/h2/frame"
	"github.com/waieez/solicit/h2/hpack"
)

// Debug enables verbose frame-level logging on the standard logger.
var Debug = false

// Conn drives one HTTP/2 connection over an established transport. All
// state is mutated on a single control path: the Run loop for inbound
// frames, and caller entry points (StartRequest, CancelStream, Flush, Ping,
// Close) serialized against it by the connection mutex.
type Conn struct {
	conn io.ReadWriteCloser
	fr   *frame.Framer
	sess Session
	cfg  Config

	// isClient selects stream-id parity: local streams are odd for
	// clients, even for servers.
	isClient bool

	mu sync.Mutex

	// Header compression contexts. henc writes into hbuf; both are only
	// touched with mu held.
	henc *hpack.Encoder
	hbuf bytes.Buffer
	hdec *hpack.Decoder

	streams map[uint32]*Stream
	// Highest stream id created locally / observed from the peer. Frames
	// for ids above these that are not valid new streams kill the
	// connection.
	maxLocalStreamID uint32
	maxPeerStreamID  uint32

	// nextID is the next locally assignable stream id.
	nextID uint32

	// sendWindow is the connection-level send quota granted by the peer.
	sendWindow int32
	// inFlow accounts inbound data against our advertised connection
	// window.
	inFlow *inFlow

	peer peerSettings

	// continuation holds a header block mid-reassembly. While set, only
	// CONTINUATION frames for the same stream are legal.
	continuation *headerBlock

	goAwayReceived bool
	goAwayLastID   uint32
	draining       bool

	pings       map[[8]byte]chan struct{}
	pingCounter uint64

	closed   bool
	closeErr error
	done     chan struct{}
}

// headerBlock accumulates HEADERS/PUSH_PROMISE fragments until END_HEADERS.
type headerBlock struct {
	streamID  uint32
	endStream bool
	frag      []byte
}

func newConn(rwc io.ReadWriteCloser, sess Session, cfg *Config, isClient bool) *Conn {
	c := cfg.withDefaults()
	t := &Conn{
		conn:       rwc,
		fr:         frame.NewFramer(rwc, rwc, c.WriteBufferSize, c.ReadBufferSize),
		sess:       sess,
		cfg:        c,
		isClient:   isClient,
		streams:    make(map[uint32]*Stream),
		sendWindow: defaultWindowSize,
		inFlow:     &inFlow{limit: c.InitialConnWindowSize},
		peer:       defaultPeerSettings(),
		pings:      make(map[[8]byte]chan struct{}),
		done:       make(chan struct{}),
	}
	if isClient {
		t.nextID = 1
	} else {
		t.nextID = 2
	}
	t.henc = hpack.NewEncoder(&t.hbuf)
	t.hdec = hpack.NewDecoder(c.HeaderTableSize)
	t.hdec.SetMaxStringLength(c.MaxHeaderListSize)
	t.fr.SetMaxReadFrameSize(c.MaxFrameSize)
	return t
}

// NewConn returns an engine for a peer-accepting (server-side) connection.
// The transport must already have consumed the client preface.
func NewConn(rwc io.ReadWriteCloser, sess Session, cfg *Config) *Conn {
	return newConn(rwc, sess, cfg, false)
}

// Start writes our initial SETTINGS (and connection window update, when
// configured above the protocol default). Must be called once before Run.
func (t *Conn) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	settings := []frame.Setting{
		{ID: frame.SettingInitialWindowSize, Val: t.cfg.InitialWindowSize},
		{ID: frame.SettingMaxFrameSize, Val: t.cfg.MaxFrameSize},
		{ID: frame.SettingHeaderTableSize, Val: t.cfg.HeaderTableSize},
		{ID: frame.SettingMaxHeaderListSize, Val: t.cfg.MaxHeaderListSize},
	}
	if t.isClient {
		// Push is not supported on the client engine.
		settings = append(settings, frame.Setting{ID: frame.SettingEnablePush, Val: 0})
	}
	if err := t.fr.WriteSettings(settings...); err != nil {
		return connectionErrorf(frame.ErrCodeInternal, err, "transport: failed to write initial settings frame: %v", err)
	}
	if delta := t.cfg.InitialConnWindowSize - defaultWindowSize; delta > 0 {
		if err := t.fr.WriteWindowUpdate(0, delta); err != nil {
			return connectionErrorf(frame.ErrCodeInternal, err, "transport: failed to write window update: %v", err)
		}
	}
	return t.fr.Flush()
}

// Done is closed when the connection has fully shut down.
func (t *Conn) Done() <-chan struct{} { return t.done }

// Err returns the error the connection closed with, nil before closure and
// for a clean local Close.
func (t *Conn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Run is the connection's read loop: it decodes frames off the transport
// and dispatches them until the connection dies. It returns the fatal
// error, or nil after a clean local Close. Exactly one goroutine runs it.
func (t *Conn) Run(ctx context.Context) error {
	if ctx != nil && ctx.Done() != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				t.closeWithError(connectionErrorf(frame.ErrCodeCancel, ctx.Err(), "transport: context done: %v", ctx.Err()))
			case <-stop:
			case <-t.done:
			}
		}()
	}
	for {
		f, err := t.fr.ReadFrame()
		if err != nil {
			if fe, ok := err.(frame.Error); ok {
				// The byte stream is no longer frame-aligned.
				cerr := connectionErrorf(fe.Code, fe, "transport: %v", fe)
				t.closeWithError(cerr)
				return cerr
			}
			t.mu.Lock()
			wasClosed := t.closed
			t.mu.Unlock()
			if wasClosed {
				<-t.done
				return nil
			}
			cerr := connectionErrorf(frame.ErrCodeInternal, err, "transport: error reading from peer: %v", err)
			t.closeWithError(cerr)
			return cerr
		}
		if Debug {
			log.Printf("h2: read %v", f.Header())
		}
		if err := t.dispatch(f); err != nil {
			if cerr, ok := err.(ConnectionError); ok {
				t.closeWithError(cerr)
				return cerr
			}
			// Stream errors were already answered with RST_STREAM.
			if Debug {
				log.Printf("h2: %v", err)
			}
		}
	}
}

func (t *Conn) dispatch(f frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	// A header block in flight permits nothing but its own CONTINUATIONs.
	if t.continuation != nil {
		cf, ok := f.(*frame.ContinuationFrame)
		if !ok || cf.StreamID != t.continuation.streamID {
			return connectionErrorf(frame.ErrCodeProtocol, nil,
				"transport: expected CONTINUATION for stream %d, got %v", t.continuation.streamID, f.Header())
		}
	}

	var err error
	switch f := f.(type) {
	case *frame.DataFrame:
		err = t.handleData(f)
	case *frame.HeadersFrame:
		err = t.handleHeaders(f)
	case *frame.ContinuationFrame:
		err = t.handleContinuation(f)
	case *frame.PriorityFrame:
		// Mechanical acceptance; the engine has no prioritization policy.
	case *frame.RSTStreamFrame:
		err = t.handleRSTStream(f)
	case *frame.SettingsFrame:
		err = t.handleSettings(f)
	case *frame.PushPromiseFrame:
		err = t.handlePushPromise(f)
	case *frame.PingFrame:
		err = t.handlePing(f)
	case *frame.GoAwayFrame:
		err = t.handleGoAway(f)
	case *frame.WindowUpdateFrame:
		err = t.handleWindowUpdate(f)
	}
	if err != nil {
		if se, ok := err.(StreamError); ok {
			t.writeRSTStreamLocked(se.StreamID, se.Code)
		} else {
			return err
		}
	}
	if perr := t.pumpLocked(); perr != nil && err == nil {
		err = perr
	}
	if ferr := t.fr.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// peerInitiated reports whether id belongs to the peer's parity.
func (t *Conn) peerInitiated(id uint32) bool {
	if t.isClient {
		return id%2 == 0
	}
	return id%2 == 1
}

// vanishedStream classifies a stream id that is not in the map: nil means
// the stream existed once (grace window: ids at or below the relevant
// high-water mark were allocated and have since closed), an error means
// the id was never allocated and the frame is connection-fatal.
func (t *Conn) vanishedStream(id uint32, ft frame.Type) error {
	if t.peerInitiated(id) {
		if id > t.maxPeerStreamID {
			return connectionErrorf(frame.ErrCodeProtocol, nil,
				"transport: %v frame for unopened stream %d", ft, id)
		}
		return nil
	}
	if id > t.maxLocalStreamID {
		return connectionErrorf(frame.ErrCodeProtocol, nil,
			"transport: %v frame for never-allocated stream %d", ft, id)
	}
	return nil
}

func (t *Conn) handleData(f *frame.DataFrame) error {
	size := f.Header().Length
	// The whole payload, padding included, counts against the connection
	// window.
	if err := t.inFlow.onData(size); err != nil {
		return connectionErrorf(frame.ErrCodeFlowControl, err, "transport: %v", err)
	}
	s := t.streams[f.StreamID]
	if s == nil {
		// Return the credit; nobody will consume this data.
		if w := t.inFlow.onRead(size); w > 0 {
			t.fr.WriteWindowUpdate(0, w)
		}
		if err := t.vanishedStream(f.StreamID, frame.TypeData); err != nil {
			return err
		}
		// Grace window: answer with a reset, the peer has not seen the
		// closure yet.
		return streamErrorf(f.StreamID, frame.ErrCodeStreamClosed, "data on closed stream")
	}
	if err := s.recvData(); err != nil {
		// The stream cannot accept the payload; nobody will consume it,
		// so return the connection credit before resetting the stream.
		if w := t.inFlow.onRead(size); w > 0 {
			t.fr.WriteWindowUpdate(0, w)
		}
		return err
	}
	// A peer overrunning the stream window has ignored our advertised
	// limit; treated as connection-fatal like the connection window.
	if err := s.fc.onData(size); err != nil {
		return connectionErrorf(frame.ErrCodeFlowControl, err, "transport: stream %d: %v", f.StreamID, err)
	}

	endStream := f.StreamEnded()
	t.sess.OnData(f.StreamID, f.Data(), endStream)

	// The Session consumed the payload during the callback; return the
	// credit, coalesced below a quarter window.
	if w := s.fc.onRead(size); w > 0 && !endStream {
		t.fr.WriteWindowUpdate(f.StreamID, w)
	}
	if w := t.inFlow.onRead(size); w > 0 {
		t.fr.WriteWindowUpdate(0, w)
	}

	if endStream {
		s.recvEndStream()
		if s.state == stateClosed {
			t.closeStreamLocked(f.StreamID, ReasonNormal)
		}
	}
	return nil
}

func (t *Conn) handleHeaders(f *frame.HeadersFrame) error {
	id := f.StreamID
	s := t.streams[id]
	if s == nil {
		if t.peerInitiated(id) && id > t.maxPeerStreamID {
			// Peer-opened stream. Created unconditionally; the admission
			// check happens after the header block is decoded, because
			// the block must pass through the decoder either way to keep
			// the compression context in sync.
			if t.isClient {
				return connectionErrorf(frame.ErrCodeProtocol, nil,
					"transport: server opened stream %d with HEADERS", id)
			}
			t.maxPeerStreamID = id
			s = t.newStreamLocked(id)
		} else {
			if err := t.vanishedStream(id, frame.TypeHeaders); err != nil {
				return err
			}
			return streamErrorf(id, frame.ErrCodeStreamClosed, "headers on closed stream")
		}
	}

	if !f.HeadersEnded() {
		t.continuation = &headerBlock{
			streamID:  id,
			endStream: f.StreamEnded(),
			frag:      append([]byte(nil), f.HeaderBlockFragment()...),
		}
		return nil
	}
	return t.finishHeaderBlockLocked(id, f.HeaderBlockFragment(), f.StreamEnded())
}

func (t *Conn) handleContinuation(f *frame.ContinuationFrame) error {
	hb := t.continuation
	if hb == nil {
		return connectionErrorf(frame.ErrCodeProtocol, nil,
			"transport: CONTINUATION for stream %d without preceding header block", f.StreamID)
	}
	hb.frag = append(hb.frag, f.HeaderBlockFragment()...)
	if uint32(len(hb.frag)) > t.cfg.MaxHeaderListSize {
		return connectionErrorf(frame.ErrCodeEnhanceYourCalm, nil,
			"transport: header block for stream %d exceeds %d bytes", f.StreamID, t.cfg.MaxHeaderListSize)
	}
	if !f.HeadersEnded() {
		return nil
	}
	t.continuation = nil
	return t.finishHeaderBlockLocked(hb.streamID, hb.frag, hb.endStream)
}

// finishHeaderBlockLocked decodes a complete header block and applies the
// HEADERS transition for the stream.
func (t *Conn) finishHeaderBlockLocked(id uint32, block []byte, endStream bool) error {
	fields, err := t.hdec.Decode(block)
	if err != nil {
		// The decode context is desynchronized; nothing on this connection
		// can be trusted any more.
		return connectionErrorf(frame.ErrCodeCompression, err, "transport: %v", err)
	}
	if err := validateHeaderFields(fields); err != nil {
		return streamErrorf(id, frame.ErrCodeProtocol, "malformed header list: %v", err)
	}
	s := t.streams[id]
	if s == nil {
		// Closed while the block was being reassembled.
		return streamErrorf(id, frame.ErrCodeStreamClosed, "headers on closed stream")
	}
	if t.peerInitiated(id) && s.state == stateIdle && !t.sess.NewStreamsAllowed() {
		delete(t.streams, id)
		return streamErrorf(id, frame.ErrCodeRefusedStream, "refusing new stream")
	}
	if err := s.recvHeaders(endStream); err != nil {
		return err
	}
	t.sess.OnHeaders(id, fields, endStream)
	if s.state == stateClosed {
		t.closeStreamLocked(id, ReasonNormal)
	}
	return nil
}

func (t *Conn) handleRSTStream(f *frame.RSTStreamFrame) error {
	s := t.streams[f.StreamID]
	if s == nil {
		if err := t.vanishedStream(f.StreamID, frame.TypeRSTStream); err != nil {
			return err
		}
		// Late reset for a stream we already closed: the grace window.
		return nil
	}
	reason := ReasonReset
	switch f.ErrCode {
	case frame.ErrCodeRefusedStream:
		reason = ReasonRefused
	case frame.ErrCodeCancel:
		reason = ReasonCanceled
	}
	s.reset()
	t.closeStreamLocked(f.StreamID, reason)
	return nil
}

func (t *Conn) handleSettings(f *frame.SettingsFrame) error {
	if f.IsAck() {
		return nil
	}
	err := f.ForeachSetting(func(s frame.Setting) error {
		switch s.ID {
		case frame.SettingHeaderTableSize:
			t.peer.headerTableSize = s.Val
			t.henc.SetMaxDynamicTableSize(s.Val)
		case frame.SettingEnablePush:
			t.peer.enablePush = s.Val == 1
		case frame.SettingMaxConcurrentStreams:
			t.peer.maxConcurrentStreams = s.Val
		case frame.SettingInitialWindowSize:
			// Applied retroactively to every open stream; windows may go
			// negative and block sending until updates recover them.
			delta := int32(s.Val) - int32(t.peer.initialWindowSize)
			t.peer.initialWindowSize = s.Val
			for _, st := range t.streams {
				st.sendWindow += delta
			}
		case frame.SettingMaxFrameSize:
			t.peer.maxFrameSize = s.Val
		case frame.SettingMaxHeaderListSize:
			t.peer.maxHeaderListSize = s.Val
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.fr.WriteSettingsAck()
}

func (t *Conn) handlePushPromise(f *frame.PushPromiseFrame) error {
	if t.isClient {
		// We advertised ENABLE_PUSH=0; a promise is a violation.
		return connectionErrorf(frame.ErrCodeProtocol, nil,
			"transport: received PUSH_PROMISE with push disabled")
	}
	// A server never receives promises at all.
	return connectionErrorf(frame.ErrCodeProtocol, nil,
		"transport: client sent PUSH_PROMISE")
}

func (t *Conn) handlePing(f *frame.PingFrame) error {
	if f.IsAck() {
		if ch, ok := t.pings[f.Data]; ok {
			delete(t.pings, f.Data)
			close(ch)
		}
		return nil
	}
	return t.fr.WritePing(true, f.Data)
}

func (t *Conn) handleGoAway(f *frame.GoAwayFrame) error {
	if t.isClient && f.LastStreamID > 0 && f.LastStreamID%2 != 1 {
		return connectionErrorf(frame.ErrCodeProtocol, nil,
			"transport: received goaway with non-odd numbered stream id: %v", f.LastStreamID)
	}
	if t.goAwayReceived && f.LastStreamID > t.goAwayLastID {
		return connectionErrorf(frame.ErrCodeProtocol, nil,
			"transport: received goaway with stream id %d exceeding previous goaway %d", f.LastStreamID, t.goAwayLastID)
	}
	t.goAwayReceived = true
	t.goAwayLastID = f.LastStreamID
	t.draining = true
	if f.ErrCode != frame.ErrCodeNo {
		log.Printf("h2: received goaway %v: %q", f.ErrCode, f.DebugData())
	}
	// Streams above the last processed id were never acted on by the peer
	// and are safe to retry elsewhere.
	for id, s := range t.streams {
		if !t.peerInitiated(id) && id > f.LastStreamID {
			s.reset()
			t.closeStreamLocked(id, ReasonRefused)
		}
	}
	return nil
}

func (t *Conn) handleWindowUpdate(f *frame.WindowUpdateFrame) error {
	if f.StreamID == 0 {
		if t.sendWindow > 0 && f.Increment > uint32(1<<31-1-t.sendWindow) {
			return connectionErrorf(frame.ErrCodeFlowControl, nil,
				"transport: connection window overflow on increment %d", f.Increment)
		}
		t.sendWindow += int32(f.Increment)
		return nil
	}
	s := t.streams[f.StreamID]
	if s == nil {
		if err := t.vanishedStream(f.StreamID, frame.TypeWindowUpdate); err != nil {
			return err
		}
		// Late window credit for a closed stream is ignored.
		return nil
	}
	if f.Increment == 0 {
		return streamErrorf(f.StreamID, frame.ErrCodeProtocol, "window update with zero increment")
	}
	if s.sendWindow > 0 && f.Increment > uint32(1<<31-1-s.sendWindow) {
		return streamErrorf(f.StreamID, frame.ErrCodeFlowControl, "stream window overflow on increment %d", f.Increment)
	}
	s.sendWindow += int32(f.Increment)
	return nil
}

// newStreamLocked creates a stream in Idle with windows at their currently
// negotiated initial sizes.
func (t *Conn) newStreamLocked(id uint32) *Stream {
	s := &Stream{
		id:         id,
		state:      stateIdle,
		sendWindow: int32(t.peer.initialWindowSize),
		fc:         &inFlow{limit: t.cfg.InitialWindowSize},
	}
	t.streams[id] = s
	return s
}

// closeStreamLocked removes a stream and reports its closure exactly once.
func (t *Conn) closeStreamLocked(id uint32, reason CloseReason) {
	s, ok := t.streams[id]
	if !ok {
		return
	}
	delete(t.streams, id)
	// Return connection-level credit the stream was still holding.
	if n := s.fc.restore(); n > 0 {
		if w := t.inFlow.onRead(n); w > 0 {
			t.fr.WriteWindowUpdate(0, w)
		}
	}
	t.sess.OnStreamClosed(id, reason)
}

func (t *Conn) writeRSTStreamLocked(id uint32, code frame.ErrCode) {
	if err := t.fr.WriteRSTStream(id, code); err != nil && Debug {
		log.Printf("h2: failed to write RST_STREAM for %d: %v", id, err)
	}
	if s, ok := t.streams[id]; ok {
		s.reset()
		t.closeStreamLocked(id, ReasonProtocol)
	}
}

// pumpLocked is the send pass: for every stream with an active body it
// pulls chunks from the Session and writes DATA within the stream,
// connection and frame-size budgets.
func (t *Conn) pumpLocked() error {
	for id, s := range t.streams {
		if !s.hasBody || !s.canSendData() {
			continue
		}
		for {
			if len(s.pending) == 0 && !s.bodyComplete {
				chunk, more := t.sess.NextOutboundChunk(id)
				if len(chunk) > 0 {
					s.pending = append(s.pending, chunk...)
				}
				if !more {
					s.bodyComplete = true
				}
				if len(s.pending) == 0 && !s.bodyComplete {
					// Nothing available right now; the next send pass
					// will ask again.
					break
				}
			}
			if len(s.pending) == 0 {
				// Body complete with nothing left to flush: close our
				// direction with an empty DATA frame.
				if err := t.fr.WriteData(id, true, nil); err != nil {
					return err
				}
				s.hasBody = false
				s.sentEndStream()
				if s.state == stateClosed {
					t.closeStreamLocked(id, ReasonNormal)
				}
				break
			}
			quota := min32(t.sendWindow, s.sendWindow)
			if quota <= 0 {
				break
			}
			n := len(s.pending)
			if n > int(quota) {
				n = int(quota)
			}
			if n > int(t.peer.maxFrameSize) {
				n = int(t.peer.maxFrameSize)
			}
			endStream := s.bodyComplete && n == len(s.pending)
			if err := t.fr.WriteData(id, endStream, s.pending[:n]); err != nil {
				return err
			}
			t.sendWindow -= int32(n)
			s.sendWindow -= int32(n)
			s.pending = s.pending[n:]
			if endStream {
				s.hasBody = false
				s.sentEndStream()
				if s.state == stateClosed {
					t.closeStreamLocked(id, ReasonNormal)
				}
				break
			}
		}
	}
	return nil
}

// SendHeaders sends a header block (a response, or trailers) on an
// existing stream. With endStream false the engine starts pulling body
// chunks for the stream through Session.NextOutboundChunk.
func (t *Conn) SendHeaders(id uint32, fields []hpack.HeaderField, endStream bool) error {
	if err := validateHeaderFields(fields); err != nil {
		return fmt.Errorf("invalid header list: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrConnClosing
	}
	s, ok := t.streams[id]
	if !ok {
		return streamErrorf(id, frame.ErrCodeStreamClosed, "send headers on closed stream")
	}
	block, err := t.encodeHeaderBlockLocked(fields)
	if err != nil {
		return err
	}
	if err := t.writeHeaderBlockLocked(id, block, endStream); err != nil {
		return err
	}
	if endStream {
		s.sentEndStream()
		if s.state == stateClosed {
			t.closeStreamLocked(id, ReasonNormal)
		}
	} else {
		s.hasBody = true
		if err := t.pumpLocked(); err != nil {
			return err
		}
	}
	return t.fr.Flush()
}

// Flush runs a send pass and flushes buffered frames. Callers whose
// Session gained new outbound body data invoke it to wake the sender.
func (t *Conn) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrConnClosing
	}
	if err := t.pumpLocked(); err != nil {
		return err
	}
	return t.fr.Flush()
}

// Ping sends a PING frame and blocks until the peer acknowledges it or ctx
// expires.
func (t *Conn) Ping(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrConnClosing
	}
	t.pingCounter++
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], t.pingCounter)
	ch := make(chan struct{})
	t.pings[data] = ch
	err := t.fr.WritePing(false, data)
	if err == nil {
		err = t.fr.Flush()
	}
	if err != nil {
		delete(t.pings, data)
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-t.done:
		return ErrConnClosing
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pings, data)
		t.mu.Unlock()
		return ctx.Err()
	}
}

// Close tears the connection down cleanly: GOAWAY(NO_ERROR), transport
// close, and a synthesized closure callback for every still-open stream.
func (t *Conn) Close() error {
	t.shutdown(frame.ErrCodeNo, nil)
	return nil
}

// closeWithError tears the connection down after a fatal error.
func (t *Conn) closeWithError(err ConnectionError) {
	t.shutdown(err.Code, err)
}

func (t *Conn) shutdown(code frame.ErrCode, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	// Best effort: the transport may already be gone.
	t.fr.WriteGoAway(t.maxPeerStreamID, code, nil)
	t.fr.Flush()

	open := make([]uint32, 0, len(t.streams))
	for id := range t.streams {
		open = append(open, id)
	}
	for _, id := range open {
		s := t.streams[id]
		delete(t.streams, id)
		s.reset()
		t.sess.OnStreamClosed(id, ReasonConnectionLost)
	}
	for _, ch := range t.pings {
		close(ch)
	}
	t.pings = nil
	t.mu.Unlock()

	t.conn.Close()
	close(t.done)
	if err != nil {
		log.Printf("h2: connection closed: %v", err)
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
