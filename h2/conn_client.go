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

package h2

import (
	"fmt"
	"io"

	"github.com/waieez/solicit/h2/frame"
	"github.com/waieez/solicit/h2/hpack"
)

// ClientConn specializes Conn with client semantics: odd stream ids
// allocated strictly increasing, and request initiation.
//
// The transport handed to NewClientConn must already have completed
// establishment, client preface included; see the transport package.
type ClientConn struct {
	*Conn
}

// NewClientConn wraps an established transport in a client engine. The
// caller must invoke Start once and then drive Run from one goroutine.
func NewClientConn(rwc io.ReadWriteCloser, sess Session, cfg *Config) *ClientConn {
	return &ClientConn{newConn(rwc, sess, cfg, true)}
}

// StartRequest opens a new stream and sends its HEADERS frame. hasBody
// declares a request body; the engine will pull it chunk by chunk through
// Session.NextOutboundChunk. Without a body the HEADERS carries END_STREAM
// and the stream is born half-closed on our side.
//
// Returns ErrTooManyStreams when the peer's MAX_CONCURRENT_STREAMS limit
// (or the Session's own backpressure hook) forbids a new stream; nothing
// was sent and the caller may retry after a stream closes. Returns
// ErrConnDraining after a received GOAWAY.
func (c *ClientConn) StartRequest(headers []hpack.HeaderField, hasBody bool) (uint32, error) {
	if err := validateHeaderFields(headers); err != nil {
		return 0, fmt.Errorf("invalid request headers: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrConnClosing
	}
	if c.draining {
		return 0, ErrConnDraining
	}
	if !c.sess.NewStreamsAllowed() {
		return 0, ErrTooManyStreams
	}
	active := uint32(0)
	for id := range c.streams {
		if !c.peerInitiated(id) {
			active++
		}
	}
	if active >= c.peer.maxConcurrentStreams {
		return 0, ErrTooManyStreams
	}

	id := c.nextID
	c.nextID += 2
	c.maxLocalStreamID = id
	s := c.newStreamLocked(id)
	if err := s.openLocal(!hasBody); err != nil {
		delete(c.streams, id)
		return 0, err
	}
	s.hasBody = hasBody

	block, err := c.encodeHeaderBlockLocked(headers)
	if err != nil {
		delete(c.streams, id)
		return 0, err
	}
	if err := c.writeHeaderBlockLocked(id, block, !hasBody); err != nil {
		delete(c.streams, id)
		return 0, err
	}
	if hasBody {
		if err := c.pumpLocked(); err != nil {
			return 0, err
		}
	}
	if err := c.fr.Flush(); err != nil {
		return 0, err
	}
	return id, nil
}

// CancelStream aborts one stream with RST_STREAM(CANCEL). Idempotent: a
// stream already closed is a no-op.
func (c *ClientConn) CancelStream(id uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosing
	}
	s, ok := c.streams[id]
	if !ok {
		return nil
	}
	s.reset()
	if err := c.fr.WriteRSTStream(id, frame.ErrCodeCancel); err != nil {
		return err
	}
	c.closeStreamLocked(id, ReasonCanceled)
	return c.fr.Flush()
}

// encodeHeaderBlockLocked compresses a header list into the connection's
// scratch buffer. The returned slice is valid until the next encode.
func (t *Conn) encodeHeaderBlockLocked(fields []hpack.HeaderField) ([]byte, error) {
	t.hbuf.Reset()
	for _, f := range fields {
		if err := t.henc.WriteField(f); err != nil {
			return nil, err
		}
	}
	return t.hbuf.Bytes(), nil
}

// writeHeaderBlockLocked emits a header block as HEADERS plus however many
// CONTINUATIONs the peer's max frame size requires.
func (t *Conn) writeHeaderBlockLocked(id uint32, block []byte, endStream bool) error {
	maxFrag := int(t.peer.maxFrameSize)
	first := block
	if len(first) > maxFrag {
		first = first[:maxFrag]
	}
	rest := block[len(first):]
	if err := t.fr.WriteHeaders(frame.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(rest) == 0,
	}); err != nil {
		return err
	}
	for len(rest) > 0 {
		frag := rest
		if len(frag) > maxFrag {
			frag = frag[:maxFrag]
		}
		rest = rest[len(frag):]
		if err := t.fr.WriteContinuation(id, len(rest) == 0, frag); err != nil {
			return err
		}
	}
	return nil
}
