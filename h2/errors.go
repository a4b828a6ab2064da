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
	"errors"
	"fmt"

	"github.com/waieez/solicit/h2/frame"
)

// connectionErrorf creates an ConnectionError with the specified error description.
func connectionErrorf(code frame.ErrCode, e error, format string, a ...interface{}) ConnectionError {
	return ConnectionError{
		Desc: fmt.Sprintf(format, a...),
		Code: code,
		err:  e,
	}
}

// ConnectionError is an error that results in the termination of the
// entire connection and the closure of all its active streams.
type ConnectionError struct {
	Desc string
	// Code is carried in the GOAWAY frame sent before teardown.
	Code frame.ErrCode
	err  error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection error: desc = %q", e.Desc)
}

// Origin returns the original error of this connection error.
func (e ConnectionError) Origin() error {
	// Never return nil error here.
	// If the original error is nil, return itself.
	if e.err == nil {
		return e
	}
	return e.err
}

// Unwrap returns the original error of this connection error or nil when the
// origin is nil.
func (e ConnectionError) Unwrap() error {
	return e.err
}

// StreamError is an error scoped to one stream. The engine answers it with
// RST_STREAM and the connection continues.
type StreamError struct {
	StreamID uint32
	Code     frame.ErrCode
	Cause    error
}

func (e StreamError) Error() string {
	return fmt.Sprintf("stream error: stream %d; code %v; cause %v", e.StreamID, e.Code, e.Cause)
}

func (e StreamError) Unwrap() error { return e.Cause }

func streamErrorf(id uint32, code frame.ErrCode, format string, a ...interface{}) StreamError {
	return StreamError{StreamID: id, Code: code, Cause: fmt.Errorf(format, a...)}
}

var (
	// ErrConnClosing indicates that the transport is closing.
	ErrConnClosing = connectionErrorf(frame.ErrCodeNo, nil, "transport is closing")
	// ErrConnDraining indicates the peer sent GOAWAY and no new streams may
	// be started on this connection.
	ErrConnDraining = connectionErrorf(frame.ErrCodeNo, nil, "transport is draining after goaway")
	// ErrTooManyStreams is returned by StartRequest when the peer's
	// MAX_CONCURRENT_STREAMS limit would be exceeded. The caller may retry
	// after a stream closes; nothing was sent.
	ErrTooManyStreams = errors.New("would exceed peer's concurrent stream limit")
)

// CloseReason says why a stream reached its terminal state. Delivered to
// Session.OnStreamClosed exactly once per stream.
type CloseReason uint8

const (
	// ReasonNormal: both directions signaled end-of-stream.
	ReasonNormal CloseReason = iota
	// ReasonReset: the peer sent RST_STREAM.
	ReasonReset
	// ReasonCanceled: the local caller canceled the stream.
	ReasonCanceled
	// ReasonRefused: the stream was never processed by the peer (GOAWAY
	// with a lower last-stream-id, or RST_STREAM with REFUSED_STREAM).
	// Safe to retry on another connection.
	ReasonRefused
	// ReasonConnectionLost: the connection died under the stream.
	ReasonConnectionLost
	// ReasonProtocol: the stream was killed by a protocol violation.
	ReasonProtocol
)

var reasonName = map[CloseReason]string{
	ReasonNormal:         "Normal",
	ReasonReset:          "Reset",
	ReasonCanceled:       "Canceled",
	ReasonRefused:        "Refused",
	ReasonConnectionLost: "ConnectionLost",
	ReasonProtocol:       "Protocol",
}

func (r CloseReason) String() string {
	if s, ok := reasonName[r]; ok {
		return s
	}
	return fmt.Sprintf("CloseReason(%d)", uint8(r))
}
