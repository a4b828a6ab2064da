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
)

// inFlow deals with inbound flow control accounting for one receive window
// (the connection's, or one stream's). It tracks how much the peer may
// still send and how much consumed credit is waiting to be returned as a
// WINDOW_UPDATE.
type inFlow struct {
	// The inbound flow control limit for pending data.
	limit uint32

	// pendingData is the overall data which have been received but not been
	// consumed by the Session yet.
	pendingData uint32
	// The amount of data the Session has consumed but the engine has not
	// sent window update for them. Used to reduce window update frequency.
	pendingUpdate uint32
}

// onData is invoked when some data frame is received. It checks the peer
// stayed inside the window.
func (f *inFlow) onData(n uint32) error {
	f.pendingData += n
	if f.pendingData+f.pendingUpdate > f.limit {
		return fmt.Errorf("received %d-bytes data exceeding the limit %d bytes", f.pendingData+f.pendingUpdate, f.limit)
	}
	return nil
}

// onRead is invoked when the Session reads the data. It returns the window
// size to be sent to the peer, 0 while the pending credit is below a
// quarter of the window.
func (f *inFlow) onRead(n uint32) uint32 {
	if f.pendingData == 0 {
		return 0
	}
	if n > f.pendingData {
		n = f.pendingData
	}
	f.pendingData -= n
	f.pendingUpdate += n
	if f.pendingUpdate >= f.limit/4 {
		wu := f.pendingUpdate
		f.pendingUpdate = 0
		return wu
	}
	return 0
}

// restore returns all pending credit at once, used when a stream dies
// with unconsumed data so the connection window is not leaked.
func (f *inFlow) restore() uint32 {
	n := f.pendingData
	f.pendingData = 0
	f.pendingUpdate = 0
	return n
}
