package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalTransitions(t *testing.T) {
	s := &Stream{id: 1}
	require.NoError(t, s.openLocal(false))
	assert.Equal(t, stateOpen, s.state)

	s = &Stream{id: 3}
	require.NoError(t, s.openLocal(true))
	assert.Equal(t, stateHalfClosedLocal, s.state)

	// Opening twice is an engine bug.
	assert.Error(t, s.openLocal(false))
}

func TestFullExchangeReachesClosed(t *testing.T) {
	// Client view: request with body, response with END_STREAM.
	s := &Stream{id: 1}
	require.NoError(t, s.openLocal(false))
	s.sentEndStream()
	assert.Equal(t, stateHalfClosedLocal, s.state)
	require.NoError(t, s.recvHeaders(false))
	assert.Equal(t, stateHalfClosedLocal, s.state)
	require.NoError(t, s.recvData())
	s.recvEndStream()
	assert.Equal(t, stateClosed, s.state)
}

func TestPeerOpenedTransitions(t *testing.T) {
	// Server view: request without body, response sent with END_STREAM.
	s := &Stream{id: 1}
	require.NoError(t, s.recvHeaders(true))
	assert.Equal(t, stateHalfClosedRemote, s.state)
	s.sentEndStream()
	assert.Equal(t, stateClosed, s.state)
}

func TestReservedRemoteTransitions(t *testing.T) {
	s := &Stream{id: 2, state: stateReservedRemote}
	require.NoError(t, s.recvHeaders(false))
	assert.Equal(t, stateHalfClosedLocal, s.state)
	s.recvEndStream()
	assert.Equal(t, stateClosed, s.state)
}

func TestClosedAcceptsNothing(t *testing.T) {
	s := &Stream{id: 1, state: stateClosed}
	assert.Error(t, s.recvData())
	assert.Error(t, s.recvHeaders(false))
	assert.False(t, s.canSendData())
}

func TestResetDiscardsBufferedOutput(t *testing.T) {
	s := &Stream{id: 1, state: stateOpen, hasBody: true, pending: []byte("queued")}
	s.reset()
	assert.Equal(t, stateClosed, s.state)
	assert.Nil(t, s.pending)
	assert.False(t, s.hasBody)
}

// Every valid path from Idle terminates in Closed.
func TestAllPathsTerminate(t *testing.T) {
	paths := []func(s *Stream){
		func(s *Stream) { // request/response, no bodies
			s.openLocal(true)
			s.recvHeaders(true)
		},
		func(s *Stream) { // both directions carry data
			s.openLocal(false)
			s.sentEndStream()
			s.recvEndStream()
		},
		func(s *Stream) { // remote half-closes first
			s.openLocal(false)
			s.recvEndStream()
			s.sentEndStream()
		},
		func(s *Stream) { // reset from Open
			s.openLocal(false)
			s.reset()
		},
		func(s *Stream) { // reset from HalfClosedLocal
			s.openLocal(true)
			s.reset()
		},
	}
	for i, path := range paths {
		s := &Stream{id: uint32(2*i + 1)}
		path(s)
		assert.Equal(t, stateClosed, s.state, "path %d", i)
	}
}
