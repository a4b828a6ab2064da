package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlowRejectsOverrun(t *testing.T) {
	f := &inFlow{limit: 1000}
	require.NoError(t, f.onData(600))
	require.NoError(t, f.onData(400))
	// The window is exhausted; one more byte is a violation.
	assert.Error(t, f.onData(1))
}

func TestInFlowCoalescesUpdates(t *testing.T) {
	f := &inFlow{limit: 1000}
	require.NoError(t, f.onData(100))
	// Below a quarter of the window: no update yet.
	assert.Zero(t, f.onRead(100))
	require.NoError(t, f.onData(200))
	// 100+200 crosses the 250 threshold: the whole credit is returned.
	assert.Equal(t, uint32(300), f.onRead(200))

	// Counters are reset afterwards.
	require.NoError(t, f.onData(1000))
	assert.Equal(t, uint32(1000), f.onRead(1000))
}

func TestInFlowRestore(t *testing.T) {
	f := &inFlow{limit: 1000}
	require.NoError(t, f.onData(700))
	assert.Equal(t, uint32(700), f.restore())
	assert.Zero(t, f.pendingData)
	// The window is whole again.
	require.NoError(t, f.onData(1000))
}
