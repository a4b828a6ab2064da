package frame

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFramer() (*Framer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewFramer(buf, buf, 0, 0), buf
}

func readOne(t *testing.T, fr *Framer) Frame {
	t.Helper()
	require.NoError(t, fr.Flush())
	f, err := fr.ReadFrame()
	require.NoError(t, err)
	return f
}

var frameCmpOpts = cmp.Options{
	cmp.AllowUnexported(DataFrame{}, HeadersFrame{}, PushPromiseFrame{}, GoAwayFrame{}, ContinuationFrame{}),
}

func TestDataRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteData(1, true, []byte("hello")))
	got := readOne(t, fr)
	want := &DataFrame{
		FrameHeader: FrameHeader{Length: 5, Type: TypeData, Flags: FlagDataEndStream, StreamID: 1},
		data:        []byte("hello"),
	}
	if diff := cmp.Diff(want, got, frameCmpOpts); diff != "" {
		t.Errorf("DATA mismatch (-want +got):\n%s", diff)
	}
	df := got.(*DataFrame)
	assert.True(t, df.StreamEnded())
	assert.Equal(t, []byte("hello"), df.Data())
}

func TestDataPaddedRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteDataPadded(3, false, []byte("body"), make([]byte, 7)))
	got := readOne(t, fr).(*DataFrame)
	// 1 pad-length octet + 4 data + 7 pad.
	assert.Equal(t, uint32(12), got.Length)
	assert.Equal(t, uint8(7), got.PadLength)
	assert.Equal(t, []byte("body"), got.Data())
	assert.False(t, got.StreamEnded())
}

func TestHeadersRoundTrip(t *testing.T) {
	frag := []byte{0x82, 0x86, 0x84}
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteHeaders(HeadersFrameParam{
		StreamID:      5,
		BlockFragment: frag,
		EndStream:     true,
		EndHeaders:    true,
	}))
	got := readOne(t, fr).(*HeadersFrame)
	assert.Equal(t, frag, got.HeaderBlockFragment())
	assert.True(t, got.StreamEnded())
	assert.True(t, got.HeadersEnded())
	assert.False(t, got.HasPriority())
}

func TestHeadersWithPriorityAndPadding(t *testing.T) {
	frag := []byte("fragment")
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteHeaders(HeadersFrameParam{
		StreamID:      7,
		BlockFragment: frag,
		EndHeaders:    true,
		PadLength:     4,
		Priority:      PriorityParam{StreamDep: 3, Exclusive: true, Weight: 15},
	}))
	got := readOne(t, fr).(*HeadersFrame)
	assert.Equal(t, frag, got.HeaderBlockFragment())
	assert.True(t, got.HasPriority())
	assert.Equal(t, PriorityParam{StreamDep: 3, Exclusive: true, Weight: 15}, got.Priority)
	assert.Equal(t, uint8(4), got.PadLength)
}

func TestPriorityRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WritePriority(9, PriorityParam{StreamDep: 1, Weight: 200}))
	got := readOne(t, fr).(*PriorityFrame)
	assert.Equal(t, PriorityParam{StreamDep: 1, Weight: 200}, got.PriorityParam)
	assert.Equal(t, uint32(9), got.StreamID)
}

func TestRSTStreamRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteRSTStream(7, ErrCodeCancel))
	got := readOne(t, fr).(*RSTStreamFrame)
	assert.Equal(t, ErrCodeCancel, got.ErrCode)
	assert.Equal(t, uint32(7), got.StreamID)
}

func TestSettingsRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	in := []Setting{
		{ID: SettingInitialWindowSize, Val: 1 << 20},
		{ID: SettingMaxConcurrentStreams, Val: 100},
	}
	require.NoError(t, fr.WriteSettings(in...))
	got := readOne(t, fr).(*SettingsFrame)
	assert.False(t, got.IsAck())
	assert.Equal(t, in, got.Settings)
	v, ok := got.Value(SettingMaxConcurrentStreams)
	require.True(t, ok)
	assert.Equal(t, uint32(100), v)
}

func TestSettingsAckRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteSettingsAck())
	got := readOne(t, fr).(*SettingsFrame)
	assert.True(t, got.IsAck())
	assert.Empty(t, got.Settings)
}

func TestPushPromiseRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WritePushPromise(1, 2, true, []byte{0x88}))
	got := readOne(t, fr).(*PushPromiseFrame)
	assert.Equal(t, uint32(2), got.PromiseID)
	assert.Equal(t, []byte{0x88}, got.HeaderBlockFragment())
	assert.True(t, got.HeadersEnded())
}

func TestPingRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	data := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, fr.WritePing(true, data))
	got := readOne(t, fr).(*PingFrame)
	assert.True(t, got.IsAck())
	assert.Equal(t, data, got.Data)
}

func TestGoAwayRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteGoAway(5, ErrCodeProtocol, []byte("debug")))
	got := readOne(t, fr).(*GoAwayFrame)
	assert.Equal(t, uint32(5), got.LastStreamID)
	assert.Equal(t, ErrCodeProtocol, got.ErrCode)
	assert.Equal(t, []byte("debug"), got.DebugData())
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteWindowUpdate(0, 12345))
	got := readOne(t, fr).(*WindowUpdateFrame)
	assert.Equal(t, uint32(12345), got.Increment)
	assert.Equal(t, uint32(0), got.StreamID)
}

func TestContinuationRoundTrip(t *testing.T) {
	fr, _ := newTestFramer()
	require.NoError(t, fr.WriteContinuation(3, true, []byte("frag")))
	got := readOne(t, fr).(*ContinuationFrame)
	assert.Equal(t, []byte("frag"), got.HeaderBlockFragment())
	assert.True(t, got.HeadersEnded())
}

// writeRaw writes a frame with an arbitrary header, bypassing the Framer's
// own validation, to exercise the read-side checks.
func writeRaw(buf *bytes.Buffer, length uint32, typ Type, flags Flags, streamID uint32, payload []byte) {
	var hdr [HeaderLen]byte
	packHeader(hdr[:], FrameHeader{Length: length, Type: typ, Flags: flags, StreamID: streamID})
	buf.Write(hdr[:])
	buf.Write(payload)
}

func requireFramingError(t *testing.T, fr *Framer, code ErrCode) {
	t.Helper()
	_, err := fr.ReadFrame()
	var fe Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, code, fe.Code)
}

func TestReadOversizeFrame(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 20000, TypeData, 0, 1, nil)
	requireFramingError(t, fr, ErrCodeFrameSize)
}

func TestReadDataOnStreamZero(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 3, TypeData, 0, 0, []byte("abc"))
	requireFramingError(t, fr, ErrCodeProtocol)
}

func TestReadPriorityWrongLength(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 4, TypePriority, 0, 1, make([]byte, 4))
	requireFramingError(t, fr, ErrCodeFrameSize)
}

func TestReadSettingsBadLength(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 5, TypeSettings, 0, 0, make([]byte, 5))
	requireFramingError(t, fr, ErrCodeFrameSize)
}

func TestReadSettingsAckWithPayload(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 6, TypeSettings, FlagSettingsAck, 0, make([]byte, 6))
	requireFramingError(t, fr, ErrCodeFrameSize)
}

func TestReadSettingsOnStream(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 0, TypeSettings, 0, 3, nil)
	requireFramingError(t, fr, ErrCodeProtocol)
}

func TestReadPingWrongLength(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 4, TypePing, 0, 0, make([]byte, 4))
	requireFramingError(t, fr, ErrCodeFrameSize)
}

func TestReadPadLengthExceedsPayload(t *testing.T) {
	fr, buf := newTestFramer()
	// Pad-length octet claims 10 pad bytes but only 3 octets follow.
	writeRaw(buf, 4, TypeData, FlagDataPadded, 1, []byte{10, 'a', 'b', 'c'})
	requireFramingError(t, fr, ErrCodeProtocol)
}

func TestReadUnknownFrameType(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 0, Type(0x42), 0, 0, nil)
	requireFramingError(t, fr, ErrCodeProtocol)
}

func TestReadZeroConnWindowIncrement(t *testing.T) {
	fr, buf := newTestFramer()
	writeRaw(buf, 4, TypeWindowUpdate, 0, 0, []byte{0, 0, 0, 0})
	requireFramingError(t, fr, ErrCodeProtocol)
}

func TestUndefinedFlagsIgnored(t *testing.T) {
	fr, buf := newTestFramer()
	// 0x80 is undefined for DATA and must be masked out on read.
	writeRaw(buf, 2, TypeData, Flags(0x80)|FlagDataEndStream, 1, []byte("ok"))
	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FlagDataEndStream, f.Header().Flags)
}

func TestSettingValid(t *testing.T) {
	assert.NoError(t, Setting{ID: SettingEnablePush, Val: 1}.Valid())
	assert.Error(t, Setting{ID: SettingEnablePush, Val: 2}.Valid())
	assert.Error(t, Setting{ID: SettingInitialWindowSize, Val: 1 << 31}.Valid())
	assert.NoError(t, Setting{ID: SettingInitialWindowSize, Val: 1<<31 - 1}.Valid())
	assert.Error(t, Setting{ID: SettingMaxFrameSize, Val: 100}.Valid())
	assert.Error(t, Setting{ID: SettingMaxFrameSize, Val: 1 << 24}.Valid())
}

func TestHeaderPackUnpack(t *testing.T) {
	in := FrameHeader{Length: 0x123456, Type: TypeHeaders, Flags: FlagHeadersEndHeaders, StreamID: 0x7abcdef0 & (1<<31 - 1)}
	var buf [HeaderLen]byte
	packHeader(buf[:], in)
	assert.Equal(t, in, unpackHeader(buf[:]))
}
