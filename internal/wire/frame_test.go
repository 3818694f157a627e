// ABOUTME: Tests for the chathub frame codec.
// ABOUTME: Validates delimiter splitting, opaque passthrough, and outbound encoding.

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_SingleFrame(t *testing.T) {
	frames := Decode([]byte("{\"type\":6}\x1e"))

	require.Len(t, frames, 1)
	assert.True(t, frames[0].Typed)
	assert.Equal(t, FramePing, frames[0].Type)
}

func TestDecode_MultipleFramesInOnePayload(t *testing.T) {
	payload := []byte("{\"type\":1,\"target\":\"update\"}\x1e{\"type\":2}\x1e{\"type\":3}\x1e")
	frames := Decode(payload)

	require.Len(t, frames, 3)
	assert.Equal(t, FrameUpdate, frames[0].Type)
	assert.Equal(t, FrameCompletion, frames[1].Type)
	assert.Equal(t, FrameSessionClosed, frames[2].Type)
}

func TestDecode_DiscardsEmptySegments(t *testing.T) {
	payload := []byte("\x1e\x1e{\"type\":6}\x1e\x1e")
	frames := Decode(payload)

	require.Len(t, frames, 1)
	assert.Equal(t, FramePing, frames[0].Type)
}

func TestDecode_UnparseableSegmentIsOpaque(t *testing.T) {
	payload := []byte("not json at all\x1e{\"type\":6}\x1e")
	frames := Decode(payload)

	require.Len(t, frames, 2)
	assert.False(t, frames[0].Typed)
	assert.Equal(t, "not json at all", frames[0].Opaque)
	assert.True(t, frames[1].Typed)
}

func TestDecode_EmptyObjectIsTypedZero(t *testing.T) {
	// The handshake acknowledgment is an empty object.
	frames := Decode([]byte("{}\x1e"))

	require.Len(t, frames, 1)
	assert.True(t, frames[0].Typed)
	assert.Equal(t, 0, frames[0].Type)
}

func TestDecode_RawPreservesFullSegment(t *testing.T) {
	payload := []byte("{\"type\":1,\"arguments\":[{\"requestId\":\"r1\"}]}\x1e")
	frames := Decode(payload)

	require.Len(t, frames, 1)

	var update UpdateFrame
	require.NoError(t, json.Unmarshal(frames[0].Raw, &update))
	require.Len(t, update.Arguments, 1)
	assert.Equal(t, "r1", update.Arguments[0].RequestID)
}

func TestEncode_AppendsExactlyOneDelimiter(t *testing.T) {
	data, err := Encode(Handshake{Protocol: "json", Version: 1})
	require.NoError(t, err)

	assert.Equal(t, byte(Delimiter), data[len(data)-1])
	assert.NotEqual(t, byte(Delimiter), data[len(data)-2])
	assert.JSONEq(t, `{"protocol":"json","version":1}`, string(data[:len(data)-1]))
}

func TestEncode_DelimiterNeverEmbeddedInPayload(t *testing.T) {
	// A delimiter byte inside a string value must be escaped, not emitted raw.
	data, err := Encode(map[string]string{"text": "a\x1eb"})
	require.NoError(t, err)

	for i, b := range data[:len(data)-1] {
		assert.NotEqual(t, byte(Delimiter), b, "raw delimiter at offset %d", i)
	}

	frames := Decode(data)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Typed)
}

func TestEncodeDecode_RoundTripPing(t *testing.T) {
	data, err := Encode(Ping{Type: FramePing})
	require.NoError(t, err)

	frames := Decode(data)
	require.Len(t, frames, 1)
	assert.Equal(t, FramePing, frames[0].Type)
}
