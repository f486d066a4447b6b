package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeChunkLayout(t *testing.T) {
	frame := EncodeChunk(0x0102, []byte{0xAA, 0xBB})
	// sequence is little-endian
	assert.Equal(t, []byte{0x02, 0x01, 0xAA, 0xBB}, frame)
}

func TestRoundtrip(t *testing.T) {
	payload := make([]byte, MaxPayload)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := EncodeChunk(65535, payload)
	assert.Len(t, frame, MaxFrame)

	seq, got, ok := ParseChunk(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(65535), seq)
	assert.Equal(t, payload, got)
}

func TestParseChunkRejectsShortFrames(t *testing.T) {
	for _, frame := range [][]byte{nil, {}, {0x01}, {0x01, 0x00}} {
		_, _, ok := ParseChunk(frame)
		assert.False(t, ok, "frame %v", frame)
	}
	// exactly 3 bytes is the minimum accepted frame
	seq, payload, ok := ParseChunk([]byte{0x05, 0x00, 0x7F})
	require.True(t, ok)
	assert.Equal(t, uint16(5), seq)
	assert.Equal(t, []byte{0x7F}, payload)
}

func TestEncodeChunkCopiesPayload(t *testing.T) {
	payload := []byte{1, 2, 3}
	frame := EncodeChunk(0, payload)
	payload[0] = 99
	assert.Equal(t, byte(1), frame[HeaderSize])
}
