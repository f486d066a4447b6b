// Package wire defines the chunk frame format shared by both transfer
// directions: a 2-byte little-endian sequence number followed by up to 250
// payload bytes. The underlying link is assumed reliable and ordered;
// sequence numbers exist for verification, not reordering.
package wire

import "encoding/binary"

const (
	// HeaderSize is the sequence prefix length.
	HeaderSize = 2
	// MaxPayload is the largest payload one chunk may carry.
	MaxPayload = 250
	// MaxFrame is the largest complete chunk frame.
	MaxFrame = HeaderSize + MaxPayload
)

// EncodeChunk builds a chunk frame from a sequence number and payload.
// The payload is copied; callers may reuse their slice.
func EncodeChunk(seq uint16, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[:HeaderSize], seq)
	copy(frame[HeaderSize:], payload)
	return frame
}

// ParseChunk splits a chunk frame into its sequence number and payload.
// Frames shorter than 3 bytes (2-byte sequence plus at least 1 payload
// byte) report ok=false; some link stacks deliver empty keep-alive frames
// and callers drop them silently rather than treating them as errors.
// The returned payload aliases the input frame.
func ParseChunk(frame []byte) (seq uint16, payload []byte, ok bool) {
	if len(frame) < HeaderSize+1 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint16(frame[:HeaderSize]), frame[HeaderSize:], true
}
