// ABOUTME: Frame codec for the chathub wire protocol.
// ABOUTME: Splits 0x1E-delimited transport payloads into JSON frames and encodes outbound frames.

package wire

import (
	"bytes"
	"encoding/json"
)

// Delimiter is the ASCII record separator that terminates every frame.
const Delimiter byte = 0x1e

// Frame type numbers used by the chathub protocol.
const (
	FrameUpdate        = 1 // partial result push
	FrameCompletion    = 2 // terminal result
	FrameSessionClosed = 3 // terminal close signal, no payload
	FrameInvocation    = 4 // outbound query
	FramePing          = 6 // keepalive
)

// Frame is one delimited unit of the wire protocol. Typed frames carry the
// parsed type number plus the raw JSON for further decoding. Segments that
// fail to parse are preserved verbatim in Opaque with Typed false; they are
// never an error.
type Frame struct {
	Type   int
	Raw    json.RawMessage
	Opaque string
	Typed  bool
}

// Decode splits a transport payload on the record separator, discards empty
// segments, and parses each remaining segment as JSON. A segment that is not
// valid JSON comes back as an opaque frame rather than failing the payload.
func Decode(payload []byte) []Frame {
	var frames []Frame
	for _, seg := range bytes.Split(payload, []byte{Delimiter}) {
		if len(seg) == 0 {
			continue
		}
		var head struct {
			Type int `json:"type"`
		}
		if err := json.Unmarshal(seg, &head); err != nil {
			frames = append(frames, Frame{Opaque: string(seg)})
			continue
		}
		raw := make(json.RawMessage, len(seg))
		copy(raw, seg)
		frames = append(frames, Frame{Type: head.Type, Raw: raw, Typed: true})
	}
	return frames
}

// Encode marshals v and appends exactly one trailing delimiter. JSON string
// escaping guarantees the delimiter byte never appears inside the payload.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, Delimiter), nil
}
