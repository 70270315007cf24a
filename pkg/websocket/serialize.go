package websocket

import "encoding/binary"

// fragmentThresholdInfinite means "never fragment outgoing messages",
// the package default.
const fragmentThresholdInfinite = 0

// Serialize splits a Message into the sequence of Frames that encode it on
// the wire, per RFC 6455 §5.4. Messages at or below
// threshold produce a single non-fragmented frame; threshold == 0 means
// "never fragment" (the package default). Control messages (Close, Ping,
// Pong) are never fragmented regardless of size, and are rejected before
// any Frame is produced if they exceed 125 bytes.
func Serialize(msg Message, threshold int) ([]Frame, error) {
	if msg.Opcode.isControl() {
		payload := msg.Data
		if msg.Opcode == OpcodeClose {
			payload = encodeClosePayload(msg.Status, msg.Reason)
		}
		if len(payload) > maxControlPayload {
			return nil, ErrBadControlSize
		}
		return []Frame{{FIN: true, Opcode: msg.Opcode, Payload: payload}}, nil
	}

	data := msg.Data
	if threshold <= fragmentThresholdInfinite || len(data) <= threshold {
		return []Frame{{FIN: true, Opcode: msg.Opcode, Payload: data}}, nil
	}

	var frames []Frame
	op := msg.Opcode
	for len(data) > 0 {
		n := threshold
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]

		frames = append(frames, Frame{
			FIN:     len(data) == 0,
			Opcode:  op,
			Payload: chunk,
		})
		op = OpcodeContinuation
	}
	if len(frames) == 0 {
		frames = append(frames, Frame{FIN: true, Opcode: msg.Opcode})
	}

	return frames, nil
}

// encodeClosePayload builds the wire payload of a Close control frame:
// a big-endian status code followed by a UTF-8 reason, per RFC 6455 §5.5.1.
// A zero status code (the caller didn't set one) emits an empty payload,
// matching "Close({} | empty)" in the data model.
func encodeClosePayload(status StatusCode, reason string) []byte {
	if status == 0 {
		return nil
	}

	maxReason := maxControlPayload - 2
	if len(reason) > maxReason {
		reason = reason[:maxReason]
	}

	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(status))
	copy(payload[2:], reason)
	return payload
}
