package websocket

import (
	"errors"
	"io"
	"time"
)

// ReadMessage blocks until it can return a complete Text or Binary
// Message. Ping control frames are answered with an identical-payload
// Pong automatically, per RFC 6455 §5.5.2; incoming Pong frames are
// silently discarded, per §5.5.3 ("a response to an unsolicited Pong
// frame is not expected"); a Close frame completes the closing handshake
// (replying in kind if this side hadn't already initiated it) and
// ReadMessage returns io.EOF. A protocol error found on the read path
// sends a Close frame with the matching status code before the error is
// returned to the caller.
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		msg, err := c.read.ReadMessage()
		if err != nil {
			return nil, c.handleReadError(err)
		}

		switch msg.Opcode {
		case OpcodePing:
			if err := c.write.WriteFrame(Frame{FIN: true, Opcode: OpcodePong, Payload: msg.Data}); err != nil {
				c.logger.Error().Err(err).Msg("failed to send pong in reply to ping")
			}
			continue

		case OpcodePong:
			continue

		case OpcodeClose:
			c.markCloseReceived()
			c.sendCloseFrame(msg.Status, msg.Reason)
			c.closeTransport()
			return nil, io.EOF

		default:
			return msg, nil
		}
	}
}

// handleReadError applies the read path's error policy: protocol errors
// get a Close frame with the matching code before the error is
// returned; a clean EOF is reported as io.EOF with both closing-handshake
// flags set (the peer went away without a Close frame, an abnormal
// closure per RFC 6455 §7.1.7, but not this package's problem to diagnose
// further than reporting it).
func (c *Conn) handleReadError(err error) error {
	if errors.Is(err, io.EOF) {
		c.markCloseReceived()
		c.markCloseSent()
		c.closeTransport()
		return io.EOF
	}

	if IsProtocolError(err) {
		c.sendCloseFrame(closeCodeFor(err), "")
		c.closeTransport()
	}
	return err
}

// sendCloseFrame performs (or completes) the WebSocket closing handshake,
// per https://datatracker.ietf.org/doc/html/rfc6455#section-7. It is
// idempotent: once this side has sent a Close frame, later calls are
// no-ops, matching "if an endpoint receives a Close frame and did not
// previously send a Close frame, the endpoint MUST send a Close frame in
// response".
func (c *Conn) sendCloseFrame(status StatusCode, reason string) {
	if already := c.markCloseSent(); already {
		return
	}

	// Give the peer a moment to process whatever came just before this,
	// which helps interop tests behave deterministically.
	time.Sleep(time.Millisecond)

	if status == 0 {
		status = StatusNormalClosure
	}
	payload := encodeClosePayload(status, reason)

	if err := c.write.WriteFrame(Frame{FIN: true, Opcode: OpcodeClose, Payload: payload}); err != nil {
		c.logger.Error().Err(err).Str("status", status.String()).Msg("failed to send close frame")
	} else {
		c.logger.Debug().Str("status", status.String()).Str("reason", reason).Msg("sent close frame")
	}
}

// Close initiates the closing handshake with the given status code. It
// sends a Close frame (see sendCloseFrame) and then closes the underlying
// transport unconditionally, without waiting for the peer's Close in
// reply: callers that need to guarantee delivery of a pending incoming
// Close frame should keep reading via ReadMessage instead of calling
// Close directly.
func (c *Conn) Close(status StatusCode) {
	c.sendCloseFrame(status, "")
	c.closeTransport()
}

// WriteText sends a UTF-8 text message.
func (c *Conn) WriteText(data []byte) error {
	return c.write.WriteMessage(Message{Opcode: OpcodeText, Data: data})
}

// WriteBinary sends a binary message.
func (c *Conn) WriteBinary(data []byte) error {
	return c.write.WriteMessage(Message{Opcode: OpcodeBinary, Data: data})
}

// Ping sends an unsolicited Ping control frame with the given payload
// (≤125 bytes).
func (c *Conn) Ping(payload []byte) error {
	if len(payload) > maxControlPayload {
		return ErrBadControlSize
	}
	return c.write.WriteFrame(Frame{FIN: true, Opcode: OpcodePing, Payload: payload})
}
