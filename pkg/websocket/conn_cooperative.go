package websocket

import (
	"errors"
	"io"
)

// CoopConn is the cooperative execution flavor of a WebSocket connection:
// its Poll/Flush methods never block the calling goroutine.
// When the underlying Stream isn't ready, they return ErrWouldBlock and
// the caller is expected to retry once the Stream (typically backed by a
// non-blocking socket integrated with epoll/kqueue) signals readiness
// again. No goroutine or task is spawned on the connection's behalf.
//
// It shares the Frame Codec and Message Assembler with the blocking
// flavor unchanged; only this pump differs.
type CoopConn struct {
	stream Stream
	role   Role

	codec     *Codec
	assembler *Assembler

	inBuf  []byte // Bytes read from stream but not yet decoded into a Frame.
	inPos  int    // Already-decoded prefix of inBuf; compacted on grow.
	outBuf []byte // Encoded bytes queued for Flush, not yet written.

	closeSent     bool
	closeReceived bool
}

// NewCoopConn wraps a non-blocking Stream (one whose Read/Write return
// ErrWouldBlock instead of blocking) into a CoopConn.
func NewCoopConn(stream Stream, role Role, opts ...CodecOption) *CoopConn {
	return &CoopConn{
		stream:    stream,
		role:      role,
		codec:     NewCodec(role, opts...),
		assembler: NewAssembler(),
	}
}

// Poll reads whatever bytes are currently available from the stream
// (without blocking) and decodes as many complete Messages as it can. It
// returns ErrWouldBlock (not as a failure, but as "nothing more to do
// right now") once the stream has no more bytes ready; any Messages
// already decoded before that point are still returned alongside it, so
// callers should always inspect the returned slice even on ErrWouldBlock.
//
// A protocol error queues a Close frame with the matching status code
// into the output buffer before the error is returned, same as the
// blocking flavor; the caller's next Flush puts it on the wire.
func (c *CoopConn) Poll() ([]Message, error) {
	var msgs []Message

	readErr := c.fill()

	for {
		f, consumed, err := c.codec.Decode(c.inBuf[c.inPos:])
		switch {
		case err == nil:
			c.inPos += consumed
			msg, aerr := c.assembler.Push(f)
			if aerr != nil {
				return msgs, c.failWith(aerr)
			}
			if msg != nil {
				if msg.Opcode == OpcodeClose {
					c.closeReceived = true
				}
				msgs = append(msgs, *msg)
			}
			continue

		case err == ErrNeedMore:
			c.compact()
			return msgs, readErr

		default:
			return msgs, c.failWith(err)
		}
	}
}

// failWith queues a Close frame matching a read-path protocol error, to be
// written by the caller's next Flush, and returns the error unchanged.
// I/O errors get no Close frame: the transport is already broken.
func (c *CoopConn) failWith(err error) error {
	if !IsProtocolError(err) || c.closeSent {
		return err
	}

	payload := encodeClosePayload(closeCodeFor(err), "")
	buf, encErr := c.codec.Encode(Frame{FIN: true, Opcode: OpcodeClose, Payload: payload}, c.outBuf)
	if encErr != nil {
		return err
	}
	c.outBuf = buf
	c.closeSent = true
	return err
}

// fill reads as many bytes as are immediately available into inBuf,
// stopping at ErrWouldBlock (the expected "nothing more right now"
// outcome) or a real error/EOF.
func (c *CoopConn) fill() error {
	tmp := make([]byte, 4096)
	for {
		n, err := c.stream.Read(tmp)
		if n > 0 {
			c.inBuf = append(c.inBuf, tmp[:n]...)
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return ErrWouldBlock
			}
			return err
		}
		if n == 0 {
			return io.EOF
		}
	}
}

// compact discards the already-decoded prefix of inBuf, bounding its
// growth to roughly one in-flight frame's worth of bytes.
func (c *CoopConn) compact() {
	if c.inPos == 0 {
		return
	}
	c.inBuf = append(c.inBuf[:0], c.inBuf[c.inPos:]...)
	c.inPos = 0
}

// Enqueue serializes msg and appends the resulting bytes to the pending
// output buffer; call Flush to actually attempt writing them.
func (c *CoopConn) Enqueue(msg Message) error {
	frames, err := Serialize(msg, fragmentThresholdInfinite)
	if err != nil {
		return err
	}
	for _, f := range frames {
		c.outBuf, err = c.codec.Encode(f, c.outBuf)
		if err != nil {
			return err
		}
	}
	if msg.Opcode == OpcodeClose {
		c.closeSent = true
	}
	return nil
}

// Flush attempts to write as much of the pending output buffer as the
// stream accepts without blocking. It returns ErrWouldBlock (with the
// remainder still queued for the next Flush) when the stream isn't ready
// for more, and nil once the buffer is fully drained.
func (c *CoopConn) Flush() error {
	for len(c.outBuf) > 0 {
		n, err := c.stream.Write(c.outBuf)
		if n > 0 {
			c.outBuf = c.outBuf[n:]
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return ErrWouldBlock
			}
			return err
		}
	}
	return nil
}

// IsClosed reports whether both directions of the closing handshake have
// been observed.
func (c *CoopConn) IsClosed() bool {
	return c.closeSent && c.closeReceived
}
