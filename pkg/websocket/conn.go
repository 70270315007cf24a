package websocket

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// ReadHalf owns everything the read path of a connection needs: the
// buffered Stream reader, the frame Codec, and the Message Assembler's
// state, which belongs exclusively to the read half. Once split out of a
// Conn, reads and writes may proceed concurrently; the two halves share
// no mutable state beyond the underlying Stream itself.
type ReadHalf struct {
	br        *bufio.Reader
	codec     *Codec
	assembler *Assembler
	logger    zerolog.Logger

	closeRead func() error // Set only if the underlying Stream supports half-close.
}

// CloseRead releases the read direction of the underlying Stream, if it
// implements HalfCloser; it is a no-op (returning nil) otherwise, since
// not every Stream (e.g. an in-memory pipe) supports half-closing.
func (rh *ReadHalf) CloseRead() error {
	if rh.closeRead == nil {
		return nil
	}
	return rh.closeRead()
}

// WriteHalf owns the write path: the buffered Stream writer, the frame
// Codec, and the mask-key CSPRNG, which belongs exclusively to the write
// half. A mutex serializes WriteFrame calls so a write is never
// interleaved mid-frame; no synchronization with the read half is needed
// beyond that.
type WriteHalf struct {
	mu    sync.Mutex
	bw    *bufio.Writer
	codec *Codec

	// fragmentThreshold is the outgoing-message size above which
	// WriteMessage splits data messages into fragments; 0 means never.
	fragmentThreshold int

	closeWrite func() error // Set only if the underlying Stream supports half-close.
}

// CloseWrite releases the write direction of the underlying Stream, if it
// implements HalfCloser; it is a no-op (returning nil) otherwise.
func (wh *WriteHalf) CloseWrite() error {
	if wh.closeWrite == nil {
		return nil
	}
	return wh.closeWrite()
}

// ReadFrame reads and decodes the next single frame from the stream. It
// blocks until a complete frame is available or an I/O error/EOF occurs.
func (rh *ReadHalf) ReadFrame() (Frame, error) {
	return readFrameBlocking(rh.br, rh.codec)
}

// ReadMessage reads frames until a complete Message (or protocol error) is
// produced, per the Assembler's state machine. Control frames are
// returned immediately, without waiting for any in-progress data message
// to complete, per RFC 6455 §5.4 ("control frames MAY be injected in the
// middle of a fragmented message").
func (rh *ReadHalf) ReadMessage() (*Message, error) {
	for {
		f, err := rh.ReadFrame()
		if err != nil {
			return nil, err
		}

		msg, err := rh.assembler.Push(f)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// WriteFrame encodes and writes a single frame, flushing immediately. The
// WriteHalf's Codec (bound to this connection's Role) decides masking.
func (wh *WriteHalf) WriteFrame(f Frame) error {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	buf, err := wh.codec.Encode(f, make([]byte, 0, len(f.Payload)+14))
	if err != nil {
		return fmt.Errorf("websocket: failed to encode frame: %w", err)
	}
	if _, err := wh.bw.Write(buf); err != nil {
		return fmt.Errorf("websocket: failed to write frame: %w", err)
	}
	return wh.bw.Flush()
}

// WriteMessage serializes msg, fragmenting data messages larger than the
// configured outgoing threshold (never, unless WithConnFragmentThreshold
// was set), and writes the resulting frame(s) in order.
func (wh *WriteHalf) WriteMessage(msg Message) error {
	frames, err := Serialize(msg, wh.fragmentThreshold)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := wh.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// readFrameBlocking reads and decodes one frame from br using codec. The
// header (at most 14 bytes: 2 + 8-byte extended length + 4-byte mask key)
// is peeked directly, since it always fits well within bufio's default
// buffer; the payload, which can be arbitrarily large, is then read with
// io.ReadFull into a freshly sized buffer instead of being peeked. Peek
// can never return more than br's fixed buffer capacity, so growing the
// requested size the way a naive retry loop would just spin forever once
// a frame's total length exceeds that capacity.
func readFrameBlocking(br *bufio.Reader, codec *Codec) (Frame, error) {
	head, err := br.Peek(2)
	if err != nil {
		return Frame{}, err
	}
	headerLen := frameHeaderLen(head[0], head[1])

	header, err := br.Peek(headerLen)
	if err != nil {
		return Frame{}, err
	}

	payloadLen, err := peekPayloadLen(header)
	if err != nil {
		return Frame{}, err
	}
	if payloadLen > codec.maxFramePayload {
		return Frame{}, ErrTooBig
	}

	buf := make([]byte, headerLen+int(payloadLen))
	copy(buf, header)
	if _, err := br.Discard(headerLen); err != nil {
		return Frame{}, err
	}
	if payloadLen > 0 {
		if _, err := io.ReadFull(br, buf[headerLen:]); err != nil {
			return Frame{}, err
		}
	}

	f, consumed, err := codec.Decode(buf)
	if err != nil {
		return Frame{}, err
	}
	if consumed != len(buf) {
		return Frame{}, fmt.Errorf("websocket: decoded %d bytes, expected %d", consumed, len(buf))
	}
	return f, nil
}

// Conn is an established WebSocket connection: a Stream plus the Role,
// Codec, and Assembler configuration that together let its ReadHalf and
// WriteHalf be used independently or through the combined blocking-flavor
// helpers in conn_blocking.go.
type Conn struct {
	id     string
	role   Role
	logger zerolog.Logger

	stream Stream
	read   *ReadHalf
	write  *WriteHalf

	negotiatedProtocol   string
	negotiatedExtensions []string

	closeMu        sync.Mutex
	closeSent      bool
	closeReceived  bool
	closer         io.Closer // Set only if the Stream also implements io.Closer.
	transportClose sync.Once
}

// ConnOption configures a Conn built by newConn.
type ConnOption func(*Conn)

// WithConnMaxFramePayload overrides the Conn's frame-size ceiling.
func WithConnMaxFramePayload(n uint64) ConnOption {
	return func(c *Conn) { c.read.codec.maxFramePayload = n; c.write.codec.maxFramePayload = n }
}

// WithConnMaxMessageSize overrides the Conn's reassembled-message ceiling.
func WithConnMaxMessageSize(n uint64) ConnOption {
	return func(c *Conn) { c.read.assembler.maxMsgSz = n }
}

// WithConnFragmentThreshold fragments outgoing data messages larger than
// n bytes; by default they are sent as a single frame regardless of size.
func WithConnFragmentThreshold(n int) ConnOption {
	return func(c *Conn) { c.write.fragmentThreshold = n }
}

// WithConnLogger attaches a logger for this connection's lifetime events.
func WithConnLogger(l zerolog.Logger) ConnOption {
	return func(c *Conn) { c.logger = l }
}

// newConn wraps an already-handshaken Stream into a Conn, ready to
// exchange frames. role determines masking policy for both halves.
func newConn(stream Stream, role Role, result HandshakeResult, opts ...ConnOption) *Conn {
	c := &Conn{
		id:     newConnID(),
		role:   role,
		stream: stream,
		logger: zerolog.Nop(),

		negotiatedProtocol:   result.Protocol,
		negotiatedExtensions: result.Extensions,
	}

	var br *bufio.Reader
	if len(result.Prefix) > 0 {
		br = bufio.NewReader(io.MultiReader(bytes.NewReader(result.Prefix), stream))
	} else {
		br = bufio.NewReader(stream)
	}

	// A client Conn decodes frames sent by the server (which must arrive
	// unmasked) and encodes frames it masks itself, and vice versa for a
	// server Conn; both halves' Codecs are bound to the same Role.
	c.read = &ReadHalf{
		br:        br,
		codec:     NewCodec(role),
		assembler: NewAssembler(),
	}
	c.write = &WriteHalf{
		bw:    bufio.NewWriter(stream),
		codec: NewCodec(role),
	}

	if hc, ok := stream.(HalfCloser); ok {
		c.read.closeRead = hc.CloseRead
		c.write.closeWrite = hc.CloseWrite
	}
	if closer, ok := stream.(io.Closer); ok {
		c.closer = closer
	}

	for _, opt := range opts {
		opt(c)
	}
	c.read.logger = c.logger

	return c
}

// ReadHalf returns the connection's read half.
func (c *Conn) ReadHalf() *ReadHalf { return c.read }

// WriteHalf returns the connection's write half.
func (c *Conn) WriteHalf() *WriteHalf { return c.write }

// Protocol returns the negotiated Sec-WebSocket-Protocol, or "" if none.
func (c *Conn) Protocol() string { return c.negotiatedProtocol }

// Extensions returns the negotiated Sec-WebSocket-Extensions, or nil.
func (c *Conn) Extensions() []string { return c.negotiatedExtensions }

// ID returns the connection's short correlation identifier, for log
// correlation only; it has no wire presence.
func (c *Conn) ID() string { return c.id }

func (c *Conn) markCloseSent() (already bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	already = c.closeSent
	c.closeSent = true
	return already
}

func (c *Conn) markCloseReceived() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closeReceived = true
}

// IsClosed reports whether both directions of the closing handshake have
// completed.
func (c *Conn) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeSent && c.closeReceived
}

// IsClosing reports whether either direction of the closing handshake has
// started.
func (c *Conn) IsClosing() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeSent || c.closeReceived
}

// closeTransport closes the underlying Stream, if it implements io.Closer,
// exactly once. Called once the closing handshake has run its course (in
// either direction) so the socket doesn't outlive the protocol-level
// connection it carried.
func (c *Conn) closeTransport() {
	if c.closer == nil {
		return
	}
	c.transportClose.Do(func() {
		if err := c.closer.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("failed to close underlying stream")
		}
	})
}
