package websocket

import (
	"bytes"
	"testing"
)

// coopStream is a minimal non-blocking Stream stand-in: Read drains a
// fixed input buffer then returns ErrWouldBlock, and Write always accepts
// everything immediately (appending to an outgoing buffer for inspection).
type coopStream struct {
	in  []byte
	out bytes.Buffer
}

func (s *coopStream) Read(p []byte) (int, error) {
	if len(s.in) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(p, s.in)
	s.in = s.in[n:]
	return n, nil
}

func (s *coopStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func TestCoopConnPollSingleFrame(t *testing.T) {
	stream := &coopStream{in: []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}}
	c := NewCoopConn(stream, RoleClient)

	msgs, err := c.Poll()
	if err != ErrWouldBlock {
		t.Fatalf("Poll() error = %v, want ErrWouldBlock", err)
	}
	if len(msgs) != 1 || string(msgs[0].Data) != "Hello" {
		t.Fatalf("Poll() = %+v, want a single Hello text message", msgs)
	}
}

func TestCoopConnPollPartialFrameThenMore(t *testing.T) {
	stream := &coopStream{in: []byte{0x81, 0x05, 'H', 'e'}}
	c := NewCoopConn(stream, RoleClient)

	msgs, err := c.Poll()
	if err != ErrWouldBlock || len(msgs) != 0 {
		t.Fatalf("Poll() = %+v, %v, want no messages, ErrWouldBlock", msgs, err)
	}

	stream.in = []byte{'l', 'l', 'o'}
	msgs, err = c.Poll()
	if err != ErrWouldBlock {
		t.Fatalf("Poll() error = %v, want ErrWouldBlock", err)
	}
	if len(msgs) != 1 || string(msgs[0].Data) != "Hello" {
		t.Fatalf("Poll() = %+v, want a single Hello text message", msgs)
	}
}

func TestCoopConnEnqueueFlush(t *testing.T) {
	stream := &coopStream{}
	c := NewCoopConn(stream, RoleServer)

	if err := c.Enqueue(Message{Opcode: OpcodeText, Data: []byte("hi")}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// A RoleServer encoder never masks, so the bytes it produced decode
	// correctly only from the receiving client's point of view.
	decoder := NewCodec(RoleClient)
	got, n, err := decoder.Decode(stream.out.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != stream.out.Len() {
		t.Errorf("Decode() consumed = %d, want %d", n, stream.out.Len())
	}
	if string(got.Payload) != "hi" {
		t.Errorf("Decode() payload = %q, want %q", got.Payload, "hi")
	}
}

func TestCoopConnPollProtocolErrorQueuesClose(t *testing.T) {
	// Reserved opcode 0x3: a protocol error the peer must learn about
	// through a Close frame with status 1002.
	stream := &coopStream{in: []byte{0x83, 0x00}}
	c := NewCoopConn(stream, RoleClient)

	_, err := c.Poll()
	if err != ErrBadOpcode {
		t.Fatalf("Poll() error = %v, want ErrBadOpcode", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	decoder := NewCodec(RoleServer)
	frame, _, err := decoder.Decode(stream.out.Bytes())
	if err != nil {
		t.Fatalf("Decode(queued close) error = %v", err)
	}
	if frame.Opcode != OpcodeClose {
		t.Fatalf("queued frame opcode = %v, want Close", frame.Opcode)
	}
	status, _, err := parseClosePayload(frame.Payload)
	if err != nil {
		t.Fatalf("parseClosePayload() error = %v", err)
	}
	if status != StatusProtocolError {
		t.Errorf("close status = %v, want %v", status, StatusProtocolError)
	}
}

func TestCoopConnIsClosed(t *testing.T) {
	stream := &coopStream{}
	c := NewCoopConn(stream, RoleClient)

	if c.IsClosed() {
		t.Fatal("IsClosed() = true before any close traffic")
	}

	if err := c.Enqueue(Message{Opcode: OpcodeClose, Status: StatusNormalClosure}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if c.IsClosed() {
		t.Fatal("IsClosed() = true after sending Close but before receiving one")
	}
}
