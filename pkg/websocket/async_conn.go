package websocket

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// internalMessage synchronizes concurrent callers of AsyncConn's send
// methods with the single writer goroutine.
type internalMessage struct {
	Opcode Opcode
	Data   []byte
	err    chan<- error
}

// AsyncConn is the channel-based convenience layer over a blocking Conn:
// one goroutine continuously reads Messages and publishes them, another
// serializes writes from possibly many concurrent callers. The two pump
// goroutines run under an errgroup.Group so their lifetimes and first
// fatal error are observable through a single Wait call.
type AsyncConn struct {
	conn *Conn

	reader chan Message
	writer chan internalMessage

	group *errgroup.Group
}

// NewAsyncConn starts the read and write pump goroutines for conn under a
// new errgroup.Group derived from ctx and private to the returned
// AsyncConn; Wait reports the first error either pump returns.
func NewAsyncConn(ctx context.Context, conn *Conn) (*AsyncConn, error) {
	group, _ := errgroup.WithContext(ctx)

	a := &AsyncConn{
		conn:   conn,
		reader: make(chan Message),
		writer: make(chan internalMessage),
		group:  group,
	}

	group.Go(a.pumpReads)
	group.Go(a.pumpWrites)

	return a, nil
}

// IncomingMessages returns the channel that publishes Text/Binary Messages
// as they are received. It is closed when the connection's read loop ends
// (cleanly or not); callers should range over it rather than assume it
// stays open forever.
func (a *AsyncConn) IncomingMessages() <-chan Message {
	return a.reader
}

// Wait blocks until both pump goroutines have exited, returning the first
// non-nil error either encountered (io.EOF from a clean close handshake is
// normalized to nil, matching "dropping either half releases its stream
// half" being an expected, not exceptional, way for a connection to end).
func (a *AsyncConn) Wait() error {
	if err := a.group.Wait(); err != nil && err != io.EOF { //nolint:errorlint // sentinel comparison is intentional here
		return err
	}
	return nil
}

func (a *AsyncConn) pumpReads() error {
	defer close(a.reader)

	for {
		msg, err := a.conn.ReadMessage()
		if err != nil {
			return err
		}
		a.reader <- *msg
	}
}

func (a *AsyncConn) pumpWrites() error {
	for msg := range a.writer {
		err := a.conn.write.WriteMessage(Message{Opcode: msg.Opcode, Data: msg.Data})
		msg.err <- err
		close(msg.err)
	}
	return nil
}

// SendText sends a UTF-8 text message asynchronously, returning a channel
// the caller may use to observe the write's outcome.
func (a *AsyncConn) SendText(data []byte) <-chan error {
	return a.send(OpcodeText, data)
}

// SendBinary sends a binary message asynchronously.
func (a *AsyncConn) SendBinary(data []byte) <-chan error {
	return a.send(OpcodeBinary, data)
}

func (a *AsyncConn) send(op Opcode, data []byte) <-chan error {
	errc := make(chan error, 1)
	a.writer <- internalMessage{Opcode: op, Data: data, err: errc}
	return errc
}

// Close initiates the closing handshake and stops accepting new writes.
func (a *AsyncConn) Close(status StatusCode) {
	a.conn.Close(status)
	close(a.writer)
}
