package websocket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

// listenRawWebSocketServer starts a bare TCP listener that performs one
// WebSocket opening handshake by hand (no ServerHandshake involved, so the
// client side under test is exercised against nothing but raw bytes) and
// returns its address.
func listenRawWebSocketServer(t *testing.T, protocol string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		_, hdr, err := readHeaderBlock(br)
		if err != nil {
			return
		}

		accept := computeAccept(hdr.Get("Sec-WebSocket-Key"))
		resp := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n", accept)
		if protocol != "" {
			resp += fmt.Sprintf("Sec-WebSocket-Protocol: %s\r\n", protocol)
		}
		resp += "\r\n"
		_, _ = conn.Write([]byte(resp))

		// Keep the connection open briefly so the client has time to
		// observe the completed handshake before the test tears down.
		time.Sleep(50 * time.Millisecond)
	}()

	return ln.Addr().String()
}

// listenRawWebSocketServerEchoing starts a TCP listener that completes a
// real server-side handshake via ServerHandshake and echoes back every
// Text/Binary message it receives, for exercising the client-facing async
// round trip end to end.
func listenRawWebSocketServerEchoing(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		result, err := ServerHandshake(conn, func(_ *ServerHandshakeRequest) (*ServerAccept, *ServerReject) {
			return &ServerAccept{}, nil
		})
		if err != nil {
			return
		}

		wsConn := newConn(conn, RoleServer, result)
		for {
			msg, err := wsConn.ReadMessage()
			if err != nil {
				return
			}
			if err := wsConn.write.WriteMessage(*msg); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestDialSuccess(t *testing.T) {
	addr := listenRawWebSocketServer(t, "chat")

	conn, err := Dial(context.Background(), "ws://"+addr+"/chat", WithProtocols("chat"))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(StatusNormalClosure)

	if conn.Protocol() != "chat" {
		t.Errorf("Protocol() = %q, want %q", conn.Protocol(), "chat")
	}
}

func TestDialBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "http://example.com")
	if err == nil {
		t.Fatal("Dial() error = nil, want non-nil")
	}
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // Nothing listens here anymore.

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = Dial(ctx, "ws://"+addr+"/")
	if err == nil {
		t.Fatal("Dial() error = nil, want non-nil")
	}
}
