package websocket

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func writeRawRequest(w io.Writer, headers map[string]string) error {
	var sb strings.Builder
	sb.WriteString("GET /chat HTTP/1.1\r\n")
	for k, v := range headers {
		sb.WriteString(k + ": " + v + "\r\n")
	}
	sb.WriteString("\r\n")
	_, err := w.Write([]byte(sb.String()))
	return err
}

func baseRequestHeaders(key string) map[string]string {
	return map[string]string{
		"Host":                  "example.com",
		"Upgrade":               "websocket",
		"Connection":            "Upgrade",
		"Sec-WebSocket-Key":     key,
		"Sec-WebSocket-Version": "13",
	}
}

func TestServerHandshakeAccept(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	const key = "dGhlIHNhbXBsZSBub25jZQ=="

	resultCh := make(chan HandshakeResult, 1)
	errCh := make(chan error, 1)
	go func() {
		selector := func(req *ServerHandshakeRequest) (*ServerAccept, *ServerReject) {
			if req.Resource != "/chat" {
				return nil, &ServerReject{Status: 404}
			}
			return &ServerAccept{Protocol: "chat"}, nil
		}
		res, err := ServerHandshake(serverSide, selector)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	if err := writeRawRequest(clientSide, baseRequestHeaders(key)); err != nil {
		t.Fatalf("writeRawRequest() error = %v", err)
	}

	br := bufio.NewReader(clientSide)
	statusLine, hdr, err := readHeaderBlock(br)
	if err != nil {
		t.Fatalf("readHeaderBlock() error = %v", err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("status line = %q, want it to contain 101", statusLine)
	}
	want := computeAccept(key)
	if got := hdr.Get("Sec-WebSocket-Accept"); got != want {
		t.Errorf("Sec-WebSocket-Accept = %q, want %q", got, want)
	}

	select {
	case err := <-errCh:
		t.Fatalf("ServerHandshake() error = %v", err)
	case res := <-resultCh:
		if res.Protocol != "chat" {
			t.Errorf("Protocol = %q, want %q", res.Protocol, "chat")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServerHandshake()")
	}
}

func TestServerHandshakeRejectsBadVersion(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	errCh := make(chan error, 1)
	go func() {
		selector := func(_ *ServerHandshakeRequest) (*ServerAccept, *ServerReject) {
			return &ServerAccept{}, nil
		}
		_, err := ServerHandshake(serverSide, selector)
		errCh <- err
	}()

	headers := baseRequestHeaders("dGhlIHNhbXBsZSBub25jZQ==")
	headers["Sec-WebSocket-Version"] = "99"
	if err := writeRawRequest(clientSide, headers); err != nil {
		t.Fatalf("writeRawRequest() error = %v", err)
	}

	br := bufio.NewReader(clientSide)
	statusLine, _, err := readHeaderBlock(br)
	if err != nil {
		t.Fatalf("readHeaderBlock() error = %v", err)
	}
	if !strings.Contains(statusLine, "426") {
		t.Fatalf("status line = %q, want it to contain 426", statusLine)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("ServerHandshake() error = nil, want non-nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServerHandshake()")
	}
}

func TestValidateServerRequestRejectsNonGet(t *testing.T) {
	hdr := map[string][]string{
		"Host":                  {"example.com"},
		"Upgrade":               {"websocket"},
		"Connection":            {"Upgrade"},
		"Sec-WebSocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
		"Sec-WebSocket-Version": {"13"},
	}
	_, _, err := validateServerRequest("POST /chat HTTP/1.1", hdr)
	if err == nil {
		t.Fatal("validateServerRequest() error = nil, want non-nil")
	}
}

func TestIsAtLeastHTTP11(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"HTTP/1.1", true},
		{"HTTP/2.0", true},
		{"HTTP/1.0", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isAtLeastHTTP11(tt.version); got != tt.want {
			t.Errorf("isAtLeastHTTP11(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}
