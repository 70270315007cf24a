package websocket

import (
	"bufio"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
)

// ClientHandshakeConfig carries the optional pieces of a client opening
// handshake: custom headers, Origin, and the subprotocols or extensions
// to offer. The zero value performs a plain handshake with no extras.
type ClientHandshakeConfig struct {
	Header      textproto.MIMEHeader
	Origin      string
	Protocols   []string
	Extensions  []string
	NonceSource randReader
}

// ClientHandshake performs the client-side opening handshake over stream,
// per RFC 6455 §4.1. It writes the request line and headers, then reads and
// validates the response, returning a HandshakeResult with no net/http
// types, any bytes already read past the header terminator, and the sent
// nonce's expected Accept value having already been checked internally.
func ClientHandshake(stream Stream, ep Endpoint, cfg ClientHandshakeConfig) (HandshakeResult, error) {
	nonceSource := cfg.NonceSource
	if nonceSource == nil {
		nonceSource = defaultRandReader
	}

	nonce, err := generateNonce(nonceSource)
	if err != nil {
		return HandshakeResult{}, err
	}

	bw := bufio.NewWriter(stream)
	if err := writeClientRequest(bw, ep, cfg, nonce); err != nil {
		return HandshakeResult{}, fmt.Errorf("websocket: failed to send handshake request: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return HandshakeResult{}, fmt.Errorf("websocket: failed to flush handshake request: %w", err)
	}

	br := bufio.NewReader(stream)
	statusLine, hdr, err := readHeaderBlock(br)
	if err != nil {
		return HandshakeResult{}, err
	}

	result, err := parseClientResponse(statusLine, hdr, nonce, cfg)
	if err != nil {
		return HandshakeResult{}, err
	}

	if n := br.Buffered(); n > 0 {
		result.Prefix = make([]byte, n)
		_, _ = br.Read(result.Prefix) //nolint:errcheck // Reading only what's already buffered cannot fail.
	}

	return result, nil
}

// writeClientRequest writes the request line and headers described in
// RFC 6455 §4.1. User-supplied headers are merged in, but only for
// the explicitly-overridable fields (Origin, custom headers); Upgrade,
// Connection, Version, and Key are always computed here, and any
// caller-supplied entry for one of them is dropped so the computed
// value is the only one on the wire.
func writeClientRequest(w *bufio.Writer, ep Endpoint, cfg ClientHandshakeConfig, nonce string) error {
	if _, err := fmt.Fprintf(w, "GET %s HTTP/1.1\r\n", ep.Resource); err != nil {
		return err
	}

	headers := []struct{ key, value string }{
		{"Host", ep.hostHeader()},
		{"Upgrade", "websocket"},
		{"Connection", "Upgrade"},
		{"Sec-WebSocket-Key", nonce},
		{"Sec-WebSocket-Version", "13"},
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.key, h.value); err != nil {
			return err
		}
	}

	if cfg.Origin != "" {
		if _, err := fmt.Fprintf(w, "Origin: %s\r\n", cfg.Origin); err != nil {
			return err
		}
	}
	if len(cfg.Protocols) > 0 {
		if _, err := fmt.Fprintf(w, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(cfg.Protocols, ", ")); err != nil {
			return err
		}
	}
	if len(cfg.Extensions) > 0 {
		if _, err := fmt.Fprintf(w, "Sec-WebSocket-Extensions: %s\r\n", strings.Join(cfg.Extensions, ", ")); err != nil {
			return err
		}
	}

	for key, values := range cfg.Header {
		if isReservedClientHeader(key) {
			continue
		}
		for _, v := range values {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}

	_, err := w.WriteString("\r\n")
	return err
}

// reservedClientHeaders are the handshake request headers writeClientRequest
// always computes itself; a caller's custom header map never overrides them.
var reservedClientHeaders = []string{
	"Host",
	"Upgrade",
	"Connection",
	"Sec-WebSocket-Key",
	"Sec-WebSocket-Version",
}

func isReservedClientHeader(key string) bool {
	for _, r := range reservedClientHeaders {
		if strings.EqualFold(key, r) {
			return true
		}
	}
	return false
}

// parseClientResponse validates the server's handshake response, per
// RFC 6455 §4.1's client requirements.
func parseClientResponse(statusLine string, hdr textproto.MIMEHeader, nonce string, cfg ClientHandshakeConfig) (HandshakeResult, error) {
	code, err := statusCodeFromLine(statusLine)
	if err != nil {
		return HandshakeResult{}, fmt.Errorf("%w: %w", ErrBadStatus, err)
	}
	if code != 101 {
		return HandshakeResult{}, fmt.Errorf("%w: got %d, want 101", ErrBadStatus, code)
	}

	if !strings.EqualFold(hdr.Get("Upgrade"), "websocket") {
		return HandshakeResult{}, fmt.Errorf("%w: got %q", ErrBadUpgrade, hdr.Get("Upgrade"))
	}
	if !headerHasToken(hdr.Get("Connection"), "Upgrade") {
		return HandshakeResult{}, fmt.Errorf("%w: got %q", ErrBadConnection, hdr.Get("Connection"))
	}

	want := computeAccept(nonce)
	if got := hdr.Get("Sec-WebSocket-Accept"); got != want {
		return HandshakeResult{}, fmt.Errorf("%w: got %q, want %q", ErrBadAccept, got, want)
	}

	protocol := hdr.Get("Sec-WebSocket-Protocol")
	if protocol != "" && !isSubset([]string{protocol}, cfg.Protocols) {
		return HandshakeResult{}, fmt.Errorf("websocket: server selected an unoffered subprotocol %q", protocol)
	}

	extensions := splitCommaList(hdr.Get("Sec-WebSocket-Extensions"))
	if len(extensions) > 0 && !isSubset(extensions, cfg.Extensions) {
		return HandshakeResult{}, fmt.Errorf("websocket: server selected unoffered extensions %v", extensions)
	}

	return HandshakeResult{
		StatusCode: code,
		Protocol:   protocol,
		Extensions: extensions,
		Header:     hdr,
	}, nil
}

// statusCodeFromLine extracts the numeric status code from an HTTP
// status line such as "HTTP/1.1 101 Switching Protocols".
func statusCodeFromLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	return strconv.Atoi(parts[1])
}
