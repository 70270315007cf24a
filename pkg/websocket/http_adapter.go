package websocket

import (
	"fmt"
	"net"
	"net/http"
	"net/textproto"
)

// UpgradeHTTP adapts ServerHandshake for embedding inside an existing
// net/http server: it hijacks the connection from w, replays the
// already-parsed net/http request's line and headers through the same
// validation path ServerHandshake uses for a stream-native request, and
// returns the hijacked net.Conn plus the handshake result. This is the one
// place net/http types are unavoidable; everywhere else in this package
// operates on Stream.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request, selector ServerSelector) (net.Conn, HandshakeResult, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, HandshakeResult{}, fmt.Errorf("websocket: ResponseWriter does not support hijacking")
	}

	req := &ServerHandshakeRequest{
		Method:            r.Method,
		Resource:          r.URL.RequestURI(),
		Version:           r.Proto,
		Header:            textproto.MIMEHeader(r.Header),
		ProtocolsOffered:  splitCommaList(r.Header.Get("Sec-WebSocket-Protocol")),
		ExtensionsOffered: splitCommaList(r.Header.Get("Sec-WebSocket-Extensions")),
	}

	if err := validatePreHijackedRequest(r); err != nil {
		if ve, ok := err.(*versionMismatchError); ok { //nolint:errorlint // internal sentinel type, not wrapped
			w.Header().Set("Sec-WebSocket-Version", "13")
			http.Error(w, ve.Error(), http.StatusUpgradeRequired)
			return nil, HandshakeResult{}, fmt.Errorf("%w: %s", ErrMissingVersion, ve.got)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, HandshakeResult{}, err
	}

	conn, brw, err := hj.Hijack()
	if err != nil {
		return nil, HandshakeResult{}, fmt.Errorf("websocket: failed to hijack HTTP connection: %w", err)
	}

	accept, reject := selector(req)
	switch {
	case reject != nil:
		if writeErr := writeServerReject(brw.Writer, *reject); writeErr != nil {
			_ = conn.Close()
			return nil, HandshakeResult{}, fmt.Errorf("websocket: failed to write handshake rejection: %w", writeErr)
		}
		_ = conn.Close()
		return nil, HandshakeResult{}, fmt.Errorf("websocket: handshake rejected with status %d", reject.Status)

	case accept != nil:
		result, writeErr := writeServerAccept(brw.Writer, r.Header.Get("Sec-WebSocket-Key"), *accept)
		if writeErr != nil {
			_ = conn.Close()
			return nil, HandshakeResult{}, fmt.Errorf("websocket: failed to write handshake response: %w", writeErr)
		}
		if n := brw.Reader.Buffered(); n > 0 {
			result.Prefix = make([]byte, n)
			_, _ = brw.Reader.Read(result.Prefix) //nolint:errcheck // Reading only what's already buffered cannot fail.
		}
		return conn, result, nil

	default:
		_ = conn.Close()
		return nil, HandshakeResult{}, fmt.Errorf("websocket: selector returned neither accept nor reject")
	}
}

// validatePreHijackedRequest runs the same checks ServerHandshake applies,
// ahead of the hijack, so a malformed request gets a normal net/http error
// response instead of a raw bytes write to a hijacked socket.
func validatePreHijackedRequest(r *http.Request) error {
	// net/http moves the Host header out of r.Header into r.Host.
	hdr := textproto.MIMEHeader(r.Header.Clone())
	if hdr.Get("Host") == "" && r.Host != "" {
		hdr.Set("Host", r.Host)
	}
	_, _, err := validateServerRequest(fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto), hdr)
	return err
}
