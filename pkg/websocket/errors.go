package websocket

import "errors"

// Sentinel protocol errors, returned (optionally wrapped with additional
// context via fmt.Errorf's %w) by the Frame Codec and Message Assembler.
// Each corresponds to one of the ProtocolError sub-kinds a conforming
// implementation must distinguish.
var (
	ErrNeedMore = errors.New("websocket: buffer too short, need more bytes")

	ErrBadOpcode              = errors.New("websocket: reserved or unknown opcode")
	ErrBadRSV                 = errors.New("websocket: reserved bits set without a negotiated extension")
	ErrBadFragmentation       = errors.New("websocket: control frame must not be fragmented")
	ErrBadControlSize         = errors.New("websocket: control frame payload exceeds 125 bytes")
	ErrUnexpectedContinuation = errors.New("websocket: continuation frame with nothing to continue")
	ErrUnexpectedNewData      = errors.New("websocket: new data frame while a message is already in progress")
	ErrInvalidUTF8            = errors.New("websocket: text message is not valid UTF-8")
	ErrInvalidCloseCode       = errors.New("websocket: invalid close status code")
	ErrMaskPolicyViolation    = errors.New("websocket: frame mask bit violates the connection's role")
	ErrLengthOverflow         = errors.New("websocket: extended length's top bit is set")
	ErrTooBig                 = errors.New("websocket: frame or message exceeds the configured size ceiling")

	// ErrHandshakeRequest denotes a caller-side malformed handshake request.
	ErrHandshakeRequest = errors.New("websocket: malformed handshake request")

	// Handshake validation failures. ErrBadStatus through ErrBadConnection
	// are client-side checks of the server's response; ErrMissingVersion is
	// returned by the server side when a request's Sec-WebSocket-Version is
	// missing or is not 13.
	ErrBadStatus      = errors.New("websocket: handshake response has an unexpected status code")
	ErrBadAccept      = errors.New("websocket: handshake response Sec-WebSocket-Accept mismatch")
	ErrBadUpgrade     = errors.New("websocket: handshake response Upgrade header is not \"websocket\"")
	ErrBadConnection  = errors.New("websocket: handshake response Connection header does not contain \"Upgrade\"")
	ErrMissingVersion = errors.New("websocket: handshake request is missing Sec-WebSocket-Version")

	// URL-related pre-handshake validation failures.
	ErrNoHost        = errors.New("websocket: endpoint URL has no host")
	ErrUnknownScheme = errors.New("websocket: endpoint URL scheme is neither ws nor wss")

	// ErrClosed names a connection whose closing handshake has completed (or
	// whose stream died). No operation in this package returns it: reads and
	// writes after a close report the underlying Stream's error instead.
	ErrClosed = errors.New("websocket: connection is closed")
)

// IsProtocolError reports whether err is one of the framing-layer sentinel
// errors above (as opposed to an I/O error or a handshake error), which by
// policy requires a Close frame to be sent before the transport is closed.
func IsProtocolError(err error) bool {
	switch {
	case errors.Is(err, ErrBadOpcode),
		errors.Is(err, ErrBadRSV),
		errors.Is(err, ErrBadFragmentation),
		errors.Is(err, ErrBadControlSize),
		errors.Is(err, ErrUnexpectedContinuation),
		errors.Is(err, ErrUnexpectedNewData),
		errors.Is(err, ErrInvalidUTF8),
		errors.Is(err, ErrInvalidCloseCode),
		errors.Is(err, ErrMaskPolicyViolation),
		errors.Is(err, ErrLengthOverflow),
		errors.Is(err, ErrTooBig):
		return true
	default:
		return false
	}
}

// closeCodeFor maps a protocol error to the Close status code a
// conforming endpoint sends before failing the connection (RFC 6455 §7.4.1).
func closeCodeFor(err error) StatusCode {
	switch {
	case errors.Is(err, ErrInvalidUTF8):
		return StatusInvalidData
	case errors.Is(err, ErrTooBig):
		return StatusMessageTooBig
	case IsProtocolError(err):
		return StatusProtocolError
	default:
		return StatusInternalError
	}
}
